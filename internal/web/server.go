package web

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"wifiled-go-home/internal/automation"
	"wifiled-go-home/internal/coordinator"
)

// ServerOption configures the web server.
type ServerOption func(*Server)

// WithAPIKey enables API key authentication.
func WithAPIKey(key string) ServerOption {
	return func(s *Server) {
		s.apiKey = key
	}
}

// WithAllowedOrigins sets allowed WebSocket origin patterns.
func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

// WithAutomation sets the automation engine and script manager.
func WithAutomation(engine *automation.Engine, mgr *automation.Manager) ServerOption {
	return func(s *Server) {
		s.autoEngine = engine
		s.scriptMgr = mgr
	}
}

// WithVersion sets the application version string reported by the API.
func WithVersion(v string) ServerOption {
	return func(s *Server) {
		s.version = v
	}
}

// Server is the HTTP API server.
type Server struct {
	coord          *coordinator.Coordinator
	wsHub          *WSHub
	logger         *slog.Logger
	mux            *http.ServeMux
	apiKey         string
	allowedOrigins []string
	scriptMgr      *automation.Manager
	autoEngine     *automation.Engine
	version        string
	started        time.Time
	wg             sync.WaitGroup
	unsubEvents    func()
}

// NewServer creates a new API server.
func NewServer(coord *coordinator.Coordinator, logger *slog.Logger, opts ...ServerOption) *Server {
	s := &Server{
		coord:   coord,
		logger:  logger,
		mux:     http.NewServeMux(),
		started: time.Now(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.wsHub = NewWSHub(logger)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.wsHub.Run()
	}()

	// Every coordinator event is mirrored to connected WebSocket clients.
	s.unsubEvents = coord.Events().OnAll(func(event coordinator.Event) {
		s.wsHub.Broadcast(event)
	})

	s.routes()
	return s
}

// Stop gracefully shuts down the WebSocket hub and waits for goroutines.
func (s *Server) Stop() {
	if s.unsubEvents != nil {
		s.unsubEvents()
	}
	s.wsHub.Stop()
	s.wg.Wait()
}

func (s *Server) routes() {
	// Bulb registry
	s.mux.HandleFunc("GET /api/bulbs", s.handleAPIListBulbs)
	s.mux.HandleFunc("GET /api/bulbs/{ip}", s.handleAPIGetBulb)
	s.mux.HandleFunc("PUT /api/bulbs/{ip}/name", s.handleAPIRenameBulb)
	s.mux.HandleFunc("DELETE /api/bulbs/{ip}", s.handleAPIDeleteBulb)

	// Live device queries
	s.mux.HandleFunc("GET /api/bulbs/{ip}/state", s.handleAPIBulbState)
	s.mux.HandleFunc("GET /api/bulbs/{ip}/timers", s.handleAPIBulbTimers)
	s.mux.HandleFunc("GET /api/bulbs/{ip}/clock", s.handleAPIBulbClock)

	// Device commands
	s.mux.HandleFunc("POST /api/bulbs/{ip}/power", s.handleAPIPower)
	s.mux.HandleFunc("POST /api/bulbs/{ip}/color", s.handleAPIColor)
	s.mux.HandleFunc("POST /api/bulbs/{ip}/white", s.handleAPIWhite)
	s.mux.HandleFunc("POST /api/bulbs/{ip}/pattern", s.handleAPIPattern)
	s.mux.HandleFunc("POST /api/bulbs/{ip}/clock/sync", s.handleAPISyncClock)

	// Discovery and service info
	s.mux.HandleFunc("POST /api/scan", s.handleAPIScan)
	s.mux.HandleFunc("GET /api/patterns", s.handleAPIPatterns)
	s.mux.HandleFunc("GET /api/status", s.handleAPIStatus)
	s.mux.HandleFunc("GET /api/version", s.handleAPIVersion)

	// Automations
	s.mux.HandleFunc("GET /api/automations", s.handleAPIListAutomations)
	s.mux.HandleFunc("GET /api/automations/{id}", s.handleAPIGetAutomation)
	s.mux.HandleFunc("POST /api/automations", s.handleAPICreateAutomation)
	s.mux.HandleFunc("PUT /api/automations/{id}", s.handleAPIUpdateAutomation)
	s.mux.HandleFunc("DELETE /api/automations/{id}", s.handleAPIDeleteAutomation)
	s.mux.HandleFunc("POST /api/automations/{id}/toggle", s.handleAPIToggleAutomation)
	s.mux.HandleFunc("POST /api/automations/{id}/run", s.handleAPIRunAutomation)

	// WebSocket
	s.mux.HandleFunc("GET /ws", s.handleWS)
}

// ServeHTTP implements http.Handler, applying auth and CORS middleware.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// CORS: check Origin on mutating requests to prevent CSRF.
	if len(s.allowedOrigins) > 0 {
		origin := r.Header.Get("Origin")
		if origin != "" {
			if r.Method == http.MethodOptions {
				// Preflight request.
				if s.isOriginAllowed(origin) {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
					w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key")
					w.Header().Set("Access-Control-Max-Age", "3600")
					w.WriteHeader(http.StatusNoContent)
					return
				}
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}

			if r.Method != http.MethodGet {
				if !s.isOriginAllowed(origin) {
					http.Error(w, "Forbidden", http.StatusForbidden)
					return
				}
				w.Header().Set("Access-Control-Allow-Origin", origin)
			}
		}
	}

	if s.apiKey != "" {
		// Only /api/ endpoints require the key. The WebSocket upgrade
		// cannot carry custom headers from a browser, so it relies on
		// the origin check instead.
		if strings.HasPrefix(r.URL.Path, "/api/") {
			key := r.Header.Get("X-API-Key")
			if subtle.ConstantTimeCompare([]byte(key), []byte(s.apiKey)) != 1 {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
		}
	}
	s.mux.ServeHTTP(w, r)
}

// isOriginAllowed checks if the origin matches any allowed origin pattern.
func (s *Server) isOriginAllowed(origin string) bool {
	for _, allowed := range s.allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func (s *Server) handleAPIVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

func (s *Server) handleAPIStatus(w http.ResponseWriter, r *http.Request) {
	bulbs, err := s.coord.Bulbs()
	if err != nil {
		s.logger.Error("list bulbs for status", "err", err)
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	online := 0
	for _, b := range bulbs {
		if b.Online {
			online++
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"version": s.version,
		"bulbs":   len(bulbs),
		"online":  online,
		"uptime":  time.Since(s.started).Round(time.Second).String(),
	})
}
