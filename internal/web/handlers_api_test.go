package web

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"wifiled-go-home/internal/coordinator"
	"wifiled-go-home/internal/discovery"
	"wifiled-go-home/internal/protocol"
	"wifiled-go-home/internal/store"
)

// stubController implements bulb.Controller, recording calls.
type stubController struct {
	mu       sync.Mutex
	calls    []string
	state    protocol.State
	stateErr error
}

func (c *stubController) record(call string) {
	c.mu.Lock()
	c.calls = append(c.calls, call)
	c.mu.Unlock()
}

func (c *stubController) callCount(call string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, got := range c.calls {
		if got == call {
			n++
		}
	}
	return n
}

func (c *stubController) SetPower(_ context.Context, ip string, on bool) error {
	c.record("power")
	return nil
}

func (c *stubController) SetColor(_ context.Context, ip string, r, g, b byte, persist bool) error {
	c.record("color")
	return nil
}

func (c *stubController) SetWarmWhite(_ context.Context, ip string, pct int, persist bool) error {
	c.record("white")
	return nil
}

func (c *stubController) SetPattern(_ context.Context, ip string, p protocol.Pattern, speed int) error {
	c.record("pattern")
	return nil
}

func (c *stubController) State(_ context.Context, ip string) (protocol.State, error) {
	c.record("state")
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.stateErr
}

func (c *stubController) Clock(_ context.Context, ip string) (protocol.Clock, error) {
	c.record("clock")
	return protocol.Clock{Year: 2024, Month: 6, Day: 15, Hour: 12, Minute: 30, Second: 45}, nil
}

func (c *stubController) SyncClock(_ context.Context, ip string, t time.Time) error {
	c.record("sync_clock")
	return nil
}

func (c *stubController) Timers(_ context.Context, ip string) ([]protocol.Timer, error) {
	c.record("timers")
	return make([]protocol.Timer, protocol.TimerSlots), nil
}

type stubScanner struct {
	devices []discovery.Device
}

func (s *stubScanner) Scan(ctx context.Context) ([]discovery.Device, error) {
	return s.devices, nil
}

func setupTestServer(t *testing.T, apiKey string) (*Server, *store.BoltStore, *stubController) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := store.NewBoltStore(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	stub := &stubController{state: protocol.State{
		Power: protocol.PowerOn,
		Mode:  protocol.ModeColor,
		Speed: 100,
		RGB:   [3]byte{255, 0, 0},
	}}
	events := coordinator.NewEventBus(logger)
	coord := coordinator.New(stub, &stubScanner{}, db, events, coordinator.Config{}, logger)

	var opts []ServerOption
	if apiKey != "" {
		opts = append(opts, WithAPIKey(apiKey))
	}
	srv := NewServer(coord, logger, opts...)
	t.Cleanup(func() { srv.Stop() })

	return srv, db, stub
}

func seedBulb(t *testing.T, db *store.BoltStore, ip, id string) {
	t.Helper()
	if err := db.SaveBulb(&store.Bulb{
		IP:     ip,
		ID:     id,
		Model:  "AK001-ZJ2101",
		Online: true,
	}); err != nil {
		t.Fatal(err)
	}
}

func TestAPIListBulbs(t *testing.T) {
	srv, db, _ := setupTestServer(t, "")
	seedBulb(t, db, "192.168.1.50", "A1")
	seedBulb(t, db, "192.168.1.51", "A2")

	req := httptest.NewRequest("GET", "/api/bulbs", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var bulbs []store.Bulb
	if err := json.NewDecoder(w.Body).Decode(&bulbs); err != nil {
		t.Fatal(err)
	}
	if len(bulbs) != 2 {
		t.Errorf("bulb count = %d, want 2", len(bulbs))
	}
}

func TestAPIListBulbsEmpty(t *testing.T) {
	srv, _, _ := setupTestServer(t, "")

	req := httptest.NewRequest("GET", "/api/bulbs", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if body := w.Body.String(); body != "[]\n" {
		t.Errorf("body = %q, want empty JSON array", body)
	}
}

func TestAPIGetBulb(t *testing.T) {
	srv, db, _ := setupTestServer(t, "")
	seedBulb(t, db, "192.168.1.50", "A1")

	req := httptest.NewRequest("GET", "/api/bulbs/192.168.1.50", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var b store.Bulb
	if err := json.NewDecoder(w.Body).Decode(&b); err != nil {
		t.Fatal(err)
	}
	if b.IP != "192.168.1.50" {
		t.Errorf("ip = %q", b.IP)
	}
}

func TestAPIGetBulbNotFound(t *testing.T) {
	srv, _, _ := setupTestServer(t, "")

	req := httptest.NewRequest("GET", "/api/bulbs/10.0.0.99", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestAPIRenameBulb(t *testing.T) {
	srv, db, _ := setupTestServer(t, "")
	seedBulb(t, db, "192.168.1.50", "A1")

	body := `{"friendly_name": "Kitchen Light"}`
	req := httptest.NewRequest("PUT", "/api/bulbs/192.168.1.50/name", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body = %s", w.Code, http.StatusOK, w.Body.String())
	}

	b, err := db.GetBulb("192.168.1.50")
	if err != nil {
		t.Fatal(err)
	}
	if b.FriendlyName != "Kitchen Light" {
		t.Errorf("stored friendly_name = %q, want Kitchen Light", b.FriendlyName)
	}

	// The bulb is now addressable by its friendly name too.
	req = httptest.NewRequest("GET", "/api/bulbs/"+url.PathEscape("Kitchen Light"), nil)
	w = httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("get by name: status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestAPIDeleteBulb(t *testing.T) {
	srv, db, _ := setupTestServer(t, "")
	seedBulb(t, db, "192.168.1.50", "A1")

	req := httptest.NewRequest("DELETE", "/api/bulbs/192.168.1.50", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	if _, err := db.GetBulb("192.168.1.50"); err == nil {
		t.Error("expected bulb to be deleted")
	}
}

func TestAPIPower(t *testing.T) {
	srv, db, stub := setupTestServer(t, "")
	seedBulb(t, db, "192.168.1.50", "A1")

	body := `{"on": true}`
	req := httptest.NewRequest("POST", "/api/bulbs/192.168.1.50/power", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body = %s", w.Code, http.StatusOK, w.Body.String())
	}
	if stub.callCount("power") != 1 {
		t.Errorf("power commands sent = %d, want 1", stub.callCount("power"))
	}
}

func TestAPIColor(t *testing.T) {
	srv, db, stub := setupTestServer(t, "")
	seedBulb(t, db, "192.168.1.50", "A1")

	body := `{"r": 255, "g": 128, "b": 0}`
	req := httptest.NewRequest("POST", "/api/bulbs/192.168.1.50/color", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body = %s", w.Code, http.StatusOK, w.Body.String())
	}
	if stub.callCount("color") != 1 {
		t.Errorf("color commands sent = %d, want 1", stub.callCount("color"))
	}
}

func TestAPIPatternValidation(t *testing.T) {
	srv, db, stub := setupTestServer(t, "")
	seedBulb(t, db, "192.168.1.50", "A1")

	body := `{"name": "NoSuchPattern", "speed": 50}`
	req := httptest.NewRequest("POST", "/api/bulbs/192.168.1.50/pattern", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if stub.callCount("pattern") != 0 {
		t.Error("invalid pattern reached the device")
	}

	body = `{"name": "SevenColorCrossFade", "speed": 50}`
	req = httptest.NewRequest("POST", "/api/bulbs/192.168.1.50/pattern", bytes.NewBufferString(body))
	w = httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body = %s", w.Code, http.StatusOK, w.Body.String())
	}
	if stub.callCount("pattern") != 1 {
		t.Errorf("pattern commands sent = %d, want 1", stub.callCount("pattern"))
	}
}

func TestAPIBulbState(t *testing.T) {
	srv, db, _ := setupTestServer(t, "")
	seedBulb(t, db, "192.168.1.50", "A1")

	req := httptest.NewRequest("GET", "/api/bulbs/192.168.1.50/state", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body = %s", w.Code, http.StatusOK, w.Body.String())
	}

	var view stateView
	if err := json.NewDecoder(w.Body).Decode(&view); err != nil {
		t.Fatal(err)
	}
	if view.Power != "on" || view.Mode != "color" || view.R != 255 {
		t.Errorf("state view = %+v", view)
	}
}

func TestAPIBulbClock(t *testing.T) {
	srv, db, _ := setupTestServer(t, "")
	seedBulb(t, db, "192.168.1.50", "A1")

	req := httptest.NewRequest("GET", "/api/bulbs/192.168.1.50/clock", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var view clockView
	if err := json.NewDecoder(w.Body).Decode(&view); err != nil {
		t.Fatal(err)
	}
	if view.Time != "2024-06-15 12:30:45" {
		t.Errorf("time = %q", view.Time)
	}
}

func TestAPIBulbTimers(t *testing.T) {
	srv, db, _ := setupTestServer(t, "")
	seedBulb(t, db, "192.168.1.50", "A1")

	req := httptest.NewRequest("GET", "/api/bulbs/192.168.1.50/timers", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var views []timerView
	if err := json.NewDecoder(w.Body).Decode(&views); err != nil {
		t.Fatal(err)
	}
	if len(views) != protocol.TimerSlots {
		t.Errorf("timer count = %d, want %d", len(views), protocol.TimerSlots)
	}
}

func TestAPISyncClock(t *testing.T) {
	srv, db, stub := setupTestServer(t, "")
	seedBulb(t, db, "192.168.1.50", "A1")

	req := httptest.NewRequest("POST", "/api/bulbs/192.168.1.50/clock/sync", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body = %s", w.Code, http.StatusOK, w.Body.String())
	}
	if stub.callCount("sync_clock") != 1 {
		t.Errorf("sync_clock commands sent = %d, want 1", stub.callCount("sync_clock"))
	}
}

func TestAPIPatterns(t *testing.T) {
	srv, _, _ := setupTestServer(t, "")

	req := httptest.NewRequest("GET", "/api/patterns", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var patterns []patternInfo
	if err := json.NewDecoder(w.Body).Decode(&patterns); err != nil {
		t.Fatal(err)
	}
	if len(patterns) != 20 {
		t.Errorf("pattern count = %d, want 20", len(patterns))
	}
	if patterns[0].Name != "SevenColorCrossFade" || patterns[0].Code != 0x25 {
		t.Errorf("first pattern = %+v", patterns[0])
	}
}

func TestAPIStatus(t *testing.T) {
	srv, db, _ := setupTestServer(t, "")
	seedBulb(t, db, "192.168.1.50", "A1")

	req := httptest.NewRequest("GET", "/api/status", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var status map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&status); err != nil {
		t.Fatal(err)
	}
	if status["bulbs"].(float64) != 1 {
		t.Errorf("bulbs = %v, want 1", status["bulbs"])
	}
	if status["online"].(float64) != 1 {
		t.Errorf("online = %v, want 1", status["online"])
	}
}

func TestAuthMiddleware(t *testing.T) {
	srv, _, _ := setupTestServer(t, "secret-key")

	req := httptest.NewRequest("GET", "/api/bulbs", nil)
	req.Header.Set("X-API-Key", "secret-key")
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("correct key: status = %d, want %d", w.Code, http.StatusOK)
	}

	req = httptest.NewRequest("GET", "/api/bulbs", nil)
	w = httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("missing key: status = %d, want %d", w.Code, http.StatusUnauthorized)
	}

	req = httptest.NewRequest("GET", "/api/bulbs", nil)
	req.Header.Set("X-API-Key", "wrong-key")
	w = httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong key: status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestCORSRejectsUnknownOrigin(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	db, err := store.NewBoltStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	events := coordinator.NewEventBus(logger)
	coord := coordinator.New(&stubController{}, &stubScanner{}, db, events, coordinator.Config{}, logger)
	srv := NewServer(coord, logger, WithAllowedOrigins([]string{"http://allowed.local"}))
	t.Cleanup(func() { srv.Stop() })

	req := httptest.NewRequest("POST", "/api/scan", nil)
	req.Header.Set("Origin", "http://evil.local")
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Errorf("unknown origin: status = %d, want %d", w.Code, http.StatusForbidden)
	}

	req = httptest.NewRequest("POST", "/api/scan", nil)
	req.Header.Set("Origin", "http://allowed.local")
	w = httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("allowed origin: status = %d, want %d, body = %s", w.Code, http.StatusOK, w.Body.String())
	}
}
