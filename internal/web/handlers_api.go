package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"wifiled-go-home/internal/protocol"
	"wifiled-go-home/internal/store"
)

// stateView is the JSON rendering of a live state query.
type stateView struct {
	Power        string `json:"power"`
	Mode         string `json:"mode"`
	Speed        int    `json:"speed"`
	R            uint8  `json:"r"`
	G            uint8  `json:"g"`
	B            uint8  `json:"b"`
	WarmWhitePct int    `json:"warm_white_pct"`
	Pattern      string `json:"pattern,omitempty"`
}

func toStateView(st protocol.State) stateView {
	v := stateView{
		Power:        st.Power.String(),
		Mode:         st.Mode.String(),
		Speed:        st.Speed,
		R:            st.RGB[0],
		G:            st.RGB[1],
		B:            st.RGB[2],
		WarmWhitePct: st.WarmWhitePct,
	}
	if st.Mode == protocol.ModePreset {
		v.Pattern = st.Pattern.String()
	}
	return v
}

// timerView is the JSON rendering of one timer slot.
type timerView struct {
	Active     bool   `json:"active"`
	Year       int    `json:"year"`
	Month      int    `json:"month"`
	Day        int    `json:"day"`
	Hour       int    `json:"hour"`
	Minute     int    `json:"minute"`
	RepeatMask byte   `json:"repeat_mask"`
	Mode       string `json:"mode"`
	Pattern    string `json:"pattern,omitempty"`
	R          uint8  `json:"r"`
	G          uint8  `json:"g"`
	B          uint8  `json:"b"`
	Delay      byte   `json:"delay"`
}

func toTimerView(t protocol.Timer) timerView {
	v := timerView{
		Active:     t.Active,
		Year:       t.Year,
		Month:      t.Month,
		Day:        t.Day,
		Hour:       t.Hour,
		Minute:     t.Minute,
		RepeatMask: t.RepeatMask,
		Mode:       t.Mode.String(),
		R:          t.RGB[0],
		G:          t.RGB[1],
		B:          t.RGB[2],
		Delay:      t.Delay,
	}
	if t.Mode == protocol.TimerModePreset {
		v.Pattern = t.Pattern.String()
	}
	return v
}

// clockView is the JSON rendering of a clock query.
type clockView struct {
	Year   int    `json:"year"`
	Month  int    `json:"month"`
	Day    int    `json:"day"`
	Hour   int    `json:"hour"`
	Minute int    `json:"minute"`
	Second int    `json:"second"`
	Time   string `json:"time"`
}

func toClockView(c protocol.Clock) clockView {
	return clockView{
		Year:   c.Year,
		Month:  c.Month,
		Day:    c.Day,
		Hour:   c.Hour,
		Minute: c.Minute,
		Second: c.Second,
		Time:   c.String(),
	}
}

// bulbError maps a coordinator error to a JSON response: unknown bulbs
// are 404, everything else is a device failure reported as 502.
func (s *Server) bulbError(w http.ResponseWriter, op, ip string, err error) {
	if errors.Is(err, store.ErrNotFound) {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "bulb not found"})
		return
	}
	s.logger.Error(op, "bulb", ip, "err", err)
	s.writeJSON(w, http.StatusBadGateway, map[string]string{"error": op + " failed"})
}

func (s *Server) handleAPIListBulbs(w http.ResponseWriter, r *http.Request) {
	bulbs, err := s.coord.Bulbs()
	if err != nil {
		s.logger.Error("list bulbs", "err", err)
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	if bulbs == nil {
		bulbs = []*store.Bulb{}
	}
	s.writeJSON(w, http.StatusOK, bulbs)
}

func (s *Server) handleAPIGetBulb(w http.ResponseWriter, r *http.Request) {
	ip := r.PathValue("ip")
	b, err := s.coord.Bulb(ip)
	if err != nil {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "bulb not found"})
		return
	}
	s.writeJSON(w, http.StatusOK, b)
}

type renameBulbRequest struct {
	FriendlyName string `json:"friendly_name"`
}

func (s *Server) handleAPIRenameBulb(w http.ResponseWriter, r *http.Request) {
	ip := r.PathValue("ip")
	b, err := s.coord.Bulb(ip)
	if err != nil {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "bulb not found"})
		return
	}

	var req renameBulbRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if err := s.coord.Rename(b.IP, req.FriendlyName); err != nil {
		s.logger.Error("rename bulb", "ip", b.IP, "err", err)
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "friendly_name": req.FriendlyName})
}

func (s *Server) handleAPIDeleteBulb(w http.ResponseWriter, r *http.Request) {
	ip := r.PathValue("ip")
	b, err := s.coord.Bulb(ip)
	if err != nil {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "bulb not found"})
		return
	}
	if err := s.coord.Remove(b.IP); err != nil {
		s.logger.Error("delete bulb", "ip", b.IP, "err", err)
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAPIBulbState(w http.ResponseWriter, r *http.Request) {
	ip := r.PathValue("ip")
	st, err := s.coord.State(r.Context(), ip)
	if err != nil {
		s.bulbError(w, "query state", ip, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toStateView(st))
}

func (s *Server) handleAPIBulbTimers(w http.ResponseWriter, r *http.Request) {
	ip := r.PathValue("ip")
	timers, err := s.coord.Timers(r.Context(), ip)
	if err != nil {
		s.bulbError(w, "query timers", ip, err)
		return
	}
	views := make([]timerView, len(timers))
	for i, t := range timers {
		views[i] = toTimerView(t)
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleAPIBulbClock(w http.ResponseWriter, r *http.Request) {
	ip := r.PathValue("ip")
	c, err := s.coord.Clock(r.Context(), ip)
	if err != nil {
		s.bulbError(w, "query clock", ip, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toClockView(c))
}

type powerRequest struct {
	On bool `json:"on"`
}

func (s *Server) handleAPIPower(w http.ResponseWriter, r *http.Request) {
	ip := r.PathValue("ip")

	var req powerRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if err := s.coord.SetPower(r.Context(), ip, req.On); err != nil {
		s.bulbError(w, "set power", ip, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type colorRequest struct {
	R       uint8 `json:"r"`
	G       uint8 `json:"g"`
	B       uint8 `json:"b"`
	Persist *bool `json:"persist,omitempty"`
}

func (s *Server) handleAPIColor(w http.ResponseWriter, r *http.Request) {
	ip := r.PathValue("ip")

	var req colorRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	persist := req.Persist == nil || *req.Persist

	if err := s.coord.SetColor(r.Context(), ip, req.R, req.G, req.B, persist); err != nil {
		s.bulbError(w, "set color", ip, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type whiteRequest struct {
	Percent int   `json:"percent"`
	Persist *bool `json:"persist,omitempty"`
}

func (s *Server) handleAPIWhite(w http.ResponseWriter, r *http.Request) {
	ip := r.PathValue("ip")

	var req whiteRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	persist := req.Persist == nil || *req.Persist

	if err := s.coord.SetWarmWhite(r.Context(), ip, req.Percent, persist); err != nil {
		s.bulbError(w, "set white", ip, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type patternRequest struct {
	Name  string `json:"name"`
	Speed int    `json:"speed"`
}

func (s *Server) handleAPIPattern(w http.ResponseWriter, r *http.Request) {
	ip := r.PathValue("ip")

	var req patternRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if _, ok := protocol.PatternByName(req.Name); !ok {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown pattern"})
		return
	}

	if err := s.coord.SetPattern(r.Context(), ip, req.Name, req.Speed); err != nil {
		s.bulbError(w, "set pattern", ip, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAPISyncClock(w http.ResponseWriter, r *http.Request) {
	ip := r.PathValue("ip")
	if err := s.coord.SyncClock(r.Context(), ip); err != nil {
		s.bulbError(w, "sync clock", ip, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAPIScan(w http.ResponseWriter, r *http.Request) {
	devices, err := s.coord.Scan(r.Context())
	if err != nil {
		s.logger.Error("scan", "err", err)
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "scan failed"})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"found": len(devices), "devices": devices})
}

type patternInfo struct {
	Code byte   `json:"code"`
	Name string `json:"name"`
}

func (s *Server) handleAPIPatterns(w http.ResponseWriter, r *http.Request) {
	patterns := protocol.Patterns()
	infos := make([]patternInfo, len(patterns))
	for i, p := range patterns {
		infos[i] = patternInfo{Code: byte(p), Name: p.String()}
	}
	s.writeJSON(w, http.StatusOK, infos)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("writeJSON encode failed", "err", err)
	}
}
