package store

import "time"

// Bulb is a known LED controller, keyed by IP address.
type Bulb struct {
	IP           string         `json:"ip"`
	ID           string         `json:"id"`
	Model        string         `json:"model,omitempty"`
	FriendlyName string         `json:"friendly_name,omitempty"`
	Online       bool           `json:"online"`
	FirstSeen    time.Time      `json:"first_seen"`
	LastSeen     time.Time      `json:"last_seen"`
	LastState    *StateSnapshot `json:"last_state,omitempty"`
}

// StateSnapshot is the last successfully decoded state of a bulb.
type StateSnapshot struct {
	Power        string    `json:"power"`
	Mode         string    `json:"mode"`
	Speed        int       `json:"speed"`
	R            uint8     `json:"r"`
	G            uint8     `json:"g"`
	B            uint8     `json:"b"`
	WarmWhitePct int       `json:"warm_white_pct"`
	Pattern      string    `json:"pattern,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Equal compares the device-visible fields, ignoring UpdatedAt, so
// pollers can detect real state changes.
func (s *StateSnapshot) Equal(o *StateSnapshot) bool {
	if s == nil || o == nil {
		return s == o
	}
	return s.Power == o.Power &&
		s.Mode == o.Mode &&
		s.Speed == o.Speed &&
		s.R == o.R && s.G == o.G && s.B == o.B &&
		s.WarmWhitePct == o.WarmWhitePct &&
		s.Pattern == o.Pattern
}

// DisplayName returns the friendly name when set, the IP otherwise.
func (b *Bulb) DisplayName() string {
	if b.FriendlyName != "" {
		return b.FriendlyName
	}
	return b.IP
}
