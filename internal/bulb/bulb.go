package bulb

import (
	"context"
	"time"

	"wifiled-go-home/internal/protocol"
)

// Controller is the command surface of a single LED controller,
// addressed by IP per call. Implemented by Client; the coordinator and
// tests accept this interface.
type Controller interface {
	SetPower(ctx context.Context, ip string, on bool) error
	SetColor(ctx context.Context, ip string, r, g, b byte, persist bool) error
	SetWarmWhite(ctx context.Context, ip string, pct int, persist bool) error
	SetPattern(ctx context.Context, ip string, p protocol.Pattern, speed int) error
	State(ctx context.Context, ip string) (protocol.State, error)
	Clock(ctx context.Context, ip string) (protocol.Clock, error)
	SyncClock(ctx context.Context, ip string, t time.Time) error
	Timers(ctx context.Context, ip string) ([]protocol.Timer, error)
}
