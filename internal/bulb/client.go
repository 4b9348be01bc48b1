package bulb

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"time"

	"wifiled-go-home/internal/protocol"
)

// DefaultTimeout bounds connect, write and read per call.
const DefaultTimeout = 1000 * time.Millisecond

// Client sends commands to controllers over short-lived TCP
// connections: one connect/command/close cycle per call, no session
// reuse and no retry. Callers that need one-command-at-a-time
// discipline per device must serialize above this layer.
type Client struct {
	port    int
	timeout time.Duration
	logger  *slog.Logger
}

// NewClient creates a client. port and timeout fall back to
// protocol.DefaultPort and DefaultTimeout when zero.
func NewClient(port int, timeout time.Duration, logger *slog.Logger) *Client {
	if port == 0 {
		port = protocol.DefaultPort
	}
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{port: port, timeout: timeout, logger: logger.With("component", "bulb")}
}

// Execute frames op, sends it to ip and, when respLen > 0, reads
// exactly respLen bytes back. The reply has no delimiter; reads loop
// until the expected length is satisfied or the deadline expires.
// Timeouts and connection failures are surfaced to the caller, never
// retried here.
func (c *Client) Execute(ctx context.Context, ip string, op []byte, respLen int) ([]byte, error) {
	addr := net.JoinHostPort(ip, strconv.Itoa(c.port))
	d := net.Dialer{Timeout: c.timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", addr, err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return nil, fmt.Errorf("set deadline: %w", err)
	}

	frame := protocol.Frame(op)
	c.logger.Debug("send", "ip", ip, "frame", fmt.Sprintf("% X", frame))
	if _, err := conn.Write(frame); err != nil {
		return nil, fmt.Errorf("write %s: %w", addr, err)
	}
	if respLen == 0 {
		return nil, nil
	}

	buf := make([]byte, respLen)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return nil, fmt.Errorf("read %s: %w", addr, err)
	}
	c.logger.Debug("recv", "ip", ip, "reply", fmt.Sprintf("% X", buf))
	return buf, nil
}

// SetPower switches the controller on or off.
func (c *Client) SetPower(ctx context.Context, ip string, on bool) error {
	op := protocol.SetPowerOff()
	if on {
		op = protocol.SetPowerOn()
	}
	_, err := c.Execute(ctx, ip, op, 0)
	return err
}

// SetColor sets a static RGB color.
func (c *Client) SetColor(ctx context.Context, ip string, r, g, b byte, persist bool) error {
	_, err := c.Execute(ctx, ip, protocol.SetColor(r, g, b, persist), 0)
	return err
}

// SetWarmWhite sets warm-white output at the given percentage.
func (c *Client) SetWarmWhite(ctx context.Context, ip string, pct int, persist bool) error {
	_, err := c.Execute(ctx, ip, protocol.SetWarmWhite(pct, persist), 0)
	return err
}

// SetPattern starts a built-in pattern at the given speed.
func (c *Client) SetPattern(ctx context.Context, ip string, p protocol.Pattern, speed int) error {
	_, err := c.Execute(ctx, ip, protocol.SetPattern(p, speed), 0)
	return err
}

// State queries and decodes the controller state.
func (c *Client) State(ctx context.Context, ip string) (protocol.State, error) {
	buf, err := c.Execute(ctx, ip, protocol.QueryState(), protocol.StateReplyLen)
	if err != nil {
		return protocol.State{}, err
	}
	return protocol.DecodeState(buf)
}

// Clock queries and decodes the controller clock.
func (c *Client) Clock(ctx context.Context, ip string) (protocol.Clock, error) {
	buf, err := c.Execute(ctx, ip, protocol.QueryClock(), protocol.ClockReplyLen)
	if err != nil {
		return protocol.Clock{}, err
	}
	return protocol.DecodeClock(buf)
}

// SyncClock sets the controller clock to t.
func (c *Client) SyncClock(ctx context.Context, ip string, t time.Time) error {
	_, err := c.Execute(ctx, ip, protocol.SetClock(t), 0)
	return err
}

// Timers queries and decodes the six-slot timer table.
func (c *Client) Timers(ctx context.Context, ip string) ([]protocol.Timer, error) {
	buf, err := c.Execute(ctx, ip, protocol.QueryTimers(), protocol.TimerReplyLen)
	if err != nil {
		return nil, err
	}
	return protocol.DecodeTimers(buf)
}
