package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	"wifiled-go-home/internal/protocol"
)

// Device is a controller's self-identification from a discovery reply.
type Device struct {
	IP    string `json:"ip"`
	ID    string `json:"id"`
	Model string `json:"model"`
}

// Default scan timing. Sleeping controllers may need a longer window
// to wake up and answer, so both are configurable on the Scanner.
const (
	DefaultWindow      = 3000 * time.Millisecond
	DefaultReadTimeout = 1000 * time.Millisecond
)

// Scanner broadcasts the discovery probe on every broadcast-capable
// interface and collects replies. Scans are best-effort: a silent
// subnet returns an empty result, not an error, and results are never
// cached across calls.
type Scanner struct {
	window      time.Duration
	readTimeout time.Duration
	port        int
	broadcasts  func() ([]net.IP, error)
	logger      *slog.Logger
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithWindow sets the total listen window per socket.
func WithWindow(d time.Duration) Option {
	return func(s *Scanner) { s.window = d }
}

// WithReadTimeout sets the per-receive timeout inside the window.
func WithReadTimeout(d time.Duration) Option {
	return func(s *Scanner) { s.readTimeout = d }
}

// WithPort overrides the destination UDP port.
func WithPort(port int) Option {
	return func(s *Scanner) { s.port = port }
}

// WithTargets overrides interface enumeration with fixed destination
// addresses. Used by tests and for probing a known subnet directly.
func WithTargets(ips ...net.IP) Option {
	return func(s *Scanner) {
		s.broadcasts = func() ([]net.IP, error) { return ips, nil }
	}
}

// NewScanner creates a scanner with default timing.
func NewScanner(logger *slog.Logger, opts ...Option) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scanner{
		window:      DefaultWindow,
		readTimeout: DefaultReadTimeout,
		port:        protocol.DiscoveryPort,
		broadcasts:  broadcastAddrs,
		logger:      logger.With("component", "discovery"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan probes every broadcast address concurrently and returns the
// deduplicated, parsed replies collected within the window. Malformed
// replies are dropped, not errored. Replies from different interfaces
// for the same controller collapse to one entry.
func (s *Scanner) Scan(ctx context.Context) ([]Device, error) {
	addrs, err := s.broadcasts()
	if err != nil {
		return nil, fmt.Errorf("enumerate broadcast addresses: %w", err)
	}
	if len(addrs) == 0 {
		s.logger.Warn("no broadcast-capable interfaces found")
		return nil, nil
	}

	var (
		mu   sync.Mutex
		seen = make(map[string]struct{})
		wg   sync.WaitGroup
	)
	collect := func(raw string) {
		mu.Lock()
		seen[raw] = struct{}{}
		mu.Unlock()
	}

	for _, addr := range addrs {
		wg.Add(1)
		go func(addr net.IP) {
			defer wg.Done()
			if err := s.probe(ctx, addr, collect); err != nil {
				s.logger.Debug("probe failed", "broadcast", addr.String(), "err", err)
			}
		}(addr)
	}
	wg.Wait()

	devices := make([]Device, 0, len(seen))
	for raw := range seen {
		dev, err := parseReply(raw)
		if err != nil {
			s.logger.Debug("dropping malformed reply", "raw", raw, "err", err)
			continue
		}
		devices = append(devices, dev)
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].IP < devices[j].IP })

	s.logger.Info("scan complete", "devices", len(devices))
	return devices, nil
}

// probe sends the probe to one broadcast address and polls for replies
// until the window elapses. Receive timeouts inside the window are
// swallowed; the socket is closed on every exit path.
func (s *Scanner) probe(ctx context.Context, addr net.IP, collect func(string)) error {
	conn, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		return fmt.Errorf("open socket: %w", err)
	}
	defer conn.Close()

	dst := &net.UDPAddr{IP: addr, Port: s.port}
	if _, err := conn.WriteTo([]byte(protocol.DiscoveryProbe), dst); err != nil {
		return fmt.Errorf("send probe: %w", err)
	}

	deadline := time.Now().Add(s.window)
	buf := make([]byte, protocol.DiscoveryBufSize)
	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		step := s.readTimeout
		if remain := time.Until(deadline); remain < step {
			step = remain
		}
		if err := conn.SetReadDeadline(time.Now().Add(step)); err != nil {
			return err
		}
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
				continue
			}
			return err
		}
		if reply := stripNulls(string(buf[:n])); reply != "" {
			collect(reply)
		}
	}
	return nil
}

// stripNulls removes padding and embedded zero bytes from a reply.
func stripNulls(s string) string {
	return strings.Map(func(r rune) rune {
		if r == 0 {
			return -1
		}
		return r
	}, s)
}

// parseReply splits a raw reply into its three comma-separated fields.
func parseReply(raw string) (Device, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 3 {
		return Device{}, fmt.Errorf("want 3 fields, got %d", len(parts))
	}
	return Device{IP: parts[0], ID: parts[1], Model: parts[2]}, nil
}

// broadcastAddrs collects the IPv4 broadcast address of every
// interface that is up, broadcast-capable and not loopback.
func broadcastAddrs() ([]net.IP, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	var out []net.IP
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 ||
			iface.Flags&net.FlagLoopback != 0 ||
			iface.Flags&net.FlagBroadcast == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipnet.IP.To4()
			if ip4 == nil {
				continue
			}
			mask := ipnet.Mask
			if len(mask) == net.IPv6len {
				mask = mask[12:]
			}
			bcast := make(net.IP, net.IPv4len)
			for i := range bcast {
				bcast[i] = ip4[i] | ^mask[i]
			}
			out = append(out, bcast)
		}
	}
	return out, nil
}
