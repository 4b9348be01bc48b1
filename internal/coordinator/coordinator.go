package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"wifiled-go-home/internal/bulb"
	"wifiled-go-home/internal/discovery"
	"wifiled-go-home/internal/protocol"
	"wifiled-go-home/internal/store"
)

// Scanner finds controllers on the local network.
type Scanner interface {
	Scan(ctx context.Context) ([]discovery.Device, error)
}

// Config holds coordinator configuration.
type Config struct {
	// PollInterval is how often known bulbs are polled for state.
	// Zero disables polling.
	PollInterval time.Duration
	// RescanInterval is how often the network is rescanned for new
	// bulbs. Zero disables periodic rescans.
	RescanInterval time.Duration
	// OfflineThreshold is the number of consecutive failed polls after
	// which a bulb is marked offline.
	OfflineThreshold int
	// CommandTimeout bounds each device call issued by the coordinator.
	CommandTimeout time.Duration
}

const (
	defaultOfflineThreshold = 3
	defaultCommandTimeout   = 3 * time.Second
)

// Coordinator owns the bulb registry: it merges discovery results into
// the store, polls bulbs for state, tracks online/offline transitions
// and exposes the typed command operations. One command at a time is
// sent to a given bulb; the per-bulb lock provides the serialization
// the sessionless device client deliberately leaves to its caller.
type Coordinator struct {
	client  bulb.Controller
	scanner Scanner
	store   store.Store
	events  *EventBus
	logger  *slog.Logger
	config  Config

	mu       sync.Mutex
	failures map[string]int         // consecutive poll failures per IP
	locks    map[string]*sync.Mutex // per-bulb command serialization

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a coordinator.
func New(client bulb.Controller, scanner Scanner, st store.Store, events *EventBus, cfg Config, logger *slog.Logger) *Coordinator {
	if cfg.OfflineThreshold <= 0 {
		cfg.OfflineThreshold = defaultOfflineThreshold
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = defaultCommandTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		client:   client,
		scanner:  scanner,
		store:    st,
		events:   events,
		logger:   logger,
		config:   cfg,
		failures: make(map[string]int),
		locks:    make(map[string]*sync.Mutex),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Context returns the coordinator's context, which is cancelled on Stop().
func (c *Coordinator) Context() context.Context {
	return c.ctx
}

// Store returns the store.
func (c *Coordinator) Store() store.Store {
	return c.store
}

// Events returns the event bus.
func (c *Coordinator) Events() *EventBus {
	return c.events
}

// Start runs an initial scan and launches the poll and rescan loops.
func (c *Coordinator) Start() error {
	if _, err := c.Scan(c.ctx); err != nil {
		// A failed initial scan is not fatal: known bulbs from the
		// store are still pollable.
		c.logger.Warn("initial scan failed", "err", err)
	}

	if c.config.PollInterval > 0 {
		c.wg.Add(1)
		go c.pollLoop()
	}
	if c.config.RescanInterval > 0 {
		c.wg.Add(1)
		go c.rescanLoop()
	}
	return nil
}

// Stop cancels background loops and waits for them to finish.
func (c *Coordinator) Stop() {
	c.cancel()
	c.wg.Wait()
}

// Scan probes the network and merges results into the registry. New
// bulbs emit bulb_found; known bulbs are marked online and refreshed.
func (c *Coordinator) Scan(ctx context.Context) ([]discovery.Device, error) {
	devices, err := c.scanner.Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}

	now := time.Now()
	for _, dev := range devices {
		existing, err := c.store.GetBulb(dev.IP)
		switch {
		case errors.Is(err, store.ErrNotFound):
			b := &store.Bulb{
				IP:        dev.IP,
				ID:        dev.ID,
				Model:     dev.Model,
				Online:    true,
				FirstSeen: now,
				LastSeen:  now,
			}
			if err := c.store.SaveBulb(b); err != nil {
				c.logger.Error("save bulb", "ip", dev.IP, "err", err)
				continue
			}
			c.logger.Info("bulb found", "ip", dev.IP, "id", dev.ID, "model", dev.Model)
			c.events.EmitBulb(EventBulbFound, b)
		case err != nil:
			c.logger.Error("get bulb", "ip", dev.IP, "err", err)
		default:
			wasOffline := !existing.Online
			err := c.store.UpdateBulb(dev.IP, func(b *store.Bulb) error {
				b.ID = dev.ID
				b.Model = dev.Model
				b.Online = true
				b.LastSeen = now
				return nil
			})
			if err != nil {
				c.logger.Error("update bulb", "ip", dev.IP, "err", err)
				continue
			}
			c.resetFailures(dev.IP)
			if wasOffline {
				c.emitOnline(dev.IP)
			}
		}
	}

	c.events.Emit(Event{Type: EventScanDone, Data: map[string]interface{}{"found": len(devices)}})
	return devices, nil
}

// Bulbs lists all known bulbs.
func (c *Coordinator) Bulbs() ([]*store.Bulb, error) {
	return c.store.ListBulbs()
}

// Bulb resolves an IP or friendly name to a stored bulb.
func (c *Coordinator) Bulb(ipOrName string) (*store.Bulb, error) {
	b, err := c.store.GetBulb(ipOrName)
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	bulbs, err := c.store.ListBulbs()
	if err != nil {
		return nil, err
	}
	for _, b := range bulbs {
		if b.FriendlyName == ipOrName {
			return b, nil
		}
	}
	return nil, fmt.Errorf("bulb %s: %w", ipOrName, store.ErrNotFound)
}

// Rename sets a bulb's friendly name.
func (c *Coordinator) Rename(ip, name string) error {
	err := c.store.UpdateBulb(ip, func(b *store.Bulb) error {
		b.FriendlyName = name
		return nil
	})
	if err != nil {
		return err
	}
	b, err := c.store.GetBulb(ip)
	if err != nil {
		return err
	}
	c.events.EmitBulb(EventBulbRenamed, b)
	return nil
}

// Remove deletes a bulb from the registry. It reappears on the next
// scan if still on the network.
func (c *Coordinator) Remove(ip string) error {
	b, err := c.store.GetBulb(ip)
	if err != nil {
		return err
	}
	if err := c.store.DeleteBulb(ip); err != nil {
		return err
	}
	c.resetFailures(ip)
	c.events.EmitBulb(EventBulbRemoved, b)
	return nil
}

// SetPower switches a bulb on or off.
func (c *Coordinator) SetPower(ctx context.Context, ipOrName string, on bool) error {
	return c.command(ctx, ipOrName, func(ctx context.Context, ip string) error {
		return c.client.SetPower(ctx, ip, on)
	})
}

// SetColor sets a static RGB color.
func (c *Coordinator) SetColor(ctx context.Context, ipOrName string, r, g, b byte, persist bool) error {
	return c.command(ctx, ipOrName, func(ctx context.Context, ip string) error {
		return c.client.SetColor(ctx, ip, r, g, b, persist)
	})
}

// SetWarmWhite sets warm-white output at the given percentage.
func (c *Coordinator) SetWarmWhite(ctx context.Context, ipOrName string, pct int, persist bool) error {
	return c.command(ctx, ipOrName, func(ctx context.Context, ip string) error {
		return c.client.SetWarmWhite(ctx, ip, pct, persist)
	})
}

// SetPattern starts a built-in pattern by name at the given speed.
func (c *Coordinator) SetPattern(ctx context.Context, ipOrName, name string, speed int) error {
	p, ok := protocol.PatternByName(name)
	if !ok {
		return fmt.Errorf("unknown pattern %q", name)
	}
	return c.command(ctx, ipOrName, func(ctx context.Context, ip string) error {
		return c.client.SetPattern(ctx, ip, p, speed)
	})
}

// SyncClock sets a bulb's clock to the host's current local time.
func (c *Coordinator) SyncClock(ctx context.Context, ipOrName string) error {
	return c.commandNoRefresh(ctx, ipOrName, func(ctx context.Context, ip string) error {
		return c.client.SyncClock(ctx, ip, time.Now())
	})
}

// State queries a bulb's live state and records the snapshot.
func (c *Coordinator) State(ctx context.Context, ipOrName string) (protocol.State, error) {
	b, err := c.Bulb(ipOrName)
	if err != nil {
		return protocol.State{}, err
	}
	lock := c.bulbLock(b.IP)
	lock.Lock()
	defer lock.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.config.CommandTimeout)
	defer cancel()
	st, err := c.client.State(ctx, b.IP)
	if err != nil {
		c.noteFailure(b.IP)
		return protocol.State{}, err
	}
	c.noteSuccess(b.IP, &st)
	return st, nil
}

// Clock queries a bulb's clock.
func (c *Coordinator) Clock(ctx context.Context, ipOrName string) (protocol.Clock, error) {
	b, err := c.Bulb(ipOrName)
	if err != nil {
		return protocol.Clock{}, err
	}
	lock := c.bulbLock(b.IP)
	lock.Lock()
	defer lock.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.config.CommandTimeout)
	defer cancel()
	return c.client.Clock(ctx, b.IP)
}

// Timers queries a bulb's six-slot timer table.
func (c *Coordinator) Timers(ctx context.Context, ipOrName string) ([]protocol.Timer, error) {
	b, err := c.Bulb(ipOrName)
	if err != nil {
		return nil, err
	}
	lock := c.bulbLock(b.IP)
	lock.Lock()
	defer lock.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.config.CommandTimeout)
	defer cancel()
	return c.client.Timers(ctx, b.IP)
}

// command resolves the bulb, serializes against other commands to the
// same bulb, runs fn and refreshes the state snapshot afterwards so
// events reflect the device's own view of the change.
func (c *Coordinator) command(ctx context.Context, ipOrName string, fn func(ctx context.Context, ip string) error) error {
	b, err := c.Bulb(ipOrName)
	if err != nil {
		return err
	}
	lock := c.bulbLock(b.IP)
	lock.Lock()
	defer lock.Unlock()

	cctx, cancel := context.WithTimeout(ctx, c.config.CommandTimeout)
	defer cancel()
	if err := fn(cctx, b.IP); err != nil {
		c.noteFailure(b.IP)
		return err
	}

	// Best-effort state refresh; the command itself already succeeded.
	rctx, rcancel := context.WithTimeout(ctx, c.config.CommandTimeout)
	defer rcancel()
	if st, err := c.client.State(rctx, b.IP); err == nil {
		c.noteSuccess(b.IP, &st)
	} else {
		c.logger.Debug("post-command state refresh failed", "ip", b.IP, "err", err)
	}
	return nil
}

func (c *Coordinator) commandNoRefresh(ctx context.Context, ipOrName string, fn func(ctx context.Context, ip string) error) error {
	b, err := c.Bulb(ipOrName)
	if err != nil {
		return err
	}
	lock := c.bulbLock(b.IP)
	lock.Lock()
	defer lock.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.config.CommandTimeout)
	defer cancel()
	if err := fn(ctx, b.IP); err != nil {
		c.noteFailure(b.IP)
		return err
	}
	return nil
}

func (c *Coordinator) bulbLock(ip string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.locks[ip]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[ip] = lock
	}
	return lock
}
