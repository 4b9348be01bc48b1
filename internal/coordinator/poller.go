package coordinator

import (
	"context"
	"time"

	"wifiled-go-home/internal/protocol"
	"wifiled-go-home/internal/store"
)

// pollLoop queries every known bulb on each tick. State changes emit
// state_update; repeated failures flip the bulb offline.
func (c *Coordinator) pollLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.pollAll()
		}
	}
}

func (c *Coordinator) pollAll() {
	bulbs, err := c.store.ListBulbs()
	if err != nil {
		c.logger.Error("list bulbs", "err", err)
		return
	}
	for _, b := range bulbs {
		if c.ctx.Err() != nil {
			return
		}
		c.pollOne(b.IP)
	}
}

func (c *Coordinator) pollOne(ip string) {
	lock := c.bulbLock(ip)
	lock.Lock()
	defer lock.Unlock()

	ctx, cancel := context.WithTimeout(c.ctx, c.config.CommandTimeout)
	defer cancel()
	st, err := c.client.State(ctx, ip)
	if err != nil {
		c.logger.Debug("poll failed", "ip", ip, "err", err)
		c.noteFailure(ip)
		return
	}
	c.noteSuccess(ip, &st)
}

// rescanLoop periodically repeats discovery so bulbs added to the
// network show up without a manual scan.
func (c *Coordinator) rescanLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.config.RescanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.Scan(c.ctx); err != nil {
				c.logger.Warn("rescan failed", "err", err)
			}
		}
	}
}

// noteSuccess records a fresh state snapshot, clears the failure count
// and emits state_update / bulb_online events as warranted.
func (c *Coordinator) noteSuccess(ip string, st *protocol.State) {
	c.resetFailures(ip)

	snap := snapshotOf(st)
	var changed, cameOnline bool
	var name string
	err := c.store.UpdateBulb(ip, func(b *store.Bulb) error {
		changed = !snap.Equal(b.LastState)
		cameOnline = !b.Online
		b.Online = true
		b.LastSeen = snap.UpdatedAt
		b.LastState = snap
		name = b.DisplayName()
		return nil
	})
	if err != nil {
		c.logger.Error("record state", "ip", ip, "err", err)
		return
	}
	if cameOnline {
		c.emitOnline(ip)
	}
	if changed {
		c.events.Emit(Event{Type: EventStateUpdate, Data: map[string]interface{}{
			"ip":    ip,
			"name":  name,
			"state": snap,
		}})
	}
}

// noteFailure bumps the consecutive failure count and marks the bulb
// offline once the threshold is crossed.
func (c *Coordinator) noteFailure(ip string) {
	c.mu.Lock()
	c.failures[ip]++
	n := c.failures[ip]
	c.mu.Unlock()

	if n != c.config.OfflineThreshold {
		return
	}
	err := c.store.UpdateBulb(ip, func(b *store.Bulb) error {
		b.Online = false
		return nil
	})
	if err != nil {
		c.logger.Error("mark offline", "ip", ip, "err", err)
		return
	}
	c.logger.Info("bulb offline", "ip", ip, "failures", n)
	b, err := c.store.GetBulb(ip)
	if err != nil {
		return
	}
	c.events.EmitBulb(EventBulbOffline, b)
}

func (c *Coordinator) resetFailures(ip string) {
	c.mu.Lock()
	delete(c.failures, ip)
	c.mu.Unlock()
}

func (c *Coordinator) emitOnline(ip string) {
	b, err := c.store.GetBulb(ip)
	if err != nil {
		return
	}
	c.logger.Info("bulb online", "ip", ip)
	c.events.EmitBulb(EventBulbOnline, b)
}

// snapshotOf converts a decoded state into its stored form.
func snapshotOf(st *protocol.State) *store.StateSnapshot {
	snap := &store.StateSnapshot{
		Power:        st.Power.String(),
		Mode:         st.Mode.String(),
		Speed:        st.Speed,
		R:            st.RGB[0],
		G:            st.RGB[1],
		B:            st.RGB[2],
		WarmWhitePct: st.WarmWhitePct,
		UpdatedAt:    time.Now(),
	}
	if st.Mode == protocol.ModePreset {
		snap.Pattern = st.Pattern.String()
	}
	return snap
}
