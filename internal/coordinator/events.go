package coordinator

import (
	"log/slog"
	"sync"

	"wifiled-go-home/internal/store"
)

// Event types. Bulb lifecycle events carry a *store.Bulb payload;
// state_update and scan_done carry a map payload (see Event).
const (
	EventBulbFound   = "bulb_found"   // new bulb discovered on the LAN
	EventBulbOnline  = "bulb_online"  // bulb answered after being offline
	EventBulbOffline = "bulb_offline" // consecutive poll failures crossed the threshold
	EventBulbRenamed = "bulb_renamed"
	EventBulbRemoved = "bulb_removed"
	EventStateUpdate = "state_update" // map with "ip", "name" and snapshot fields
	EventScanDone    = "scan_done"    // map with "found"
)

// Event is a single coordinator notification. Data is either a
// *store.Bulb or a map[string]interface{}, depending on Type.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// EventHandler is a callback for events.
type EventHandler func(Event)

// EventBus fans coordinator events out to the web socket hub, the MQTT
// bridge and Lua scripts.
type EventBus struct {
	mu          sync.RWMutex
	handlers    map[string]map[uint64]EventHandler
	allHandlers map[uint64]EventHandler
	nextID      uint64
	logger      *slog.Logger
}

// NewEventBus creates a new event bus.
func NewEventBus(logger *slog.Logger) *EventBus {
	return &EventBus{
		handlers:    make(map[string]map[uint64]EventHandler),
		allHandlers: make(map[uint64]EventHandler),
		logger:      logger,
	}
}

// On registers a handler for a specific event type.
// Returns an unsubscribe function.
func (eb *EventBus) On(eventType string, handler EventHandler) func() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	id := eb.nextID
	eb.nextID++
	if eb.handlers[eventType] == nil {
		eb.handlers[eventType] = make(map[uint64]EventHandler)
	}
	eb.handlers[eventType][id] = handler
	return func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()
		delete(eb.handlers[eventType], id)
	}
}

// OnAll registers a handler that receives all events.
// Returns an unsubscribe function.
func (eb *EventBus) OnAll(handler EventHandler) func() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	id := eb.nextID
	eb.nextID++
	eb.allHandlers[id] = handler
	return func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()
		delete(eb.allHandlers, id)
	}
}

// EmitBulb emits a bulb lifecycle event.
func (eb *EventBus) EmitBulb(eventType string, b *store.Bulb) {
	eb.Emit(Event{Type: eventType, Data: b})
}

// Emit sends an event to all matching handlers.
// Handlers are called synchronously; a panicking handler is recovered.
func (eb *EventBus) Emit(event Event) {
	eb.mu.RLock()
	handlers := make([]EventHandler, 0, len(eb.handlers[event.Type])+len(eb.allHandlers))
	for _, h := range eb.handlers[event.Type] {
		handlers = append(handlers, h)
	}
	for _, h := range eb.allHandlers {
		handlers = append(handlers, h)
	}
	eb.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					eb.logger.Error("event handler panic", "type", event.Type, "panic", r)
				}
			}()
			h(event)
		}()
	}
}
