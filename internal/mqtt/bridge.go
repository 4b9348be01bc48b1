//go:build !no_mqtt

package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"wifiled-go-home/internal/coordinator"
	"wifiled-go-home/internal/protocol"
	"wifiled-go-home/internal/store"
)

// Config holds MQTT bridge configuration.
type Config struct {
	Broker      string
	Username    string
	Password    string
	TopicPrefix string
}

// defaultEffectSpeed is used when a command selects an effect without
// giving a speed.
const defaultEffectSpeed = 50

// Bridge connects the bulb coordinator to MQTT with HA autodiscovery.
type Bridge struct {
	client pahomqtt.Client
	coord  *coordinator.Coordinator
	prefix string
	logger *slog.Logger
	unsub  func()
	ctx    context.Context
	cancel context.CancelFunc
}

// NewBridge creates and connects an MQTT bridge.
func NewBridge(coord *coordinator.Coordinator, cfg Config, logger *slog.Logger) (*Bridge, error) {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		coord:  coord,
		prefix: cfg.TopicPrefix,
		logger: logger.With("component", "mqtt"),
		ctx:    ctx,
		cancel: cancel,
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID("wifiled-go-home").
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWill(cfg.TopicPrefix+"/bridge/state", "offline", 1, true).
		SetOnConnectHandler(func(_ pahomqtt.Client) {
			b.logger.Info("MQTT connected")
			b.publishBridgeState("online")
			b.publishAllBulbs()
		}).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			b.logger.Warn("MQTT connection lost", "err", err)
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		cancel()
		return nil, fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		cancel()
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}

	b.client = client
	return b, nil
}

// Start subscribes to coordinator events and begins MQTT publishing.
func (b *Bridge) Start() {
	b.unsub = b.coord.Events().OnAll(b.handleEvent)
	b.logger.Info("MQTT bridge started", "prefix", b.prefix)
}

// Stop publishes offline state, unsubscribes, and disconnects.
func (b *Bridge) Stop() {
	b.cancel()
	if b.unsub != nil {
		b.unsub()
	}
	b.publishBridgeState("offline")
	b.client.Disconnect(1000)
	b.logger.Info("MQTT bridge stopped")
}

func (b *Bridge) handleEvent(event coordinator.Event) {
	switch event.Type {
	case coordinator.EventBulbFound, coordinator.EventBulbRenamed:
		bulb, ok := event.Data.(*store.Bulb)
		if !ok {
			return
		}
		b.publishBulbDiscovery(bulb)
		b.subscribeBulbCommands(bulb)
		b.publishBulbState(bulb)
	case coordinator.EventBulbRemoved:
		bulb, ok := event.Data.(*store.Bulb)
		if !ok {
			return
		}
		msg := buildRemoveDiscovery(bulb)
		b.publish(msg.Topic, msg.Payload, true)
	case coordinator.EventStateUpdate:
		data, ok := event.Data.(map[string]interface{})
		if !ok {
			return
		}
		ip, _ := data["ip"].(string)
		if ip == "" {
			return
		}
		bulb, err := b.coord.Bulb(ip)
		if err != nil {
			return
		}
		b.publishBulbState(bulb)
	case coordinator.EventBulbOnline, coordinator.EventBulbOffline:
		bulb, ok := event.Data.(*store.Bulb)
		if !ok {
			return
		}
		b.publishBulbState(bulb)
	}
}

func (b *Bridge) publishBridgeState(state string) {
	b.publish(b.prefix+"/bridge/state", []byte(state), true)
}

// publishAllBulbs republishes discovery, subscriptions and retained
// state for every known bulb. Runs on every (re)connect.
func (b *Bridge) publishAllBulbs() {
	bulbs, err := b.coord.Bulbs()
	if err != nil {
		b.logger.Error("list bulbs for discovery", "err", err)
		return
	}
	for _, bulb := range bulbs {
		b.publishBulbDiscovery(bulb)
		b.subscribeBulbCommands(bulb)
		b.publishBulbState(bulb)
	}
}

func (b *Bridge) publishBulbDiscovery(bulb *store.Bulb) {
	msg := buildDiscovery(bulb, b.prefix)
	b.publish(msg.Topic, msg.Payload, true)
	b.logger.Info("published HA discovery", "ip", bulb.IP, "name", bulbDisplayName(bulb))
}

func (b *Bridge) publishBulbState(bulb *store.Bulb) {
	topic := b.prefix + "/" + bulbTopicName(bulb)
	b.publish(topic, statePayload(bulb), true)
}

func (b *Bridge) subscribeBulbCommands(bulb *store.Bulb) {
	topic := b.prefix + "/" + bulbTopicName(bulb) + "/set"
	ip := bulb.IP
	b.client.Subscribe(topic, 1, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		b.handleCommand(ip, msg.Payload())
	})
}

// handleCommand applies an HA JSON light command to a bulb. Keys are
// handled independently: color and white implicitly switch the output
// mode, a bare state toggles power.
func (b *Bridge) handleCommand(ip string, payload []byte) {
	var cmd map[string]interface{}
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.logger.Warn("invalid command JSON", "ip", ip, "err", err)
		return
	}

	ctx, cancel := context.WithTimeout(b.coord.Context(), 10*time.Second)
	defer cancel()

	bri, hasBri := toFloat64(cmd["brightness"])

	if color, ok := cmd["color"].(map[string]interface{}); ok {
		r, _ := toFloat64(color["r"])
		g, _ := toFloat64(color["g"])
		bl, _ := toFloat64(color["b"])
		if hasBri {
			// HA sends color and brightness separately; the device
			// wants them folded into the channel levels.
			f := bri / 255
			r, g, bl = r*f, g*f, bl*f
		}
		if err := b.coord.SetColor(ctx, ip, clampByte(r), clampByte(g), clampByte(bl), true); err != nil {
			b.logger.Warn("color command failed", "ip", ip, "err", err)
		}
		return
	}

	if white, ok := toFloat64(cmd["white"]); ok {
		pct := protocol.ByteToPercent(clampByte(white))
		if err := b.coord.SetWarmWhite(ctx, ip, pct, true); err != nil {
			b.logger.Warn("white command failed", "ip", ip, "err", err)
		}
		return
	}

	if hasBri {
		if err := b.applyBrightness(ctx, ip, bri); err != nil {
			b.logger.Warn("brightness command failed", "ip", ip, "err", err)
		}
		return
	}

	if effect, ok := cmd["effect"].(string); ok && effect != "" {
		speed := defaultEffectSpeed
		if s, ok := toFloat64(cmd["effect_speed"]); ok {
			speed = int(s)
		}
		if err := b.coord.SetPattern(ctx, ip, effect, speed); err != nil {
			b.logger.Warn("effect command failed", "ip", ip, "err", err)
		}
		return
	}

	if state, ok := cmd["state"].(string); ok {
		switch strings.ToUpper(state) {
		case "ON":
			if err := b.coord.SetPower(ctx, ip, true); err != nil {
				b.logger.Warn("on command failed", "ip", ip, "err", err)
			}
		case "OFF":
			if err := b.coord.SetPower(ctx, ip, false); err != nil {
				b.logger.Warn("off command failed", "ip", ip, "err", err)
			}
		}
	}
}

// applyBrightness rescales the bulb's current output to a 0..255
// level: warm-white output maps to a percent, color output keeps its
// hue with the channels scaled so the strongest one hits the level.
func (b *Bridge) applyBrightness(ctx context.Context, ip string, bri float64) error {
	bulb, err := b.coord.Bulb(ip)
	if err != nil {
		return err
	}

	st := bulb.LastState
	if st != nil && st.Mode == "warm_white" {
		return b.coord.SetWarmWhite(ctx, ip, protocol.ByteToPercent(clampByte(bri)), true)
	}

	r, g, bl := 255.0, 255.0, 255.0
	if st != nil && (st.R > 0 || st.G > 0 || st.B > 0) {
		r, g, bl = float64(st.R), float64(st.G), float64(st.B)
	}
	max := r
	if g > max {
		max = g
	}
	if bl > max {
		max = bl
	}
	f := bri / max
	return b.coord.SetColor(ctx, ip, clampByte(r*f), clampByte(g*f), clampByte(bl*f), true)
}

func (b *Bridge) publish(topic string, payload []byte, retained bool) {
	token := b.client.Publish(topic, 1, retained, payload)
	go func() {
		if !token.WaitTimeout(5 * time.Second) {
			b.logger.Warn("MQTT publish timeout", "topic", topic)
		} else if err := token.Error(); err != nil {
			b.logger.Warn("MQTT publish error", "topic", topic, "err", err)
		}
	}()
}

// statePayload renders a bulb's stored snapshot as an HA JSON light
// state message.
func statePayload(bulb *store.Bulb) []byte {
	out := map[string]interface{}{
		"online": bulb.Online,
	}
	st := bulb.LastState
	if st == nil {
		return mustJSON(out)
	}

	switch st.Power {
	case "on":
		out["state"] = "ON"
	case "off":
		out["state"] = "OFF"
	}

	switch st.Mode {
	case "warm_white":
		out["color_mode"] = "white"
		out["brightness"] = int(protocol.PercentToByte(st.WarmWhitePct))
	case "color", "custom":
		out["color_mode"] = "rgb"
		out["color"] = map[string]int{"r": int(st.R), "g": int(st.G), "b": int(st.B)}
	case "preset":
		out["effect"] = st.Pattern
		out["effect_speed"] = st.Speed
	}

	out["last_seen"] = st.UpdatedAt.Format(time.RFC3339)
	return mustJSON(out)
}

func clampByte(f float64) byte {
	if f < 0 {
		return 0
	}
	if f > 255 {
		return 255
	}
	return byte(f)
}

func toFloat64(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	default:
		return 0, false
	}
}

func mustJSON(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
