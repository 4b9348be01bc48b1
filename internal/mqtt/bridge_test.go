//go:build !no_mqtt

package mqtt

import (
	"context"
	"encoding/json"
	"log/slog"
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

func TestDiscoveryLightPayload(t *testing.T) {
	bulb := &store.Bulb{
		IP:           "192.168.1.50",
		ID:           "ABCD1234",
		Model:        "AK001-ZJ2101",
		FriendlyName: "Kitchen Light",
	}

	msg := buildDiscovery(bulb, "wifiled")
	if msg.Topic != "homeassistant/light/wifiled_ABCD1234/light/config" {
		t.Errorf("topic = %q", msg.Topic)
	}

	var payload haDiscovery
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}

	if payload.Name != "Kitchen Light" {
		t.Errorf("name = %q, want %q", payload.Name, "Kitchen Light")
	}
	if payload.UniqueID != "wifiled_ABCD1234_light" {
		t.Errorf("unique_id = %q", payload.UniqueID)
	}
	if payload.StateTopic != "wifiled/kitchen_light" {
		t.Errorf("state_topic = %q", payload.StateTopic)
	}
	if payload.CommandTopic != "wifiled/kitchen_light/set" {
		t.Errorf("command_topic = %q", payload.CommandTopic)
	}
	if payload.AvailabilityTopic != "wifiled/bridge/state" {
		t.Errorf("availability_topic = %q", payload.AvailabilityTopic)
	}
	if payload.Schema != "json" {
		t.Errorf("schema = %q, want json", payload.Schema)
	}
	if len(payload.SupportedColorModes) != 2 {
		t.Errorf("color modes = %v", payload.SupportedColorModes)
	}
	if len(payload.EffectList) != 20 {
		t.Errorf("effect list has %d entries, want 20", len(payload.EffectList))
	}
	if payload.Device.Manufacturer != "Magic Home" {
		t.Errorf("device.manufacturer = %q", payload.Device.Manufacturer)
	}
}

func TestBulbTopicName(t *testing.T) {
	tests := []struct {
		name string
		bulb *store.Bulb
		want string
	}{
		{
			name: "friendly name with spaces",
			bulb: &store.Bulb{FriendlyName: "Kitchen Light", IP: "192.168.1.50"},
			want: "kitchen_light",
		},
		{
			name: "IP fallback",
			bulb: &store.Bulb{IP: "192.168.1.50"},
			want: "192_168_1_50",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := bulbTopicName(tt.bulb)
			if got != tt.want {
				t.Errorf("bulbTopicName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBulbDisplayName(t *testing.T) {
	tests := []struct {
		name string
		bulb *store.Bulb
		want string
	}{
		{
			name: "friendly name",
			bulb: &store.Bulb{FriendlyName: "Kitchen", Model: "AK001", IP: "192.168.1.50"},
			want: "Kitchen",
		},
		{
			name: "model and ip",
			bulb: &store.Bulb{Model: "AK001", IP: "192.168.1.50"},
			want: "AK001 192.168.1.50",
		},
		{
			name: "ip fallback",
			bulb: &store.Bulb{IP: "192.168.1.50"},
			want: "192.168.1.50",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := bulbDisplayName(tt.bulb)
			if got != tt.want {
				t.Errorf("bulbDisplayName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStatePayloadColorMode(t *testing.T) {
	bulb := &store.Bulb{
		IP:     "192.168.1.50",
		Online: true,
		LastState: &store.StateSnapshot{
			Power:     "on",
			Mode:      "color",
			R:         255,
			G:         128,
			B:         0,
			UpdatedAt: time.Now(),
		},
	}

	var got map[string]interface{}
	if err := json.Unmarshal(statePayload(bulb), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["state"] != "ON" {
		t.Errorf("state = %v", got["state"])
	}
	if got["color_mode"] != "rgb" {
		t.Errorf("color_mode = %v", got["color_mode"])
	}
	color := got["color"].(map[string]interface{})
	if color["r"].(float64) != 255 || color["g"].(float64) != 128 {
		t.Errorf("color = %v", color)
	}
}

func TestStatePayloadWhiteAndPreset(t *testing.T) {
	white := &store.Bulb{
		IP:     "192.168.1.50",
		Online: true,
		LastState: &store.StateSnapshot{
			Power:        "on",
			Mode:         "warm_white",
			WarmWhitePct: 100,
		},
	}
	var got map[string]interface{}
	if err := json.Unmarshal(statePayload(white), &got); err != nil {
		t.Fatal(err)
	}
	if got["color_mode"] != "white" {
		t.Errorf("color_mode = %v", got["color_mode"])
	}
	if got["brightness"].(float64) != 255 {
		t.Errorf("brightness = %v", got["brightness"])
	}

	preset := &store.Bulb{
		IP:     "192.168.1.50",
		Online: true,
		LastState: &store.StateSnapshot{
			Power:   "on",
			Mode:    "preset",
			Pattern: "SevenColorCrossFade",
			Speed:   75,
		},
	}
	got = nil
	if err := json.Unmarshal(statePayload(preset), &got); err != nil {
		t.Fatal(err)
	}
	if got["effect"] != "SevenColorCrossFade" {
		t.Errorf("effect = %v", got["effect"])
	}
	if got["effect_speed"].(float64) != 75 {
		t.Errorf("effect_speed = %v", got["effect_speed"])
	}
}

func TestStatePayloadNoSnapshot(t *testing.T) {
	bulb := &store.Bulb{IP: "192.168.1.50", Online: false}
	var got map[string]interface{}
	if err := json.Unmarshal(statePayload(bulb), &got); err != nil {
		t.Fatal(err)
	}
	if got["online"] != false {
		t.Errorf("online = %v", got["online"])
	}
	if _, ok := got["state"]; ok {
		t.Error("state present without a snapshot")
	}
}

func TestRemoveDiscovery(t *testing.T) {
	bulb := &store.Bulb{IP: "192.168.1.50", ID: "ABCD1234"}
	msg := buildRemoveDiscovery(bulb)
	if msg.Payload != nil {
		t.Errorf("removal message should have nil payload, got %q", msg.Payload)
	}
	if msg.Topic != "homeassistant/light/wifiled_ABCD1234/light/config" {
		t.Errorf("topic = %q", msg.Topic)
	}
}

// fakeController records the last command values it received.
type fakeController struct {
	mu         sync.Mutex
	color      [3]byte
	colorCalls int
	whitePct   int
	whiteCalls int
}

func (f *fakeController) SetPower(_ context.Context, ip string, on bool) error { return nil }

func (f *fakeController) SetColor(_ context.Context, ip string, r, g, b byte, persist bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.color = [3]byte{r, g, b}
	f.colorCalls++
	return nil
}

func (f *fakeController) SetWarmWhite(_ context.Context, ip string, pct int, persist bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.whitePct = pct
	f.whiteCalls++
	return nil
}

func (f *fakeController) SetPattern(_ context.Context, ip string, p protocol.Pattern, speed int) error {
	return nil
}

func (f *fakeController) State(_ context.Context, ip string) (protocol.State, error) {
	return protocol.State{}, nil
}

func (f *fakeController) Clock(_ context.Context, ip string) (protocol.Clock, error) {
	return protocol.Clock{}, nil
}

func (f *fakeController) SyncClock(_ context.Context, ip string, t time.Time) error { return nil }

func (f *fakeController) Timers(_ context.Context, ip string) ([]protocol.Timer, error) {
	return nil, nil
}

type fakeScanner struct{}

func (fakeScanner) Scan(ctx context.Context) ([]discovery.Device, error) { return nil, nil }

func newTestBridge(t *testing.T, fc *fakeController, seed *store.Bulb) *Bridge {
	t.Helper()
	st, err := store.NewBoltStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.SaveBulb(seed); err != nil {
		t.Fatal(err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	coord := coordinator.New(fc, fakeScanner{}, st, coordinator.NewEventBus(logger), coordinator.Config{}, logger)
	return &Bridge{coord: coord, prefix: "wifiled", logger: logger}
}

func TestHandleCommandColorWithBrightness(t *testing.T) {
	fc := &fakeController{}
	b := newTestBridge(t, fc, &store.Bulb{IP: "192.168.1.50", Online: true})

	b.handleCommand("192.168.1.50", []byte(`{"color":{"r":255,"g":0,"b":0},"brightness":128}`))

	if fc.colorCalls != 1 {
		t.Fatalf("color commands = %d, want 1", fc.colorCalls)
	}
	if fc.color != [3]byte{128, 0, 0} {
		t.Errorf("color = %v, want [128 0 0]", fc.color)
	}
}

func TestHandleCommandBareBrightnessScalesColor(t *testing.T) {
	fc := &fakeController{}
	b := newTestBridge(t, fc, &store.Bulb{
		IP:     "192.168.1.50",
		Online: true,
		LastState: &store.StateSnapshot{
			Power: "on",
			Mode:  "color",
			R:     255, G: 0, B: 0,
			UpdatedAt: time.Now(),
		},
	})

	b.handleCommand("192.168.1.50", []byte(`{"brightness":128}`))

	if fc.colorCalls != 1 {
		t.Fatalf("color commands = %d, want 1", fc.colorCalls)
	}
	// Hue preserved, strongest channel scaled to the requested level.
	if fc.color != [3]byte{128, 0, 0} {
		t.Errorf("color = %v, want [128 0 0]", fc.color)
	}
}

func TestHandleCommandBareBrightnessInWhiteMode(t *testing.T) {
	fc := &fakeController{}
	b := newTestBridge(t, fc, &store.Bulb{
		IP:     "192.168.1.50",
		Online: true,
		LastState: &store.StateSnapshot{
			Power:        "on",
			Mode:         "warm_white",
			WarmWhitePct: 100,
			UpdatedAt:    time.Now(),
		},
	})

	b.handleCommand("192.168.1.50", []byte(`{"brightness":128}`))

	if fc.whiteCalls != 1 {
		t.Fatalf("white commands = %d, want 1", fc.whiteCalls)
	}
	if fc.whitePct != protocol.ByteToPercent(128) {
		t.Errorf("white pct = %d, want %d", fc.whitePct, protocol.ByteToPercent(128))
	}
}

func TestHandleCommandWhite(t *testing.T) {
	fc := &fakeController{}
	b := newTestBridge(t, fc, &store.Bulb{IP: "192.168.1.50", Online: true})

	b.handleCommand("192.168.1.50", []byte(`{"white":255}`))

	if fc.whiteCalls != 1 {
		t.Fatalf("white commands = %d, want 1", fc.whiteCalls)
	}
	if fc.whitePct != 100 {
		t.Errorf("white pct = %d, want 100", fc.whitePct)
	}
}

func TestClampByte(t *testing.T) {
	if clampByte(-3) != 0 {
		t.Error("negative not clamped")
	}
	if clampByte(300) != 255 {
		t.Error("overflow not clamped")
	}
	if clampByte(128) != 128 {
		t.Error("in-range value altered")
	}
}

func TestMustJSON(t *testing.T) {
	result := mustJSON(map[string]string{"hello": "world"})
	var parsed map[string]string
	if err := json.Unmarshal(result, &parsed); err != nil {
		t.Fatalf("mustJSON output not valid JSON: %v", err)
	}
	if parsed["hello"] != "world" {
		t.Errorf("parsed value = %q", parsed["hello"])
	}
}
