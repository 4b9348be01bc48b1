//go:build !no_mqtt

package mqtt

import (
	"fmt"
	"strings"

	"wifiled-go-home/internal/protocol"
	"wifiled-go-home/internal/store"
)

// discoveryMsg is a Home Assistant MQTT discovery payload.
type discoveryMsg struct {
	Topic   string // e.g. "homeassistant/light/wifiled_ABCD1234/light/config"
	Payload []byte // JSON, empty means delete
}

// haDevice is the "device" block in HA discovery.
type haDevice struct {
	Identifiers  []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Model        string   `json:"model,omitempty"`
	Name         string   `json:"name"`
}

// haDiscovery is an HA discovery payload for a JSON-schema light.
type haDiscovery struct {
	Name                string   `json:"name"`
	UniqueID            string   `json:"unique_id"`
	StateTopic          string   `json:"state_topic"`
	CommandTopic        string   `json:"command_topic,omitempty"`
	AvailabilityTopic   string   `json:"availability_topic"`
	Brightness          bool     `json:"brightness,omitempty"`
	BrightnessScale     int      `json:"brightness_scale,omitempty"`
	SupportedColorModes []string `json:"supported_color_modes,omitempty"`
	Effect              bool     `json:"effect,omitempty"`
	EffectList          []string `json:"effect_list,omitempty"`
	Schema              string   `json:"schema,omitempty"`
	Device              haDevice `json:"device"`
}

// bulbDisplayName returns a display name for the bulb.
func bulbDisplayName(b *store.Bulb) string {
	if b.FriendlyName != "" {
		return b.FriendlyName
	}
	if b.Model != "" {
		return b.Model + " " + b.IP
	}
	return b.IP
}

// bulbIdentifier returns the unique identifier for the HA device registry.
func bulbIdentifier(b *store.Bulb) string {
	if b.ID != "" {
		return "wifiled_" + b.ID
	}
	return "wifiled_" + strings.ReplaceAll(b.IP, ".", "_")
}

// bulbTopicName returns the topic name for a bulb (friendly name or IP).
func bulbTopicName(b *store.Bulb) string {
	if b.FriendlyName != "" {
		// Sanitize: lowercase and keep only safe chars for MQTT topics.
		name := strings.ToLower(b.FriendlyName)
		name = strings.Map(func(r rune) rune {
			if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
				return r
			}
			return '_'
		}, name)
		return name
	}
	return strings.ReplaceAll(b.IP, ".", "_")
}

// effectNames lists every factory pattern for the HA effect dropdown.
func effectNames() []string {
	patterns := protocol.Patterns()
	names := make([]string, 0, len(patterns))
	for _, p := range patterns {
		names = append(names, p.String())
	}
	return names
}

// buildDiscovery generates the HA discovery message for a bulb: one
// JSON-schema light with rgb and white color modes plus the factory
// pattern list as effects.
func buildDiscovery(b *store.Bulb, prefix string) discoveryMsg {
	nodeID := bulbIdentifier(b)
	topicName := bulbTopicName(b)

	payload := haDiscovery{
		Name:                bulbDisplayName(b),
		UniqueID:            nodeID + "_light",
		StateTopic:          prefix + "/" + topicName,
		CommandTopic:        prefix + "/" + topicName + "/set",
		AvailabilityTopic:   prefix + "/bridge/state",
		Brightness:          true,
		BrightnessScale:     255,
		SupportedColorModes: []string{"rgb", "white"},
		Effect:              true,
		EffectList:          effectNames(),
		Schema:              "json",
		Device: haDevice{
			Identifiers:  []string{nodeID},
			Manufacturer: "Magic Home",
			Model:        b.Model,
			Name:         bulbDisplayName(b),
		},
	}
	return discoveryMsg{
		Topic:   fmt.Sprintf("homeassistant/light/%s/light/config", nodeID),
		Payload: mustJSON(payload),
	}
}

// buildRemoveDiscovery generates the empty retained message that
// removes a bulb from HA.
func buildRemoveDiscovery(b *store.Bulb) discoveryMsg {
	return discoveryMsg{
		Topic:   fmt.Sprintf("homeassistant/light/%s/light/config", bulbIdentifier(b)),
		Payload: nil, // empty retained = delete
	}
}
