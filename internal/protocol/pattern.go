package protocol

import (
	"fmt"
	"sort"
	"strings"
)

// Pattern is a one-byte code selecting a built-in color-cycling effect.
type Pattern byte

// Factory pattern codes. The set is closed; codes outside it decode to
// an unknown pattern rather than an error.
const (
	PatternSevenColorCrossFade Pattern = 0x25
	PatternRedGradual          Pattern = 0x26
	PatternGreenGradual        Pattern = 0x27
	PatternBlueGradual         Pattern = 0x28
	PatternYellowGradual       Pattern = 0x29
	PatternCyanGradual         Pattern = 0x2A
	PatternPurpleGradual       Pattern = 0x2B
	PatternWhiteGradual        Pattern = 0x2C
	PatternRedGreenCrossFade   Pattern = 0x2D
	PatternRedBlueCrossFade    Pattern = 0x2E
	PatternGreenBlueCrossFade  Pattern = 0x2F
	PatternSevenColorStrobe    Pattern = 0x30
	PatternRedStrobe           Pattern = 0x31
	PatternGreenStrobe         Pattern = 0x32
	PatternBlueStrobe          Pattern = 0x33
	PatternYellowStrobe        Pattern = 0x34
	PatternCyanStrobe          Pattern = 0x35
	PatternPurpleStrobe        Pattern = 0x36
	PatternWhiteStrobe         Pattern = 0x37
	PatternSevenColorJumping   Pattern = 0x38
)

var patternNames = map[Pattern]string{
	PatternSevenColorCrossFade: "SevenColorCrossFade",
	PatternRedGradual:          "RedGradualChange",
	PatternGreenGradual:        "GreenGradualChange",
	PatternBlueGradual:         "BlueGradualChange",
	PatternYellowGradual:       "YellowGradualChange",
	PatternCyanGradual:         "CyanGradualChange",
	PatternPurpleGradual:       "PurpleGradualChange",
	PatternWhiteGradual:        "WhiteGradualChange",
	PatternRedGreenCrossFade:   "RedGreenCrossFade",
	PatternRedBlueCrossFade:    "RedBlueCrossFade",
	PatternGreenBlueCrossFade:  "GreenBlueCrossFade",
	PatternSevenColorStrobe:    "SevenColorStrobeFlash",
	PatternRedStrobe:           "RedStrobeFlash",
	PatternGreenStrobe:         "GreenStrobeFlash",
	PatternBlueStrobe:          "BlueStrobeFlash",
	PatternYellowStrobe:        "YellowStrobeFlash",
	PatternCyanStrobe:          "CyanStrobeFlash",
	PatternPurpleStrobe:        "PurpleStrobeFlash",
	PatternWhiteStrobe:         "WhiteStrobeFlash",
	PatternSevenColorJumping:   "SevenColorJumpingChange",
}

// Known reports whether p is one of the factory pattern codes.
func (p Pattern) Known() bool {
	_, ok := patternNames[p]
	return ok
}

// String returns the pattern name, or a hex placeholder for codes
// outside the known set.
func (p Pattern) String() string {
	if name, ok := patternNames[p]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(0x%02X)", byte(p))
}

// PatternByName resolves a pattern name back to its code. Matching is
// case-insensitive. ok is false for names outside the known set.
func PatternByName(name string) (Pattern, bool) {
	for p, n := range patternNames {
		if strings.EqualFold(n, name) {
			return p, true
		}
	}
	return 0, false
}

// Patterns returns all known pattern codes in ascending code order.
func Patterns() []Pattern {
	out := make([]Pattern, 0, len(patternNames))
	for p := range patternNames {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
