package protocol

import "fmt"

// Power is the controller's on/off state.
type Power int

const (
	PowerUnknown Power = iota
	PowerOn
	PowerOff
)

func (p Power) String() string {
	switch p {
	case PowerOn:
		return "on"
	case PowerOff:
		return "off"
	default:
		return "unknown"
	}
}

// Mode is the controller's output mode.
type Mode int

const (
	ModeUnknown Mode = iota
	ModeColor
	ModeWarmWhite
	ModeCustom
	ModePreset
)

func (m Mode) String() string {
	switch m {
	case ModeColor:
		return "color"
	case ModeWarmWhite:
		return "warm_white"
	case ModeCustom:
		return "custom"
	case ModePreset:
		return "preset"
	default:
		return "unknown"
	}
}

// State is a decoded state-query reply.
type State struct {
	Power        Power
	Mode         Mode
	Speed        int     // 0..100, from the raw delay byte
	RGB          [3]byte // r, g, b
	WarmWhitePct int     // 0..100
	// Pattern is meaningful only when Mode is ModePreset.
	Pattern Pattern
}

// Mode bytes in the state reply. 0x61/0x62 both mean a static color or
// warm-white output; which one is decided by the warm-white level byte.
const (
	stateModeStaticA = 0x61
	stateModeStaticB = 0x62
	stateModeCustom  = 0x60
)

// DecodeState decodes a StateReplyLen-byte state-query reply.
// Unknown power or mode bytes decode to the Unknown variants; the only
// error is a reply of the wrong length.
func DecodeState(buf []byte) (State, error) {
	if len(buf) != StateReplyLen {
		return State{}, fmt.Errorf("state reply: got %d bytes, want %d", len(buf), StateReplyLen)
	}

	var st State

	switch buf[2] {
	case powerOnArg:
		st.Power = PowerOn
	case powerOffArg:
		st.Power = PowerOff
	default:
		st.Power = PowerUnknown
	}

	code := buf[3]
	ww := buf[9]
	switch {
	case code == stateModeStaticA || code == stateModeStaticB:
		if ww > 0 {
			st.Mode = ModeWarmWhite
		} else {
			st.Mode = ModeColor
		}
	case code == stateModeCustom:
		st.Mode = ModeCustom
	case Pattern(code).Known():
		st.Mode = ModePreset
		st.Pattern = Pattern(code)
	default:
		st.Mode = ModeUnknown
	}

	st.Speed = DelayToSpeed(buf[5])
	st.RGB = [3]byte{buf[6], buf[7], buf[8]}
	st.WarmWhitePct = ByteToPercent(ww)
	return st, nil
}
