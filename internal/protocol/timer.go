package protocol

import "fmt"

// TimerMode is what a timer slot does when it fires.
type TimerMode int

const (
	TimerModeDefault TimerMode = iota // turn on with last settings
	TimerModeColor                    // static RGB color
	TimerModePreset                   // built-in pattern
)

func (m TimerMode) String() string {
	switch m {
	case TimerModeColor:
		return "color"
	case TimerModePreset:
		return "preset"
	default:
		return "default"
	}
}

// Timer is one decoded slot of the timer table. Inactive slots still
// decode structurally; Active distinguishes them.
//
// Delay and RGB[0] are read from the same slot byte. Whether the byte
// means a pattern delay, a red level, or either depending on mode is
// unresolved without a hardware capture, so both fields are populated
// and interpretation is left to the caller.
type Timer struct {
	Active     bool
	Year       int
	Month      int
	Day        int
	Hour       int
	Minute     int
	RepeatMask byte
	Mode       TimerMode
	// Pattern is meaningful only when Mode is TimerModePreset.
	Pattern Pattern
	RGB     [3]byte
	Delay   byte
}

// Timer table geometry: six consecutive 14-byte slots starting at
// reply offset 2.
const (
	TimerSlots    = 6
	timerSlotLen  = 14
	timerSlotBase = 2
)

// Slot byte meanings.
const (
	timerSlotActive   = 0xF0
	timerModeColorArg = 0x61
)

// DecodeTimers decodes a TimerReplyLen-byte timer-table reply into
// exactly TimerSlots entries in slot order.
func DecodeTimers(buf []byte) ([]Timer, error) {
	if len(buf) != TimerReplyLen {
		return nil, fmt.Errorf("timer reply: got %d bytes, want %d", len(buf), TimerReplyLen)
	}
	timers := make([]Timer, TimerSlots)
	for i := range timers {
		slot := buf[timerSlotBase+i*timerSlotLen : timerSlotBase+(i+1)*timerSlotLen]
		timers[i] = decodeTimerSlot(slot)
	}
	return timers, nil
}

func decodeTimerSlot(slot []byte) Timer {
	t := Timer{
		Active:     slot[0] == timerSlotActive,
		Year:       int(slot[1]) + 2000,
		Month:      int(slot[2]),
		Day:        int(slot[3]),
		Hour:       int(slot[4]),
		Minute:     int(slot[5]),
		RepeatMask: slot[7],
		RGB:        [3]byte{slot[9], slot[10], slot[11]},
		Delay:      slot[9],
	}
	switch code := slot[8]; code {
	case timerModeColorArg:
		t.Mode = TimerModeColor
	case 0x00:
		t.Mode = TimerModeDefault
	default:
		t.Mode = TimerModePreset
		t.Pattern = Pattern(code)
	}
	return t
}
