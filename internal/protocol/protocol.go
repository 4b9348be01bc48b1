package protocol

// Magic Home / HF-LPB100 family LED controller wire protocol: checksummed
// command frames over TCP, fixed-offset reply decoding, UDP discovery
// constants. Replies carry no length prefix or delimiter; the expected
// length is implied by the command.

import "time"

const (
	// DefaultPort is the TCP command port the controllers listen on.
	DefaultPort = 5577

	// DiscoveryPort is the UDP port that answers the discovery probe.
	DiscoveryPort = 48899

	// DiscoveryProbe is the literal payload that makes controllers
	// identify themselves on the local subnet.
	DiscoveryProbe = "HF-A11ASSISTHREAD"

	// DiscoveryBufSize is the receive buffer size for discovery replies;
	// replies are null-padded up to this length.
	DiscoveryBufSize = 64
)

// Reply lengths per query command.
const (
	StateReplyLen = 14
	ClockReplyLen = 12
	TimerReplyLen = 88
)

// Frame appends the checksum byte to a command: the sum of all opcode
// bytes truncated to the low 8 bits.
func Frame(op []byte) []byte {
	var sum byte
	for _, b := range op {
		sum += b
	}
	frame := make([]byte, 0, len(op)+1)
	frame = append(frame, op...)
	return append(frame, sum)
}

// Command opcode constants.
const (
	opPower       = 0x71
	opSetPersist  = 0x31
	opSetVolatile = 0x41
	opPreset      = 0x61
	opTerm        = 0x0F

	powerOnArg  = 0x23
	powerOffArg = 0x24
)

// SetPowerOn returns the opcode bytes that switch the controller on.
func SetPowerOn() []byte { return []byte{opPower, powerOnArg, opTerm} }

// SetPowerOff returns the opcode bytes that switch the controller off.
func SetPowerOff() []byte { return []byte{opPower, powerOffArg, opTerm} }

// SetColor returns the opcode bytes for a static RGB color. persist
// selects whether the controller keeps the color across power cycles.
func SetColor(r, g, b byte, persist bool) []byte {
	op := byte(opSetVolatile)
	if persist {
		op = opSetPersist
	}
	return []byte{op, r, g, b, 0x00, 0xF0, opTerm}
}

// SetWarmWhite returns the opcode bytes for warm-white output at the
// given percentage (clamped to 0..100).
func SetWarmWhite(pct int, persist bool) []byte {
	op := byte(opSetVolatile)
	if persist {
		op = opSetPersist
	}
	return []byte{op, 0x00, 0x00, 0x00, PercentToByte(pct), opTerm, opTerm}
}

// SetPattern returns the opcode bytes that start a built-in pattern at
// the given speed (0 slowest .. 100 fastest).
func SetPattern(p Pattern, speed int) []byte {
	return []byte{opPreset, byte(p), SpeedToDelay(speed), opTerm}
}

// QueryState returns the opcode bytes for the state query. The reply is
// StateReplyLen bytes, decoded by DecodeState.
func QueryState() []byte { return []byte{0x81, 0x8A, 0x8B} }

// QueryClock returns the opcode bytes for the clock query. The reply is
// ClockReplyLen bytes, decoded by DecodeClock.
func QueryClock() []byte { return []byte{0x11, 0x1A, 0x1B, opTerm} }

// QueryTimers returns the opcode bytes for the timer-table query. The
// reply is TimerReplyLen bytes, decoded by DecodeTimers.
func QueryTimers() []byte { return []byte{0x22, 0x2A, 0x2B, opTerm} }

// SetClock returns the opcode bytes that set the controller clock to t.
// The wire year is offset from 2000; the day of week is ISO numbering
// (Monday=1..Sunday=7), which matches the reference drivers for this
// family but has not been verified against hardware.
func SetClock(t time.Time) []byte {
	return []byte{
		0x10, 0x14,
		byte(t.Year() - 2000),
		byte(t.Month()),
		byte(t.Day()),
		byte(t.Hour()),
		byte(t.Minute()),
		byte(t.Second()),
		isoWeekday(t.Weekday()),
		0x00, opTerm,
	}
}

func isoWeekday(d time.Weekday) byte {
	if d == time.Sunday {
		return 7
	}
	return byte(d)
}
