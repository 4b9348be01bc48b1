package protocol

// Numeric transforms between wire bytes and semantic values. All byte
// inputs are unsigned 0..255; conversions are centralized here so no
// decoder re-implements the math.

// delayMax is the largest meaningful delay byte; raw values above it
// clamp to the slowest speed.
const delayMax = 30

// PercentToByte maps a percentage to a full-range byte, clamping input
// to 0..100. PercentToByte(0)=0, PercentToByte(100)=255, monotonic.
func PercentToByte(pct int) byte {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return byte(pct * 255 / 100)
}

// ByteToPercent maps a full-range byte to a percentage, rounding up so
// any nonzero level reports at least 1%.
func ByteToPercent(b byte) int {
	return (int(b)*100 + 254) / 255
}

// DelayToSpeed converts a raw delay byte to a speed percentage. Delay
// and speed are inversely related: delay 0x01 is speed 100, delay 0x1F
// and above is speed 0.
func DelayToSpeed(raw byte) int {
	d := int(raw) - 1
	if d < 0 {
		d = 0
	}
	if d > delayMax {
		d = delayMax
	}
	return 100 - d*100/delayMax
}

// SpeedToDelay converts a speed percentage (clamped to 0..100) to the
// delay byte the controller expects. Inverse of DelayToSpeed at the
// boundaries: speed 100 is delay 0x01, speed 0 is delay 0x1F.
func SpeedToDelay(speed int) byte {
	if speed < 0 {
		speed = 0
	}
	if speed > 100 {
		speed = 100
	}
	return byte((100-speed)*delayMax/100 + 1)
}
