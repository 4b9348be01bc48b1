package protocol

import "testing"

// stateReply builds a state-query reply with the interesting bytes set.
func stateReply(power, code, delay, r, g, b, ww byte) []byte {
	buf := make([]byte, StateReplyLen)
	buf[0] = 0x81
	buf[2] = power
	buf[3] = code
	buf[5] = delay
	buf[6], buf[7], buf[8] = r, g, b
	buf[9] = ww
	return buf
}

func TestDecodeStateColor(t *testing.T) {
	st, err := DecodeState(stateReply(0x23, 0x61, 0x01, 10, 20, 30, 0x00))
	if err != nil {
		t.Fatalf("DecodeState: %v", err)
	}
	if st.Power != PowerOn {
		t.Errorf("power = %v, want on", st.Power)
	}
	if st.Mode != ModeColor {
		t.Errorf("mode = %v, want color", st.Mode)
	}
	if st.RGB != [3]byte{10, 20, 30} {
		t.Errorf("rgb = %v, want [10 20 30]", st.RGB)
	}
	if st.WarmWhitePct != 0 {
		t.Errorf("warm white = %d, want 0", st.WarmWhitePct)
	}
}

func TestDecodeStateWarmWhite(t *testing.T) {
	st, err := DecodeState(stateReply(0x24, 0x62, 0x01, 0, 0, 0, 0xFF))
	if err != nil {
		t.Fatalf("DecodeState: %v", err)
	}
	if st.Power != PowerOff {
		t.Errorf("power = %v, want off", st.Power)
	}
	if st.Mode != ModeWarmWhite {
		t.Errorf("mode = %v, want warm_white", st.Mode)
	}
	if st.WarmWhitePct != 100 {
		t.Errorf("warm white = %d, want 100", st.WarmWhitePct)
	}
}

func TestDecodeStatePreset(t *testing.T) {
	st, err := DecodeState(stateReply(0x23, 0x25, 0x01, 0, 0, 0, 0))
	if err != nil {
		t.Fatalf("DecodeState: %v", err)
	}
	if st.Mode != ModePreset {
		t.Fatalf("mode = %v, want preset", st.Mode)
	}
	if st.Pattern != PatternSevenColorCrossFade {
		t.Errorf("pattern = %v, want SevenColorCrossFade", st.Pattern)
	}
	if st.Speed != 100 {
		t.Errorf("speed = %d, want 100", st.Speed)
	}
}

func TestDecodeStateCustom(t *testing.T) {
	st, err := DecodeState(stateReply(0x23, 0x60, 0x10, 0, 0, 0, 0))
	if err != nil {
		t.Fatalf("DecodeState: %v", err)
	}
	if st.Mode != ModeCustom {
		t.Errorf("mode = %v, want custom", st.Mode)
	}
	if st.Speed != 50 {
		t.Errorf("speed = %d, want 50", st.Speed)
	}
}

func TestDecodeStateUnknownCodes(t *testing.T) {
	st, err := DecodeState(stateReply(0x77, 0x99, 0x01, 0, 0, 0, 0))
	if err != nil {
		t.Fatalf("DecodeState: %v", err)
	}
	if st.Power != PowerUnknown {
		t.Errorf("power = %v, want unknown", st.Power)
	}
	if st.Mode != ModeUnknown {
		t.Errorf("mode = %v, want unknown", st.Mode)
	}
	if st.Pattern != 0 {
		t.Errorf("pattern = 0x%02X, want unset", byte(st.Pattern))
	}
}

func TestDecodeStateWrongLength(t *testing.T) {
	if _, err := DecodeState(make([]byte, 13)); err == nil {
		t.Error("short buffer accepted")
	}
	if _, err := DecodeState(make([]byte, 15)); err == nil {
		t.Error("long buffer accepted")
	}
}
