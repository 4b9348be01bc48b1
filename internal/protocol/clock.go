package protocol

import (
	"fmt"
	"time"
)

// Clock is a decoded clock-query reply. Fields are the controller's
// local calendar values; the wire year is stored as an offset from 2000.
type Clock struct {
	Year   int
	Month  int
	Day    int
	Hour   int
	Minute int
	Second int
}

// DecodeClock decodes a ClockReplyLen-byte clock-query reply.
func DecodeClock(buf []byte) (Clock, error) {
	if len(buf) != ClockReplyLen {
		return Clock{}, fmt.Errorf("clock reply: got %d bytes, want %d", len(buf), ClockReplyLen)
	}
	return Clock{
		Year:   int(buf[3]) + 2000,
		Month:  int(buf[4]),
		Day:    int(buf[5]),
		Hour:   int(buf[6]),
		Minute: int(buf[7]),
		Second: int(buf[8]),
	}, nil
}

// Time converts the clock value to a time.Time in loc.
func (c Clock) Time(loc *time.Location) time.Time {
	return time.Date(c.Year, time.Month(c.Month), c.Day, c.Hour, c.Minute, c.Second, 0, loc)
}

func (c Clock) String() string {
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d", c.Year, c.Month, c.Day, c.Hour, c.Minute, c.Second)
}
