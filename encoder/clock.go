package encoder

import "time"

// Clock is a monotonic millisecond counter. It may wrap; all interval
// arithmetic is done modulo 2^32.
type Clock interface {
	Millis() uint32
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() uint32

// Millis implements Clock.
func (f ClockFunc) Millis() uint32 {
	return f()
}

var epoch = time.Now()

// SystemClock counts milliseconds since program start.
func SystemClock() Clock {
	return ClockFunc(func() uint32 {
		return uint32(time.Since(epoch).Milliseconds())
	})
}
