package indicator

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"knob/encoder"
)

// Neopixel command strings for the external neopixel tool.
const (
	neoConnectionLost = "@2 !150000 001010"
	neoNormalIdle     = "@3 !150000 400000"
	neoRight          = "@1 !20000 004000"
	neoLeft           = "@1 !20000 000040"
	neoFast           = "@1 !10000 006060"
	neoHeldTurn       = "@1 !20000 400040"
	neoPress          = "@0 202020"
	neoHold           = "@2 !50000 402000"
	neoTerminated     = "@0 010101"
)

// Neopixel implements Indicator using an external neopixel tool via named pipe.
type Neopixel struct {
	mu         sync.Mutex
	writeMu    sync.Mutex // serializes pipe writes
	pipe       io.WriteCloser
	idleString string
}

// NewNeopixel creates a new Neopixel indicator.
func NewNeopixel(pipePath string) (*Neopixel, error) {
	f, err := os.OpenFile(pipePath, os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open neopixel pipe %s: %w", pipePath, err)
	}
	return newNeopixel(f), nil
}

func newNeopixel(w io.WriteCloser) *Neopixel {
	return &Neopixel{
		pipe:       w,
		idleString: neoConnectionLost, // Start with connection lost until connected
	}
}

// Event implements Indicator.Event.
func (n *Neopixel) Event(ev encoder.Event) {
	switch ev {
	case encoder.Right:
		n.write(neoRight)
	case encoder.Left:
		n.write(neoLeft)
	case encoder.FastRight, encoder.FastLeft:
		n.write(neoFast)
	case encoder.RightHeld, encoder.LeftHeld:
		n.write(neoHeldTurn)
	case encoder.Press:
		n.write(neoPress)
	case encoder.Hold:
		n.write(neoHold)
	case encoder.Release:
		n.mu.Lock()
		s := n.idleString
		n.mu.Unlock()
		n.write(s)
	}
}

// Idle implements Indicator.Idle. Idle follows a (re)connection, so the
// normal idle pattern replaces the connection lost one.
func (n *Neopixel) Idle() {
	n.mu.Lock()
	n.idleString = neoNormalIdle
	n.mu.Unlock()
	n.write(neoNormalIdle)
}

// ConnectionLost implements Indicator.ConnectionLost.
func (n *Neopixel) ConnectionLost() {
	n.mu.Lock()
	n.idleString = neoConnectionLost
	n.mu.Unlock()
	n.write(neoConnectionLost)
}

// Shutdown implements Indicator.Shutdown.
func (n *Neopixel) Shutdown() {
	n.write(neoTerminated)
}

// Release implements Indicator.Release.
func (n *Neopixel) Release() error {
	if n.pipe == nil {
		return nil
	}
	return n.pipe.Close()
}

func (n *Neopixel) write(s string) {
	if n.pipe == nil {
		return
	}
	n.writeMu.Lock()
	defer n.writeMu.Unlock()
	if _, err := n.pipe.Write([]byte(s)); err != nil {
		slog.Debug("neopixel write failed", "err", err)
	}
}
