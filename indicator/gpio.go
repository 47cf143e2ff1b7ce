package indicator

import (
	"fmt"
	"sync"
	"time"

	"github.com/hjkoskel/govattu"

	"knob/encoder"
)

// pinWriter drives output pins.
type pinWriter interface {
	set(pin uint8)
	clear(pin uint8)
	close() error
}

type vattuPins struct {
	hw govattu.Vattu
}

func (v vattuPins) set(pin uint8)   { v.hw.PinSet(pin) }
func (v vattuPins) clear(pin uint8) { v.hw.PinClear(pin) }
func (v vattuPins) close() error    { return v.hw.Close() }

// GPIO implements Indicator using discrete GPIO LED pins. The right and
// left LEDs pulse on turns, the button LED is lit while the button is down
// and blinks off once on hold.
type GPIO struct {
	mu        sync.Mutex
	pins      pinWriter
	rightPin  *uint8
	leftPin   *uint8
	buttonPin *uint8
	pulse     time.Duration
	timers    map[uint8]*time.Timer
}

// NewGPIO creates a new GPIO-based indicator.
func NewGPIO(rightPin, leftPin, buttonPin *uint8, pulse time.Duration) (*GPIO, error) {
	hw, err := govattu.Open()
	if err != nil {
		return nil, fmt.Errorf("open gpio: %w", err)
	}

	// Initialize all pins as outputs, start off
	for _, p := range []*uint8{rightPin, leftPin, buttonPin} {
		if p != nil {
			hw.PinMode(*p, govattu.ALToutput)
		}
	}
	return newGPIO(vattuPins{hw: hw}, rightPin, leftPin, buttonPin, pulse), nil
}

func newGPIO(pins pinWriter, rightPin, leftPin, buttonPin *uint8, pulse time.Duration) *GPIO {
	g := &GPIO{
		pins:      pins,
		rightPin:  rightPin,
		leftPin:   leftPin,
		buttonPin: buttonPin,
		pulse:     pulse,
		timers:    make(map[uint8]*time.Timer),
	}
	g.allOff()
	return g
}

// Event implements Indicator.Event.
func (g *GPIO) Event(ev encoder.Event) {
	switch {
	case ev.Delta() > 0:
		g.flash(g.rightPin, true)
	case ev.Delta() < 0:
		g.flash(g.leftPin, true)
	case ev == encoder.Press:
		g.on(g.buttonPin)
	case ev == encoder.Release:
		g.off(g.buttonPin)
	case ev == encoder.Hold:
		g.flash(g.buttonPin, false)
	}
}

// flash drives pin to lit for one pulse, then back to the opposite.
func (g *GPIO) flash(pin *uint8, lit bool) {
	if pin == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	p := *pin
	g.stop(p)
	g.write(p, lit)

	var t *time.Timer
	t = time.AfterFunc(g.pulse, func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		// Superseded by a later flash, on or off.
		if g.timers[p] != t {
			return
		}
		delete(g.timers, p)
		g.write(p, !lit)
	})
	g.timers[p] = t
}

func (g *GPIO) on(pin *uint8) {
	if pin != nil {
		g.mu.Lock()
		g.stop(*pin)
		g.pins.set(*pin)
		g.mu.Unlock()
	}
}

func (g *GPIO) off(pin *uint8) {
	if pin != nil {
		g.mu.Lock()
		g.stop(*pin)
		g.pins.clear(*pin)
		g.mu.Unlock()
	}
}

func (g *GPIO) stop(pin uint8) {
	if t, ok := g.timers[pin]; ok {
		t.Stop()
		delete(g.timers, pin)
	}
}

func (g *GPIO) write(pin uint8, lit bool) {
	if lit {
		g.pins.set(pin)
	} else {
		g.pins.clear(pin)
	}
}

// Idle implements Indicator.Idle.
func (g *GPIO) Idle() {
	g.allOff()
}

// ConnectionLost implements Indicator.ConnectionLost.
func (g *GPIO) ConnectionLost() {
	g.allOff()
	// Both turn LEDs together for connection lost
	g.on(g.rightPin)
	g.on(g.leftPin)
}

// Shutdown implements Indicator.Shutdown.
func (g *GPIO) Shutdown() {
	g.allOff()
}

// Release implements Indicator.Release.
func (g *GPIO) Release() error {
	g.allOff()
	return g.pins.close()
}

func (g *GPIO) allOff() {
	for _, p := range []*uint8{g.rightPin, g.leftPin, g.buttonPin} {
		g.off(p)
	}
}
