//go:build linux

package rotary

import (
	"fmt"

	"github.com/warthog618/gpio"

	"knob/encoder"
	"knob/wire"
)

// mmapGPIO reads the encoder through the Raspberry Pi GPIO registers.
// Pin numbers are BCM numbers.
type mmapGPIO struct {
	clk, dt, sw *gpio.Pin
	idleSW      bool // reported when no switch is wired
	samples     chan wire.Sample
}

func openGPIO(cfg Config) (Source, error) {
	if err := gpio.Open(); err != nil {
		return nil, fmt.Errorf("open gpio: %w", err)
	}

	g := &mmapGPIO{
		clk:     inputPin(cfg.CLKPin, cfg.Pull),
		dt:      inputPin(cfg.DTPin, cfg.Pull),
		idleSW:  idle(cfg).SW,
		samples: make(chan wire.Sample, sampleBuffer),
	}
	if cfg.ButtonPin > 0 {
		g.sw = inputPin(cfg.ButtonPin, cfg.ButtonPull)
	}

	for i, p := range g.pins() {
		if err := p.Watch(gpio.EdgeBoth, g.handleEdge); err != nil {
			for _, w := range g.pins()[:i] {
				w.Unwatch()
			}
			gpio.Close()
			return nil, fmt.Errorf("watch pin: %w", err)
		}
	}
	return g, nil
}

func inputPin(n int, p encoder.Pull) *gpio.Pin {
	pin := gpio.NewPin(n)
	pin.Input()
	if p == encoder.PullDown {
		pin.PullDown()
	} else {
		pin.PullUp()
	}
	return pin
}

func (g *mmapGPIO) pins() []*gpio.Pin {
	if g.sw == nil {
		return []*gpio.Pin{g.clk, g.dt}
	}
	return []*gpio.Pin{g.clk, g.dt, g.sw}
}

func (g *mmapGPIO) handleEdge(*gpio.Pin) {
	push(g.samples, g.Levels())
}

func (g *mmapGPIO) Levels() wire.Sample {
	s := wire.Sample{
		CLK: g.clk.Read() == gpio.High,
		DT:  g.dt.Read() == gpio.High,
		SW:  g.idleSW,
	}
	if g.sw != nil {
		s.SW = g.sw.Read() == gpio.High
	}
	return s
}

func (g *mmapGPIO) Samples() <-chan wire.Sample {
	return g.samples
}

// Close stops watching the pins and unmaps the registers.
func (g *mmapGPIO) Close() error {
	for _, p := range g.pins() {
		p.Unwatch()
	}
	return gpio.Close()
}
