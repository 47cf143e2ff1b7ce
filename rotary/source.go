package rotary

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"knob/encoder"
	"knob/wire"
)

const sampleBuffer = 256

var (
	maskCLK = wire.Sample{CLK: true}.Byte()
	maskDT  = wire.Sample{DT: true}.Byte()
	maskSW  = wire.Sample{SW: true}.Byte()
)

func openSource(cfg Config) (Source, error) {
	switch cfg.Source {
	case "gpiocdev":
		if cfg.CLKPin == 0 || cfg.DTPin == 0 {
			return nil, fmt.Errorf("clk_pin and dt_pin are required")
		}
		if cfg.Chip == "" {
			cfg.Chip = "gpiochip0"
		}
		return openCdev(cfg)
	case "gpio":
		if cfg.CLKPin == 0 || cfg.DTPin == 0 {
			return nil, fmt.Errorf("clk_pin and dt_pin are required")
		}
		return openGPIO(cfg)
	case "serial":
		if cfg.Device == "" {
			return nil, fmt.Errorf("device is required")
		}
		return openSerial(cfg)
	case "keyboard":
		if cfg.Device == "" {
			return nil, fmt.Errorf("device is required")
		}
		return openKeyboard(cfg)
	case "virtual":
		return newVirtual(cfg), nil
	default:
		return nil, fmt.Errorf("unknown source %q", cfg.Source)
	}
}

// level returns the pin level of a contact under pull p.
func level(active bool, p encoder.Pull) bool {
	if p == encoder.PullUp {
		return !active
	}
	return active
}

// idle returns the levels of a source sitting in a detent with the button up.
func idle(cfg Config) wire.Sample {
	return wire.Sample{
		CLK: level(false, cfg.Pull),
		DT:  level(false, cfg.Pull),
		SW:  level(false, cfg.ButtonPull),
	}
}

// levels is the last known sample of a source updated from event
// goroutines.
type levels struct {
	v atomic.Uint32
}

func (l *levels) load() wire.Sample {
	s, _ := wire.FromByte(byte(l.v.Load()))
	return s
}

func (l *levels) store(s wire.Sample) {
	l.v.Store(uint32(s.Byte()))
}

// set changes the bits in mask to high or low and returns the new sample.
func (l *levels) set(mask byte, high bool) wire.Sample {
	for {
		old := l.v.Load()
		b := byte(old) &^ mask
		if high {
			b |= mask
		}
		if l.v.CompareAndSwap(old, uint32(b)) {
			s, _ := wire.FromByte(b)
			return s
		}
	}
}

// push hands s to the Run loop without blocking the event goroutine.
func push(ch chan<- wire.Sample, s wire.Sample) {
	select {
	case ch <- s:
	default:
		slog.Debug("rotary sample dropped", "sample", s.String())
	}
}

// virtual has no hardware. Its levels only change through Feed and
// SetButton, so it reports change notification that never fires.
type virtual struct {
	levels  wire.Sample
	samples chan wire.Sample
}

func newVirtual(cfg Config) *virtual {
	return &virtual{levels: idle(cfg), samples: make(chan wire.Sample)}
}

func (v *virtual) Levels() wire.Sample         { return v.levels }
func (v *virtual) Samples() <-chan wire.Sample { return v.samples }
func (v *virtual) Close() error                { return nil }
