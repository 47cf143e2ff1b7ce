//go:build linux

package rotary

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"

	"knob/encoder"
	"knob/wire"
)

// cdev reads the encoder through the GPIO character device. Edge events
// update the cached levels and wake the Run loop.
type cdev struct {
	enc     *gpiocdev.Lines
	btn     *gpiocdev.Line
	clkPin  int
	dtPin   int
	btnPin  int
	levels  levels
	samples chan wire.Sample
}

func openCdev(cfg Config) (Source, error) {
	c := &cdev{
		clkPin:  cfg.CLKPin,
		dtPin:   cfg.DTPin,
		btnPin:  cfg.ButtonPin,
		samples: make(chan wire.Sample, sampleBuffer),
	}
	c.levels.store(idle(cfg))

	var err error
	c.enc, err = gpiocdev.RequestLines(cfg.Chip, []int{cfg.CLKPin, cfg.DTPin},
		lineOptions(cfg.Pull, cfg, c.handleEvent)...)
	if err != nil {
		return nil, fmt.Errorf("request lines %d,%d on %s: %w", cfg.CLKPin, cfg.DTPin, cfg.Chip, err)
	}

	if cfg.ButtonPin > 0 {
		c.btn, err = gpiocdev.RequestLine(cfg.Chip, cfg.ButtonPin,
			lineOptions(cfg.ButtonPull, cfg, c.handleEvent)...)
		if err != nil {
			c.enc.Close()
			return nil, fmt.Errorf("request line %d on %s: %w", cfg.ButtonPin, cfg.Chip, err)
		}
	}

	c.Levels()
	return c, nil
}

func lineOptions(p encoder.Pull, cfg Config, eh gpiocdev.EventHandler) []gpiocdev.LineReqOption {
	opts := []gpiocdev.LineReqOption{
		gpiocdev.AsInput,
		gpiocdev.WithConsumer("knob"),
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(eh),
	}
	if p == encoder.PullDown {
		opts = append(opts, gpiocdev.WithPullDown)
	} else {
		opts = append(opts, gpiocdev.WithPullUp)
	}
	if cfg.Debounce > 0 {
		opts = append(opts, gpiocdev.WithDebounce(cfg.Debounce))
	}
	return opts
}

func (c *cdev) handleEvent(evt gpiocdev.LineEvent) {
	var mask byte
	switch evt.Offset {
	case c.clkPin:
		mask = maskCLK
	case c.dtPin:
		mask = maskDT
	case c.btnPin:
		mask = maskSW
	default:
		return
	}
	var high bool
	switch evt.Type {
	case gpiocdev.LineEventRisingEdge:
		high = true
	case gpiocdev.LineEventFallingEdge:
	default:
		return
	}
	push(c.samples, c.levels.set(mask, high))
}

// Levels reads the lines and refreshes the cached levels. On a read error
// the cached levels are returned.
func (c *cdev) Levels() wire.Sample {
	vals := make([]int, 2)
	if err := c.enc.Values(vals); err != nil {
		return c.levels.load()
	}
	c.levels.set(maskCLK, vals[0] != 0)
	s := c.levels.set(maskDT, vals[1] != 0)
	if c.btn != nil {
		if v, err := c.btn.Value(); err == nil {
			s = c.levels.set(maskSW, v != 0)
		}
	}
	return s
}

func (c *cdev) Samples() <-chan wire.Sample {
	return c.samples
}

// Close releases the lines.
func (c *cdev) Close() error {
	var err error
	if c.btn != nil {
		err = c.btn.Close()
	}
	if cerr := c.enc.Close(); cerr != nil {
		err = cerr
	}
	return err
}
