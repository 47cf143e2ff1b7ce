package rotary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"knob/encoder"
	"knob/wire"
)

// ErrNotSupported is returned for sources this platform cannot open.
var ErrNotSupported = errors.New("rotary source not supported on this platform")

// ErrReleased is returned by Feed after Release.
var ErrReleased = errors.New("rotary released")

// DefaultPollInterval is how often the encoder is polled between level
// changes, so hold timeouts fire on time.
const DefaultPollInterval = time.Millisecond

// Config holds configuration for a rotary encoder input.
type Config struct {
	Source       string        `yaml:"source"` // "gpiocdev", "gpio", "serial", "keyboard", "virtual"
	Chip         string        `yaml:"chip"`
	CLKPin       int           `yaml:"clk_pin"`
	DTPin        int           `yaml:"dt_pin"`
	ButtonPin    int           `yaml:"button_pin"` // 0 = no button
	Device       string        `yaml:"device"`     // serial port or input event device
	Baud         int           `yaml:"baud"`
	Debounce     time.Duration `yaml:"debounce"` // kernel line debounce, gpiocdev only
	PollInterval time.Duration `yaml:"poll_interval"`

	// Pull conventions come from the encoder settings.
	Pull       encoder.Pull `yaml:"-"`
	ButtonPull encoder.Pull `yaml:"-"`
}

// HasButton reports whether the source carries a push-button.
func (c Config) HasButton() bool {
	switch c.Source {
	case "serial", "keyboard", "virtual":
		return true
	}
	return c.ButtonPin > 0
}

// Handlers holds callback functions for rotary events. They run on the
// goroutine calling Run.
type Handlers struct {
	OnEvent  func(encoder.Event)
	OnSample func(ms uint32, s wire.Sample) // starting levels, then every change
}

// Source is where pin levels come from.
type Source interface {
	// Levels reads the pins now.
	Levels() wire.Sample
	// Samples delivers level changes in order as they happen. Sources
	// without change notification return nil and are read on every tick.
	Samples() <-chan wire.Sample
	Close() error
}

type input struct {
	sample wire.Sample
	button bool // take only SW from sample
}

// Rotary drives one encoder from one source.
type Rotary struct {
	enc      *encoder.Encoder
	src      Source
	handlers Handlers
	interval time.Duration
	btnPull  encoder.Pull

	cur    wire.Sample // written by Run only
	events []encoder.Event
	inject chan input
	done   chan struct{}
	once   sync.Once
}

// New opens the configured source and builds an encoder on it.
// Returns nil if no source is configured.
func New(cfg Config, opts []encoder.Option, handlers Handlers) (*Rotary, error) {
	if cfg.Source == "" {
		return nil, nil
	}
	src, err := openSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s source: %w", cfg.Source, err)
	}
	slog.Info("rotary source opened", "source", cfg.Source,
		"clk", cfg.CLKPin, "dt", cfg.DTPin, "button", cfg.ButtonPin, "device", cfg.Device)
	return newRotary(src, cfg, opts, handlers), nil
}

func newRotary(src Source, cfg Config, opts []encoder.Option, handlers Handlers) *Rotary {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	r := &Rotary{
		src:      src,
		handlers: handlers,
		interval: interval,
		btnPull:  cfg.ButtonPull,
		events:   make([]encoder.Event, 0, 16),
		inject:   make(chan input, 64),
		done:     make(chan struct{}),
	}

	opts = append([]encoder.Option{
		encoder.WithPull(cfg.Pull),
		encoder.WithButtonPull(cfg.ButtonPull),
	}, opts...)
	// Run decides when to poll.
	opts = append(opts, encoder.WithTickMode(encoder.Manual))
	r.enc = encoder.New(opts...)

	// The encoder reads r.cur, which only Run writes.
	clk, dt, swPin := r.cur.Pins()
	var sw encoder.Pin = encoder.NoButton
	if cfg.HasButton() {
		sw = swPin
	}
	r.cur = src.Levels()
	r.enc.Bind(clk, dt, sw)
	return r
}

// Encoder returns the encoder driven by r. Read its events only from
// Handlers.OnEvent, Run drains them.
func (r *Rotary) Encoder() *encoder.Encoder {
	return r.enc
}

// Run polls the encoder until ctx is done: on every tick, on every level
// change reported by the source and on every injected sample. Pending
// events are handed to Handlers.OnEvent after each poll.
func (r *Rotary) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	samples := r.src.Samples()
	if r.handlers.OnSample != nil {
		r.handlers.OnSample(r.enc.Clock().Millis(), r.cur)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.done:
			return ErrReleased
		case <-ticker.C:
			if samples == nil {
				r.apply(r.src.Levels())
			} else {
				r.apply(r.cur)
			}
		case s, ok := <-samples:
			if !ok {
				return fmt.Errorf("rotary source closed")
			}
			r.apply(s)
		case in := <-r.inject:
			s := in.sample
			if in.button {
				s.CLK, s.DT = r.cur.CLK, r.cur.DT
			}
			r.apply(s)
		}
	}
}

func (r *Rotary) apply(s wire.Sample) {
	if s != r.cur {
		r.cur = s
		if r.handlers.OnSample != nil {
			r.handlers.OnSample(r.enc.Clock().Millis(), s)
		}
	}
	r.enc.Poll()

	r.events = r.enc.Events(r.events[:0])
	for _, ev := range r.events {
		slog.Debug("encoder event", "event", ev)
		if r.handlers.OnEvent != nil {
			r.handlers.OnEvent(ev)
		}
	}
}

// Feed injects raw pin levels, applied in order by Run. It blocks while
// the injection queue is full.
func (r *Rotary) Feed(s wire.Sample) error {
	return r.send(input{sample: s})
}

// SetButton injects a press or a release, keeping the current CLK and DT
// levels.
func (r *Rotary) SetButton(pressed bool) error {
	// Pressed closes the switch: low with a pull-up, high with a pull-down.
	level := pressed == (r.btnPull == encoder.PullDown)
	return r.send(input{sample: wire.Sample{SW: level}, button: true})
}

func (r *Rotary) send(in input) error {
	select {
	case <-r.done:
		return ErrReleased
	default:
	}
	select {
	case r.inject <- in:
		return nil
	case <-r.done:
		return ErrReleased
	}
}

// Release stops Run and releases the source.
func (r *Rotary) Release() error {
	var err error
	r.once.Do(func() {
		close(r.done)
		err = r.src.Close()
	})
	return err
}
