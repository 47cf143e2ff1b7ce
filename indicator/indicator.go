package indicator

import (
	"time"

	"knob/encoder"
)

// Indicator is the interface for event feedback implementations (LEDs, neopixels, etc).
type Indicator interface {
	// Event shows one encoder event.
	Event(ev encoder.Event)

	// Idle sets the indicator to idle/ready state.
	Idle()

	// ConnectionLost sets the indicator to connection lost state.
	ConnectionLost()

	// Shutdown sets the indicator to shutdown state.
	Shutdown()

	// Release releases any hardware resources.
	Release() error
}

// DefaultPulse is how long a turn LED stays lit.
const DefaultPulse = 50 * time.Millisecond

// Config holds configuration for indicator implementations.
type Config struct {
	// GPIO LED pins (nil = not configured)
	RightPin  *uint8 `yaml:"right_pin"`
	LeftPin   *uint8 `yaml:"left_pin"`
	ButtonPin *uint8 `yaml:"button_pin"`

	// Turn LED pulse length (0 = DefaultPulse)
	Pulse time.Duration `yaml:"pulse"`

	// Neopixel pipe path (empty = not configured)
	NeopixelPipe string `yaml:"neopixel_pipe"`
}

// New creates an Indicator based on the provided configuration.
// Returns a Multi indicator if both GPIO and Neopixel are configured.
func New(cfg Config) (Indicator, error) {
	var indicators []Indicator

	// Add GPIO indicator if any pins configured
	if cfg.RightPin != nil || cfg.LeftPin != nil || cfg.ButtonPin != nil {
		pulse := cfg.Pulse
		if pulse <= 0 {
			pulse = DefaultPulse
		}
		gpio, err := NewGPIO(cfg.RightPin, cfg.LeftPin, cfg.ButtonPin, pulse)
		if err != nil {
			return nil, err
		}
		indicators = append(indicators, gpio)
	}

	// Add Neopixel indicator if pipe configured
	if cfg.NeopixelPipe != "" {
		neo, err := NewNeopixel(cfg.NeopixelPipe)
		if err != nil {
			for _, ind := range indicators {
				ind.Release()
			}
			return nil, err
		}
		indicators = append(indicators, neo)
	}

	if len(indicators) == 0 {
		return &Noop{}, nil
	}
	if len(indicators) == 1 {
		return indicators[0], nil
	}
	return &Multi{indicators: indicators}, nil
}
