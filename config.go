package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"knob/encoder"
	"knob/eventpipe"
	"knob/indicator"
	"knob/mqtt"
	"knob/rotary"
	"knob/wsfeed"
)

// Config is the main configuration structure for knobd.
type Config struct {
	// Encoder decoding settings
	Encoder EncoderConfig `yaml:"encoder"`

	// Input source and pins
	Rotary rotary.Config `yaml:"rotary"`

	// MQTT connection settings
	MQTT mqtt.Config `yaml:"mqtt"`

	// Indicator configuration
	Indicator indicator.Config `yaml:"indicator"`

	// Named pipe for sample injection
	EventPipe eventpipe.Config `yaml:"event_pipe"`

	// Websocket event feed
	WebSocket wsfeed.Config `yaml:"websocket"`

	// General settings
	ClientID string `yaml:"client_id"`
	LogLevel string `yaml:"log_level"`
}

// EncoderConfig holds the encoder settings. Durations are milliseconds;
// unset fields take the encoder defaults.
type EncoderConfig struct {
	Type           string  `yaml:"type"`      // "full" or "half"
	Algorithm      string  `yaml:"algorithm"` // "fast", "binary" or "precise"
	Direction      string  `yaml:"direction"` // "normal" or "reverse"
	Pull           string  `yaml:"pull"`      // "up" or "down"
	ButtonPull     string  `yaml:"button_pull"`
	FastTimeout    *uint32 `yaml:"fast_timeout"`
	TurnDebounce   *uint32 `yaml:"turn_debounce"`
	ButtonDebounce *uint32 `yaml:"button_debounce"`
	HoldTimeout    *uint32 `yaml:"hold_timeout"`
}

// LoadConfig reads, defaults and validates the configuration file at path.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	if err := cfg.finish(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &cfg, nil
}

// finish fills defaults and checks the settings.
func (c *Config) finish() error {
	if c.ClientID == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return fmt.Errorf("client_id missing and no hostname: %w", err)
		}
		c.ClientID = hostname
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.Rotary.PollInterval == 0 {
		c.Rotary.PollInterval = rotary.DefaultPollInterval
	}
	if c.Rotary.PollInterval < 0 || c.Rotary.PollInterval > time.Second {
		return fmt.Errorf("rotary.poll_interval %s out of range", c.Rotary.PollInterval)
	}

	pull, err := parsePull(c.Encoder.Pull)
	if err != nil {
		return fmt.Errorf("encoder.pull: %w", err)
	}
	buttonPull, err := parsePull(c.Encoder.ButtonPull)
	if err != nil {
		return fmt.Errorf("encoder.button_pull: %w", err)
	}
	c.Rotary.Pull, c.Rotary.ButtonPull = pull, buttonPull

	_, err = c.Encoder.Options()
	return err
}

// Options converts the settings to encoder options.
func (e EncoderConfig) Options() ([]encoder.Option, error) {
	var opts []encoder.Option

	switch e.Type {
	case "", "full":
		opts = append(opts, encoder.WithType(encoder.FullStep))
	case "half":
		opts = append(opts, encoder.WithType(encoder.HalfStep))
	default:
		return nil, fmt.Errorf("encoder.type: unknown type %q", e.Type)
	}

	switch e.Algorithm {
	case "":
	case "fast":
		opts = append(opts, encoder.WithAlgorithm(encoder.Fast))
	case "binary":
		opts = append(opts, encoder.WithAlgorithm(encoder.Binary))
	case "precise":
		opts = append(opts, encoder.WithAlgorithm(encoder.Precise))
	default:
		return nil, fmt.Errorf("encoder.algorithm: unknown algorithm %q", e.Algorithm)
	}

	switch e.Direction {
	case "", "normal":
	case "reverse":
		opts = append(opts, encoder.WithDirection(encoder.Reverse))
	default:
		return nil, fmt.Errorf("encoder.direction: unknown direction %q", e.Direction)
	}

	pull, err := parsePull(e.Pull)
	if err != nil {
		return nil, fmt.Errorf("encoder.pull: %w", err)
	}
	buttonPull, err := parsePull(e.ButtonPull)
	if err != nil {
		return nil, fmt.Errorf("encoder.button_pull: %w", err)
	}
	opts = append(opts, encoder.WithPull(pull), encoder.WithButtonPull(buttonPull))

	if e.FastTimeout != nil {
		opts = append(opts, encoder.WithFastTimeout(*e.FastTimeout))
	}
	if e.TurnDebounce != nil {
		opts = append(opts, encoder.WithTurnDebounce(*e.TurnDebounce))
	}
	if e.ButtonDebounce != nil {
		opts = append(opts, encoder.WithButtonDebounce(*e.ButtonDebounce))
	}
	if e.HoldTimeout != nil {
		if *e.HoldTimeout == 0 {
			return nil, fmt.Errorf("encoder.hold_timeout must be positive")
		}
		opts = append(opts, encoder.WithHoldTimeout(*e.HoldTimeout))
	}
	return opts, nil
}

func parsePull(s string) (encoder.Pull, error) {
	switch s {
	case "", "up":
		return encoder.PullUp, nil
	case "down":
		return encoder.PullDown, nil
	}
	return 0, fmt.Errorf("unknown pull %q", s)
}
