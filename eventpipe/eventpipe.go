package eventpipe

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"knob/wire"
)

// Config holds configuration for the event pipe.
type Config struct {
	Path string `yaml:"path"` // Path to named pipe (e.g., "/tmp/knob-events")
}

// Target receives the samples written to the pipe.
type Target interface {
	Feed(wire.Sample) error
	SetButton(pressed bool) error
}

// EventPipe listens for raw samples on a named pipe.
type EventPipe struct {
	path   string
	target Target
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new EventPipe. Returns nil if path is empty.
func New(cfg Config, target Target) (*EventPipe, error) {
	if cfg.Path == "" {
		return nil, nil
	}

	// Remove existing pipe if it exists
	os.Remove(cfg.Path)

	if err := mkfifo(cfg.Path); err != nil {
		return nil, fmt.Errorf("create named pipe %s: %w", cfg.Path, err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &EventPipe{
		path:   cfg.Path,
		target: target,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Start begins listening for commands on the pipe.
// This should be called as a goroutine.
func (ep *EventPipe) Start() {
	slog.Info("event pipe listening", "path", ep.path)

	for {
		select {
		case <-ep.ctx.Done():
			return
		default:
		}

		// Blocks until a writer connects.
		file, err := os.OpenFile(ep.path, os.O_RDONLY, 0)
		if err != nil {
			if ep.ctx.Err() != nil {
				return
			}
			slog.Warn("event pipe open failed", "path", ep.path, "err", err)
			continue
		}

		ep.serve(file)
		file.Close()
		// Writer closed the pipe, loop back to wait for next writer
	}
}

func (ep *EventPipe) serve(file *os.File) {
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if ep.ctx.Err() != nil {
			return
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		cmd, err := parseLine(line)
		if err != nil {
			slog.Warn("event pipe parse error", "line", line, "err", err)
			continue
		}
		if err := cmd.apply(ep.target); err != nil {
			slog.Warn("event pipe command failed", "line", line, "err", err)
			return
		}
	}
}

// Close stops the event pipe listener and removes the pipe.
func (ep *EventPipe) Close() error {
	ep.cancel()
	wake(ep.path)
	return os.Remove(ep.path)
}

// Exec parses one command line and applies it to t. MQTT control messages
// use the same commands as the pipe.
func Exec(t Target, line string) error {
	cmd, err := parseLine(strings.TrimSpace(line))
	if err != nil {
		return err
	}
	return cmd.apply(t)
}

type command struct {
	sample  wire.Sample
	button  bool
	pressed bool
}

func (c command) apply(t Target) error {
	if c.button {
		return t.SetButton(c.pressed)
	}
	return t.Feed(c.sample)
}

// parseLine parses a command line.
// Command format:
//
//	tick <clk> <dt> <sw>   - Raw pin levels, 0 or 1 each
//	press                  - Close the switch, CLK and DT unchanged
//	release                - Open the switch
func parseLine(line string) (command, error) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return command{}, fmt.Errorf("empty command")
	}

	cmd := strings.ToLower(parts[0])

	switch cmd {
	case "tick":
		s, err := wire.ParseSample(parts[1:])
		if err != nil {
			return command{}, fmt.Errorf("tick: %w", err)
		}
		return command{sample: s}, nil

	case "press", "release":
		if len(parts) != 1 {
			return command{}, fmt.Errorf("%s takes no arguments", cmd)
		}
		return command{button: true, pressed: cmd == "press"}, nil

	default:
		return command{}, fmt.Errorf("unknown command: %s", cmd)
	}
}
