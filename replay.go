package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"knob/encoder"
	"knob/wire"
)

// maxIdleSteps bounds the per-millisecond polling between two trace ticks.
const maxIdleSteps = 60000

type replayOptions struct {
	*rootOptions
	Algorithm string
	Type      string
	NoConfig  bool
}

func newReplayCommand(rootOpts *rootOptions) *cobra.Command {
	opts := &replayOptions{rootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <trace>",
		Short: "Decode a recorded trace and print its events",
		Long: `Decode a trace of timestamped samples, as written by "knobd capture",
and print one line per event: "<ms> <event>".

The encoder settings come from the config file; --algorithm and --type
override them. Use "-" to read the trace from stdin.

Examples:
  knobd replay session.trace
  knobd replay --no-config --algorithm fast session.trace`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Algorithm, "algorithm", "", "decoder algorithm (fast|binary|precise)")
	cmd.Flags().StringVar(&opts.Type, "type", "", "encoder type (full|half)")
	cmd.Flags().BoolVar(&opts.NoConfig, "no-config", false, "ignore the config file and use encoder defaults")

	return cmd
}

func runReplay(opts *replayOptions, path string, cmd *cobra.Command) error {
	var ecfg EncoderConfig
	if !opts.NoConfig {
		cfg, err := LoadConfig(opts.ConfigFile)
		if err != nil {
			return err
		}
		ecfg = cfg.Encoder
	}
	if opts.Algorithm != "" {
		ecfg.Algorithm = opts.Algorithm
	}
	if opts.Type != "" {
		ecfg.Type = opts.Type
	}
	encOpts, err := ecfg.Options()
	if err != nil {
		return err
	}

	var r io.Reader = cmd.InOrStdin()
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open trace: %w", err)
		}
		defer f.Close()
		r = f
	}
	ticks, err := wire.ParseTrace(r)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return replay(ticks, encOpts, cmd.OutOrStdout())
}

// traceClock is the time of the trace being replayed.
type traceClock struct {
	ms uint32
}

func (c *traceClock) Millis() uint32 { return c.ms }

// replay feeds ticks to a fresh encoder and writes every event it reports.
// Between two ticks the encoder is polled once per millisecond with the
// earlier levels, so hold timeouts fire when they would have live.
func replay(ticks []wire.Tick, opts []encoder.Option, w io.Writer) error {
	if len(ticks) == 0 {
		return nil
	}

	clock := &traceClock{ms: ticks[0].Millis}
	cur := ticks[0].Sample
	clk, dt, sw := cur.Pins()

	all := make([]encoder.Option, 0, len(opts)+2)
	all = append(all, opts...)
	all = append(all, encoder.WithClock(clock), encoder.WithTickMode(encoder.Manual))
	enc := encoder.NewEncoderWithButton(clk, dt, sw, all...)

	var events []encoder.Event
	poll := func() error {
		enc.Poll()
		events = enc.Events(events[:0])
		for _, ev := range events {
			if _, err := fmt.Fprintf(w, "%d %s\n", clock.ms, ev); err != nil {
				return err
			}
		}
		return nil
	}

	if err := poll(); err != nil {
		return err
	}
	for i, t := range ticks[1:] {
		if t.Millis < clock.ms {
			return fmt.Errorf("tick %d: time goes back from %d to %d", i+2, clock.ms, t.Millis)
		}
		for steps := 0; clock.ms+1 < t.Millis && steps < maxIdleSteps; steps++ {
			clock.ms++
			if err := poll(); err != nil {
				return err
			}
		}
		clock.ms = t.Millis
		cur = t.Sample
		if err := poll(); err != nil {
			return err
		}
	}
	return nil
}
