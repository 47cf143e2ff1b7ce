package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"knob/rotary"
	"knob/wire"
)

type captureOptions struct {
	*rootOptions
	Out      string
	Duration time.Duration
}

func newCaptureCommand(rootOpts *rootOptions) *cobra.Command {
	opts := &captureOptions{rootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Record the configured source as a trace",
		Long: `Record every level change of the configured source as a trace that
"knobd replay" reads back. Stops on SIGINT, SIGTERM or after --duration.

Examples:
  knobd capture --out session.trace
  knobd capture --duration 10s > session.trace`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCapture(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Out, "out", "o", "", "trace file (default stdout)")
	cmd.Flags().DurationVar(&opts.Duration, "duration", 0, "stop after this long (0 = until interrupted)")

	return cmd
}

func runCapture(opts *captureOptions, cmd *cobra.Command) error {
	cfg, err := LoadConfig(opts.ConfigFile)
	if err != nil {
		return err
	}

	var w io.Writer = cmd.OutOrStdout()
	if opts.Out != "" {
		f, err := os.Create(opts.Out)
		if err != nil {
			return fmt.Errorf("create trace: %w", err)
		}
		defer f.Close()
		w = f
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if opts.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	encOpts, err := cfg.Encoder.Options()
	if err != nil {
		return err
	}
	var werr error
	r, err := rotary.New(cfg.Rotary, encOpts, rotary.Handlers{
		OnSample: func(ms uint32, s wire.Sample) {
			if werr == nil {
				werr = wire.WriteTick(w, wire.Tick{Millis: ms, Sample: s})
			}
		},
	})
	if err != nil {
		return fmt.Errorf("init rotary: %w", err)
	}
	if r == nil {
		return errors.New("rotary.source missing in config file")
	}
	defer r.Release()

	return capture(ctx, r, func() error { return werr })
}

// capture runs r until ctx is done. Reaching the end of ctx is a normal
// stop; writeErr reports a failed trace write.
func capture(ctx context.Context, r *rotary.Rotary, writeErr func() error) error {
	slog.Info("capturing")
	err := r.Run(ctx)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		err = nil
	}
	if werr := writeErr(); werr != nil {
		return fmt.Errorf("write trace: %w", werr)
	}
	return err
}
