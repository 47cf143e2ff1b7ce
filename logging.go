package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/dikkadev/prettyslog"
)

func parseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log level: %w", err)
	}
	return lvl, nil
}

// setupLogging installs the default logger writing to w.
func setupLogging(w io.Writer, level string) error {
	lvl, err := parseLevel(level)
	if err != nil {
		return err
	}
	logger := slog.New(prettyslog.NewPrettyslogHandler("knob",
		prettyslog.WithLevel(lvl),
		prettyslog.WithWriter(w),
	))
	slog.SetDefault(logger)
	return nil
}
