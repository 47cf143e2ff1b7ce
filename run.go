package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"knob/encoder"
	"knob/eventpipe"
	"knob/indicator"
	"knob/mqtt"
	"knob/rotary"
	"knob/wsfeed"
)

// App holds the daemon state and dependencies.
type App struct {
	cfg       *Config
	mqtt      *mqtt.Client
	indicator indicator.Indicator
	rotary    *rotary.Rotary
	pipe      *eventpipe.EventPipe
	feed      *wsfeed.Feed
	now       func() time.Time
}

func newRunCommand(rootOpts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Decode the configured encoder and publish its events (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(rootOpts, cmd)
		},
	}
}

func runDaemon(opts *rootOptions, cmd *cobra.Command) error {
	cfg, err := LoadConfig(opts.ConfigFile)
	if err != nil {
		return err
	}
	if opts.LogLevel == "" {
		if err := setupLogging(cmd.ErrOrStderr(), cfg.LogLevel); err != nil {
			return err
		}
	}
	slog.Info("knobd starting", "build", myBuild, "client_id", cfg.ClientID)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := NewApp(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	err = app.Run(ctx)
	slog.Info("shutdown complete")
	return err
}

// NewApp opens every configured component. Components left out of the
// configuration are disabled.
func NewApp(cfg *Config) (_ *App, err error) {
	app := &App{cfg: cfg, now: time.Now}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	app.indicator, err = indicator.New(cfg.Indicator)
	if err != nil {
		return nil, fmt.Errorf("init indicator: %w", err)
	}
	// Start in connection lost state until MQTT comes up
	app.indicator.ConnectionLost()

	encOpts, err := cfg.Encoder.Options()
	if err != nil {
		return nil, err
	}
	app.rotary, err = rotary.New(cfg.Rotary, encOpts, rotary.Handlers{
		OnEvent: app.onEvent,
	})
	if err != nil {
		return nil, fmt.Errorf("init rotary: %w", err)
	}
	if app.rotary == nil {
		return nil, errors.New("rotary.source missing in config file")
	}

	app.pipe, err = eventpipe.New(cfg.EventPipe, app.rotary)
	if err != nil {
		return nil, fmt.Errorf("init event pipe: %w", err)
	}

	app.feed, err = wsfeed.New(cfg.WebSocket)
	if err != nil {
		return nil, fmt.Errorf("init websocket feed: %w", err)
	}

	app.mqtt, err = mqtt.New(cfg.MQTT, cfg.ClientID, mqtt.Handlers{
		OnConnect:    app.onMQTTConnect,
		OnDisconnect: app.onMQTTDisconnect,
		OnMessage:    app.onMQTTMessage,
	})
	if err != nil {
		return nil, fmt.Errorf("init MQTT: %w", err)
	}
	return app, nil
}

// Run decodes until ctx is canceled or a component fails.
func (app *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := app.rotary.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	if app.feed != nil {
		g.Go(func() error { return app.feed.Run(ctx) })
	}
	if app.pipe != nil {
		go app.pipe.Start()
	}
	go func() {
		if err := app.mqtt.Connect(); err != nil {
			slog.Warn("MQTT connect failed", "err", err)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
	app.indicator.Shutdown()
	return g.Wait()
}

// Close releases every component. Safe on a partly built App.
func (app *App) Close() {
	if app.pipe != nil {
		if err := app.pipe.Close(); err != nil {
			slog.Warn("event pipe close failed", "err", err)
		}
	}
	if app.mqtt != nil {
		app.mqtt.Disconnect()
	}
	if app.rotary != nil {
		if err := app.rotary.Release(); err != nil {
			slog.Warn("rotary release failed", "err", err)
		}
	}
	if app.indicator != nil {
		if err := app.indicator.Release(); err != nil {
			slog.Warn("indicator release failed", "err", err)
		}
	}
}

// onEvent fans one decoded event out to every listener. It runs on the
// rotary goroutine.
func (app *App) onEvent(ev encoder.Event) {
	at := app.now()
	slog.Debug("encoder event", "event", ev)
	app.indicator.Event(ev)
	if app.mqtt != nil {
		if err := app.mqtt.PublishEvent(ev, at); err != nil {
			slog.Warn("publish event failed", "event", ev, "err", err)
		}
	}
	if app.feed != nil {
		app.feed.Broadcast(ev, at)
	}
}

func (app *App) onMQTTConnect() {
	topic := mqtt.ControlTopic(app.cfg.ClientID)
	if err := app.mqtt.Subscribe(topic); err != nil {
		slog.Warn("subscribe failed", "topic", topic, "err", err)
	}
	app.indicator.Idle()
}

func (app *App) onMQTTDisconnect() {
	app.indicator.ConnectionLost()
}

func (app *App) onMQTTMessage(topic string, payload []byte) {
	if topic != mqtt.ControlTopic(app.cfg.ClientID) {
		return
	}
	if err := eventpipe.Exec(app.rotary, string(payload)); err != nil {
		slog.Warn("control command failed", "payload", string(payload), "err", err)
	}
}
