//go:build linux

package rotary

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kenshaw/evdev"

	"knob/encoder"
	"knob/wire"
)

// keyboard simulates an encoder on a bench keyboard: A closes the CLK
// contact, S closes DT and Space closes the switch while held. Walking
// A, A+S, S, none is one detent to the right.
type keyboard struct {
	device  *evdev.Evdev
	pull    encoder.Pull
	btnPull encoder.Pull
	levels  levels
	samples chan wire.Sample
	cancel  context.CancelFunc
}

func openKeyboard(cfg Config) (Source, error) {
	dev, err := evdev.OpenFile(cfg.Device)
	if err != nil {
		return nil, fmt.Errorf("open evdev %s: %w", cfg.Device, err)
	}
	slog.Info("keyboard opened", "device", cfg.Device, "name", dev.Name(),
		"vendor", fmt.Sprintf("0x%04x", dev.ID().Vendor),
		"product", fmt.Sprintf("0x%04x", dev.ID().Product))

	ctx, cancel := context.WithCancel(context.Background())
	k := &keyboard{
		device:  dev,
		pull:    cfg.Pull,
		btnPull: cfg.ButtonPull,
		samples: make(chan wire.Sample, sampleBuffer),
		cancel:  cancel,
	}
	k.levels.store(idle(cfg))
	go k.run(ctx)
	return k, nil
}

func (k *keyboard) run(ctx context.Context) {
	ch := k.device.Poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-ch:
			if event == nil {
				slog.Warn("keyboard device closed")
				close(k.samples)
				return
			}

			switch event.Type.(type) {
			case evdev.KeyType:
				// 2 is autorepeat.
				if event.Value == 2 {
					continue
				}
				active := event.Value == 1

				switch event.Type {
				case evdev.KeyA:
					push(k.samples, k.levels.set(maskCLK, level(active, k.pull)))
				case evdev.KeyS:
					push(k.samples, k.levels.set(maskDT, level(active, k.pull)))
				case evdev.KeySpace:
					push(k.samples, k.levels.set(maskSW, level(active, k.btnPull)))
				}
			}
		}
	}
}

func (k *keyboard) Levels() wire.Sample {
	return k.levels.load()
}

func (k *keyboard) Samples() <-chan wire.Sample {
	return k.samples
}

func (k *keyboard) Close() error {
	k.cancel()
	return k.device.Close()
}
