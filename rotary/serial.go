package rotary

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/tarm/serial"

	"knob/wire"
)

// serialSource reads samples streamed by an I/O expander, one wire byte
// per sample.
type serialSource struct {
	port    *serial.Port
	device  string
	levels  levels
	samples chan wire.Sample
	done    chan struct{}
	once    sync.Once
}

func openSerial(cfg Config) (Source, error) {
	baud := cfg.Baud
	if baud == 0 {
		baud = 115200
	}
	c := &serial.Config{
		Name:        cfg.Device,
		Baud:        baud,
		ReadTimeout: 100 * time.Millisecond,
	}
	port, err := serial.OpenPort(c)
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", cfg.Device, err)
	}

	s := &serialSource{
		port:    port,
		device:  cfg.Device,
		samples: make(chan wire.Sample, sampleBuffer),
		done:    make(chan struct{}),
	}
	s.levels.store(idle(cfg))
	go s.read(port)
	return s, nil
}

func (s *serialSource) read(r io.Reader) {
	defer close(s.samples)
	buf := make([]byte, 64)
	for {
		n, err := r.Read(buf)
		bad := decodeSamples(buf[:n], func(smp wire.Sample) {
			s.levels.store(smp)
			// Samples are not dropped: a lost edge would corrupt decoding.
			select {
			case s.samples <- smp:
			case <-s.done:
			}
		})
		if bad > 0 {
			slog.Debug("serial bytes skipped", "device", s.device, "count", bad)
		}

		select {
		case <-s.done:
			return
		default:
		}
		switch {
		case err == nil, errors.Is(err, io.EOF):
			// Read timed out.
		default:
			slog.Error("serial read failed", "device", s.device, "err", err)
			return
		}
	}
}

// decodeSamples calls fn for every valid sample byte in b and returns the
// number of bytes skipped.
func decodeSamples(b []byte, fn func(wire.Sample)) int {
	bad := 0
	for _, c := range b {
		smp, ok := wire.FromByte(c)
		if !ok {
			bad++
			continue
		}
		fn(smp)
	}
	return bad
}

func (s *serialSource) Levels() wire.Sample {
	return s.levels.load()
}

func (s *serialSource) Samples() <-chan wire.Sample {
	return s.samples
}

func (s *serialSource) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.port.Close()
	})
	return err
}
