package rotary

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"knob/encoder"
	"knob/wire"
)

// One detent to the right, as read on pull-up pins.
var rightLevels = []wire.Sample{
	{CLK: false, DT: true, SW: true},
	{CLK: false, DT: false, SW: true},
	{CLK: true, DT: false, SW: true},
	{CLK: true, DT: true, SW: true},
}

type fakeSource struct {
	mu      sync.Mutex
	levels  wire.Sample
	samples chan wire.Sample
	closed  bool
}

func newFakeSource(notify bool) *fakeSource {
	f := &fakeSource{levels: wire.Sample{CLK: true, DT: true, SW: true}}
	if notify {
		f.samples = make(chan wire.Sample, 16)
	}
	return f
}

func (f *fakeSource) Levels() wire.Sample {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.levels
}

func (f *fakeSource) set(s wire.Sample) {
	f.mu.Lock()
	f.levels = s
	f.mu.Unlock()
}

func (f *fakeSource) Samples() <-chan wire.Sample {
	if f.samples == nil {
		return nil
	}
	return f.samples
}

func (f *fakeSource) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// harness runs a Rotary and collects its events.
type harness struct {
	r      *Rotary
	events chan encoder.Event
	errc   chan error
	cancel context.CancelFunc
}

func start(t *testing.T, src Source, cfg Config, opts ...encoder.Option) *harness {
	t.Helper()
	h := &harness{
		events: make(chan encoder.Event, 64),
		errc:   make(chan error, 1),
	}
	h.r = newRotary(src, cfg, opts, Handlers{
		OnEvent: func(ev encoder.Event) { h.events <- ev },
	})
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.errc <- h.r.Run(ctx) }()
	t.Cleanup(cancel)
	return h
}

func (h *harness) next(t *testing.T, n int) []encoder.Event {
	t.Helper()
	var got []encoder.Event
	timeout := time.After(2 * time.Second)
	for len(got) < n {
		select {
		case ev := <-h.events:
			got = append(got, ev)
		case <-timeout:
			t.Fatalf("got %v, want %d events", got, n)
		}
	}
	return got
}

func TestNewDisabled(t *testing.T) {
	r, err := New(Config{}, nil, Handlers{})
	assert.NoError(t, err)
	assert.Nil(t, r)
}

func TestNewRejectsBadConfig(t *testing.T) {
	for _, cfg := range []Config{
		{Source: "carrier-pigeon"},
		{Source: "gpiocdev", CLKPin: 5},
		{Source: "gpio", DTPin: 6},
		{Source: "serial"},
		{Source: "keyboard"},
	} {
		_, err := New(cfg, nil, Handlers{})
		assert.Error(t, err, cfg.Source)
	}
}

func TestHasButton(t *testing.T) {
	assert.False(t, Config{Source: "gpiocdev"}.HasButton())
	assert.True(t, Config{Source: "gpiocdev", ButtonPin: 13}.HasButton())
	assert.True(t, Config{Source: "serial"}.HasButton())
}

func TestRunDecodesSourceSamples(t *testing.T) {
	src := newFakeSource(true)
	h := start(t, src, Config{})

	for _, s := range rightLevels {
		src.samples <- s
	}
	assert.Equal(t, []encoder.Event{encoder.Turn, encoder.Right}, h.next(t, 2))
}

func TestRunReadsPolledSource(t *testing.T) {
	src := newFakeSource(false)
	h := start(t, src, Config{PollInterval: time.Millisecond})

	// The right detent walked backwards.
	for _, i := range []int{2, 1, 0, 3} {
		src.set(rightLevels[i])
		time.Sleep(20 * time.Millisecond)
	}
	assert.Equal(t, []encoder.Event{encoder.Turn, encoder.Left}, h.next(t, 2))
}

func TestFeedAndSetButton(t *testing.T) {
	h := start(t, newVirtual(Config{}), Config{Source: "virtual"}, encoder.WithButtonDebounce(5))

	for _, s := range rightLevels {
		require.NoError(t, h.r.Feed(s))
	}
	assert.Equal(t, []encoder.Event{encoder.Turn, encoder.Right}, h.next(t, 2))

	require.NoError(t, h.r.SetButton(true))
	assert.Equal(t, []encoder.Event{encoder.Press}, h.next(t, 1))

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, h.r.SetButton(false))
	assert.Equal(t, []encoder.Event{encoder.Release, encoder.Click}, h.next(t, 2))
}

func TestSetButtonPullDown(t *testing.T) {
	cfg := Config{Source: "virtual", Pull: encoder.PullDown, ButtonPull: encoder.PullDown}
	h := start(t, newVirtual(cfg), cfg)

	require.NoError(t, h.r.SetButton(true))
	assert.Equal(t, []encoder.Event{encoder.Press}, h.next(t, 1))
}

func TestNoButtonIgnoresSwitch(t *testing.T) {
	src := newFakeSource(true)
	h := start(t, src, Config{Source: "gpiocdev"})

	src.samples <- wire.Sample{CLK: true, DT: true, SW: false}
	for _, s := range rightLevels {
		s.SW = false
		src.samples <- s
	}
	assert.Equal(t, []encoder.Event{encoder.Turn, encoder.Right}, h.next(t, 2))
}

func TestOnSampleReportsStartAndChanges(t *testing.T) {
	src := newFakeSource(true)
	var mu sync.Mutex
	var seen []wire.Sample
	r := newRotary(src, Config{}, nil, Handlers{
		OnSample: func(_ uint32, s wire.Sample) {
			mu.Lock()
			seen = append(seen, s)
			mu.Unlock()
		},
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	src.samples <- wire.Sample{CLK: true, DT: true, SW: true}
	src.samples <- rightLevels[0]
	src.samples <- rightLevels[0]
	src.samples <- rightLevels[1]

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 3
	}, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	mu.Lock()
	rest := wire.Sample{CLK: true, DT: true, SW: true}
	assert.Equal(t, []wire.Sample{rest, rightLevels[0], rightLevels[1]}, seen)
	mu.Unlock()
}

func TestRelease(t *testing.T) {
	src := newFakeSource(true)
	h := start(t, src, Config{})

	require.NoError(t, h.r.Release())
	require.NoError(t, h.r.Release())
	assert.ErrorIs(t, <-h.errc, ErrReleased)
	assert.ErrorIs(t, h.r.Feed(wire.Sample{}), ErrReleased)
	assert.True(t, src.closed)
}

func TestRunStopsWhenSourceCloses(t *testing.T) {
	src := newFakeSource(true)
	h := start(t, src, Config{})

	close(src.samples)
	err := <-h.errc
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrReleased))
}

func TestRunStopsOnCancel(t *testing.T) {
	h := start(t, newFakeSource(true), Config{})
	h.cancel()
	assert.ErrorIs(t, <-h.errc, context.Canceled)
}

func TestDecodeSamples(t *testing.T) {
	var got []wire.Sample
	bad := decodeSamples([]byte{0x07, 0xFF, 0x01, 0x08}, func(s wire.Sample) {
		got = append(got, s)
	})
	assert.Equal(t, 2, bad)
	assert.Equal(t, []wire.Sample{{CLK: true, DT: true, SW: true}, {CLK: true}}, got)
}

func TestSerialRead(t *testing.T) {
	pr, pw := io.Pipe()
	s := &serialSource{
		device:  "test",
		samples: make(chan wire.Sample, sampleBuffer),
		done:    make(chan struct{}),
	}
	go s.read(pr)

	_, err := pw.Write([]byte{0x07, 0x06, 0x40, 0x04})
	require.NoError(t, err)
	assert.Equal(t, wire.Sample{CLK: true, DT: true, SW: true}, <-s.samples)
	assert.Equal(t, wire.Sample{DT: true, SW: true}, <-s.samples)
	assert.Equal(t, wire.Sample{SW: true}, <-s.samples)
	assert.Equal(t, wire.Sample{SW: true}, s.Levels())

	pw.CloseWithError(errors.New("unplugged"))
	_, ok := <-s.samples
	assert.False(t, ok)
}

func TestLevelsSet(t *testing.T) {
	var l levels
	l.store(wire.Sample{CLK: true, DT: true, SW: true})
	assert.Equal(t, wire.Sample{DT: true, SW: true}, l.set(maskCLK, false))
	assert.Equal(t, wire.Sample{CLK: true, DT: true, SW: true}, l.set(maskCLK, true))
	assert.Equal(t, wire.Sample{CLK: true, DT: true}, l.set(maskSW, false))
	assert.Equal(t, wire.Sample{CLK: true, DT: true}, l.load())
}

func TestIdle(t *testing.T) {
	assert.Equal(t, wire.Sample{CLK: true, DT: true, SW: true}, idle(Config{}))
	assert.Equal(t, wire.Sample{}, idle(Config{Pull: encoder.PullDown, ButtonPull: encoder.PullDown}))
}
