package encoder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	ms uint32
}

func (c *fakeClock) Millis() uint32 { return c.ms }

type fakePin struct {
	level bool
}

func (p *fakePin) Get() bool { return p.level }

var algorithms = []Algorithm{Fast, Binary, Precise}

// Contact-active states for one clean detent cycle.
var (
	cycleRight = []uint8{stateCLK, stateBoth, stateDT, stateRest}
	cycleLeft  = []uint8{stateDT, stateBoth, stateCLK, stateRest}
)

// rig drives an encoder wired with pull-ups through PollLevels.
type rig struct {
	clock *fakeClock
	enc   *Encoder
	sw    bool // raw switch level, high when released
}

func newRig(t *testing.T, opts ...Option) *rig {
	clock := &fakeClock{ms: 1000}
	r := &rig{clock: clock, sw: true}
	r.enc = New(append([]Option{WithClock(clock)}, opts...)...)
	return r
}

// feed polls each contact-active state, advancing the clock by step ms
// before every sample.
func (r *rig) feed(step uint32, states ...uint8) {
	for _, s := range states {
		r.clock.ms += step
		r.enc.PollLevels(s&stateCLK == 0, s&stateDT == 0, r.sw)
	}
}

func (r *rig) count(accessor func() bool) int {
	n := 0
	for accessor() {
		n++
	}
	return n
}

func TestCleanCycleOneEventPerCycle(t *testing.T) {
	for _, alg := range algorithms {
		t.Run(alg.String(), func(t *testing.T) {
			r := newRig(t, WithAlgorithm(alg))

			for i := 0; i < 3; i++ {
				r.feed(5, cycleRight...)
				assert.True(t, r.enc.IsRight(), "cycle %d", i)
				assert.False(t, r.enc.IsLeft(), "cycle %d", i)
				assert.True(t, r.enc.IsTurn(), "cycle %d", i)
			}
			for i := 0; i < 3; i++ {
				r.feed(5, cycleLeft...)
				assert.True(t, r.enc.IsLeft(), "cycle %d", i)
				assert.False(t, r.enc.IsRight(), "cycle %d", i)
			}
		})
	}
}

func TestPartialCycleNoEvent(t *testing.T) {
	for _, alg := range algorithms {
		t.Run(alg.String(), func(t *testing.T) {
			r := newRig(t, WithAlgorithm(alg))

			r.feed(5, stateCLK, stateBoth, stateDT)
			assert.False(t, r.enc.IsTurn())
			r.feed(5, stateRest)
			assert.True(t, r.enc.IsRight())
		})
	}
}

func TestHalfStepTwoEventsPerCycle(t *testing.T) {
	for _, alg := range algorithms {
		t.Run(alg.String(), func(t *testing.T) {
			r := newRig(t, WithAlgorithm(alg), WithType(HalfStep))

			r.feed(5, stateCLK, stateBoth)
			assert.True(t, r.enc.IsRight(), "first half")
			r.feed(5, stateDT, stateRest)
			assert.True(t, r.enc.IsRight(), "second half")

			r.feed(5, stateDT, stateBoth)
			assert.True(t, r.enc.IsLeft(), "first half")
			r.feed(5, stateCLK, stateRest)
			assert.True(t, r.enc.IsLeft(), "second half")
		})
	}
}

func TestSetTypeAtRuntime(t *testing.T) {
	r := newRig(t)
	r.enc.SetType(HalfStep)
	r.feed(5, stateCLK, stateBoth)
	assert.True(t, r.enc.IsRight())

	r.enc.SetType(FullStep)
	r.feed(5, stateDT, stateRest)
	assert.False(t, r.enc.IsRight(), "half a cycle is not a full-step detent")
	r.feed(5, cycleRight...)
	assert.True(t, r.enc.IsRight())
}

func TestReadAndClear(t *testing.T) {
	r := newRig(t)
	r.feed(5, cycleRight...)

	assert.True(t, r.enc.IsRight())
	assert.False(t, r.enc.IsRight())
	assert.True(t, r.enc.IsTurn())
	assert.False(t, r.enc.IsTurn())
}

func TestReverseDirection(t *testing.T) {
	for _, alg := range algorithms {
		t.Run(alg.String(), func(t *testing.T) {
			r := newRig(t, WithAlgorithm(alg), WithDirection(Reverse))
			r.feed(5, cycleRight...)
			assert.True(t, r.enc.IsLeft())
			assert.False(t, r.enc.IsRight())

			r.enc.SetDirection(Normal)
			r.feed(5, cycleRight...)
			assert.True(t, r.enc.IsRight())
		})
	}
}

func TestBounceTolerated(t *testing.T) {
	cases := []struct {
		name   string
		states []uint8
	}{
		{"bounce on first edge", []uint8{stateCLK, stateRest, stateCLK, stateBoth, stateDT, stateRest}},
		{"bounce in the middle", []uint8{stateCLK, stateBoth, stateCLK, stateBoth, stateDT, stateRest}},
		{"bounce before last edge", []uint8{stateCLK, stateBoth, stateDT, stateBoth, stateDT, stateRest}},
	}
	for _, alg := range []Algorithm{Binary, Precise} {
		for _, tc := range cases {
			t.Run(alg.String()+"/"+tc.name, func(t *testing.T) {
				r := newRig(t, WithAlgorithm(alg))
				r.feed(1, tc.states...)
				assert.Equal(t, 1, r.count(r.enc.IsRight))
				assert.False(t, r.enc.IsLeft())
			})
		}
	}
}

func TestBounceAfterDetentDoesNotRepeat(t *testing.T) {
	for _, alg := range []Algorithm{Binary, Precise} {
		t.Run(alg.String(), func(t *testing.T) {
			r := newRig(t, WithAlgorithm(alg))
			r.feed(1, cycleRight...)
			r.feed(1, stateDT, stateRest, stateDT, stateRest)
			assert.Equal(t, 1, r.count(r.enc.IsRight))
			assert.False(t, r.enc.IsLeft())
		})
	}
}

func TestPreciseIgnoresReversal(t *testing.T) {
	r := newRig(t, WithAlgorithm(Precise))
	// Half way left, then back to the detent.
	r.feed(5, stateDT, stateBoth, stateDT, stateRest)
	assert.False(t, r.enc.IsTurn())

	r.feed(5, cycleLeft...)
	assert.True(t, r.enc.IsLeft())
}

func TestBinaryIgnoresReversal(t *testing.T) {
	cases := []struct {
		name   string
		typ    Type
		states []uint8
	}{
		{"half left and back", FullStep, []uint8{stateDT, stateBoth, stateDT, stateRest}},
		{"half right and back", FullStep, []uint8{stateCLK, stateBoth, stateCLK, stateRest}},
		{"quarter left and back", FullStep, []uint8{stateDT, stateRest}},
		{"half step right and back", HalfStep, []uint8{stateCLK, stateRest}},
		{"half step left and back", HalfStep, []uint8{stateDT, stateRest}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newRig(t, WithAlgorithm(Binary), WithType(tc.typ))
			r.feed(5, tc.states...)
			assert.False(t, r.enc.IsTurn())
			assert.False(t, r.enc.IsRight())
			assert.False(t, r.enc.IsLeft())

			// Still in step with the mechanism afterwards.
			r.feed(5, cycleRight...)
			assert.True(t, r.enc.IsRight())
		})
	}
}

func TestBinaryIgnoresReversalAfterTurn(t *testing.T) {
	r := newRig(t, WithAlgorithm(Binary))
	r.feed(5, cycleRight...)
	require.True(t, r.enc.IsRight())
	require.True(t, r.enc.IsTurn())

	r.feed(5, stateDT, stateBoth, stateDT, stateRest)
	assert.False(t, r.enc.IsTurn())
	assert.False(t, r.enc.IsRight())

	r.feed(5, cycleLeft...)
	r.feed(5, stateCLK, stateBoth, stateCLK, stateRest)
	assert.Equal(t, 1, r.count(r.enc.IsLeft))
	assert.False(t, r.enc.IsRight())
}

func TestPreciseIgnoresDoubleJump(t *testing.T) {
	r := newRig(t, WithAlgorithm(Precise))
	r.feed(5, stateCLK, stateBoth, stateRest)
	assert.False(t, r.enc.IsTurn())

	r.feed(5, cycleRight...)
	assert.True(t, r.enc.IsRight())
}

func TestFastTurn(t *testing.T) {
	for _, alg := range algorithms {
		t.Run(alg.String(), func(t *testing.T) {
			r := newRig(t, WithAlgorithm(alg))

			r.feed(5, cycleRight...)
			assert.True(t, r.enc.IsRight())
			assert.False(t, r.enc.IsFastRight(), "first turn is never fast")

			// 30 ms between accepted turns.
			r.clock.ms += 10
			r.feed(5, cycleRight...)
			assert.True(t, r.enc.IsFastRight())
			assert.True(t, r.enc.IsRight())

			r.clock.ms += 100
			r.feed(5, cycleRight...)
			assert.True(t, r.enc.IsRight())
			assert.False(t, r.enc.IsFastRight())
		})
	}
}

func TestFastTurnNeedsSameDirection(t *testing.T) {
	r := newRig(t)
	r.feed(5, cycleRight...)
	r.feed(5, cycleLeft...)
	assert.True(t, r.enc.IsLeft())
	assert.False(t, r.enc.IsFastLeft())
	assert.False(t, r.enc.IsFastRight())
}

func TestFastTimeoutSetter(t *testing.T) {
	r := newRig(t)
	r.enc.SetFastTimeout(10)
	r.feed(5, cycleRight...)
	r.feed(5, cycleRight...)
	assert.True(t, r.enc.IsRight())
	assert.False(t, r.enc.IsFastRight())
}

func TestFastFlagOnlyWithPlainFlag(t *testing.T) {
	r := newRig(t)
	for i := 0; i < 10; i++ {
		r.feed(2, cycleRight...)
		fast := r.enc.IsFastRight()
		plain := r.enc.IsRight()
		if fast {
			assert.True(t, plain, "turn %d", i)
		}
	}
}

func TestTurnDebounce(t *testing.T) {
	r := newRig(t, WithTurnDebounce(40))

	r.feed(5, cycleRight...)
	assert.True(t, r.enc.IsRight())

	r.feed(5, cycleRight...) // 20 ms later
	assert.False(t, r.enc.IsRight())

	r.feed(10, cycleRight...) // 60 ms after the accepted turn
	assert.True(t, r.enc.IsRight())
}

func TestNewTurnSupersedesUnreadDirection(t *testing.T) {
	r := newRig(t)
	r.feed(5, cycleRight...)
	r.feed(5, cycleLeft...)

	assert.True(t, r.enc.IsLeft())
	assert.False(t, r.enc.IsRight())
	assert.True(t, r.enc.IsTurn())
}

func TestPullDown(t *testing.T) {
	clock := &fakeClock{ms: 1000}
	enc := New(WithClock(clock), WithPull(PullDown))

	for _, s := range cycleRight {
		clock.ms += 5
		enc.PollLevels(s&stateCLK != 0, s&stateDT != 0, false)
	}
	assert.True(t, enc.IsRight())
}

func TestSetPinModeKeepsPosition(t *testing.T) {
	r := newRig(t)
	r.enc.SetPinMode(PullDown)
	r.enc.SetPinMode(PullDown)

	// The contacts did not move, so nothing is reported.
	r.enc.PollLevels(true, true, true)
	assert.False(t, r.enc.IsTurn())
}

func TestBoundPinsManualPoll(t *testing.T) {
	clock := &fakeClock{ms: 1000}
	clk, dt := &fakePin{level: true}, &fakePin{level: true}
	enc := NewEncoder(clk, dt, WithClock(clock))

	for _, s := range cycleRight {
		clock.ms += 5
		clk.level = s&stateCLK == 0
		dt.level = s&stateDT == 0
		assert.False(t, enc.IsRight(), "manual mode does not poll")
		enc.Poll()
	}
	assert.True(t, enc.IsRight())
}

func TestBoundPinsAutoPoll(t *testing.T) {
	clock := &fakeClock{ms: 1000}
	clk, dt := &fakePin{level: true}, &fakePin{level: true}
	enc := NewEncoder(clk, dt, WithClock(clock), WithTickMode(Auto))

	var got int
	for _, s := range cycleLeft {
		clock.ms += 5
		clk.level = s&stateCLK == 0
		dt.level = s&stateDT == 0
		if enc.IsLeft() {
			got++
		}
	}
	assert.Equal(t, 1, got)
}

func TestBindSnapshotsPosition(t *testing.T) {
	clock := &fakeClock{ms: 1000}
	enc := New(WithClock(clock), WithAlgorithm(Fast))
	enc.Poll() // unbound: nothing to read
	assert.False(t, enc.IsTurn())

	// Encoder powered up between detents, CLK contact closed.
	clk, dt := &fakePin{level: false}, &fakePin{level: true}
	enc.Bind(clk, dt, NoButton)
	enc.Poll()
	assert.False(t, enc.IsTurn())

	clk.level = true
	enc.Poll()
	assert.True(t, enc.IsLeft(), "CLK releasing last is a left detent")
}

func TestEvents(t *testing.T) {
	r := newRig(t)
	r.feed(5, cycleRight...)
	r.feed(5, cycleRight...)

	buf := make([]Event, 0, 8)
	got := r.enc.Events(buf)
	require.Equal(t, []Event{Turn, Right, FastRight}, got)
	assert.Empty(t, r.enc.Events(buf[:0]))
}

func TestEventsAutoPoll(t *testing.T) {
	clock := &fakeClock{ms: 1000}
	clk, dt := &fakePin{level: true}, &fakePin{level: true}
	enc := NewEncoder(clk, dt, WithClock(clock), WithTickMode(Auto))

	var got []Event
	for _, s := range cycleRight {
		clock.ms += 5
		clk.level = s&stateCLK == 0
		dt.level = s&stateDT == 0
		got = enc.Events(got)
	}
	assert.Equal(t, []Event{Turn, Right}, got)
}

func TestClockWraps(t *testing.T) {
	clock := &fakeClock{ms: 0xFFFF_FFE0}
	enc := New(WithClock(clock))
	for _, s := range cycleRight {
		clock.ms += 4
		enc.PollLevels(s&stateCLK == 0, s&stateDT == 0, true)
	}
	for _, s := range cycleRight {
		clock.ms += 4 // the last sample wraps to zero
		enc.PollLevels(s&stateCLK == 0, s&stateDT == 0, true)
	}
	assert.True(t, enc.IsFastRight())
}
