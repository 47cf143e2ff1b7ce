// Package encoder decodes a quadrature rotary encoder with an optional
// push-button from raw pin samples into latched events: turns, fast turns,
// turns with the button down, press, release, click and hold.
//
// An Encoder does not allocate after construction and never blocks. Poll it
// from a single goroutine, timer or interrupt handler; the event accessors
// may be called from another goroutine since every latch is read and
// cleared atomically. In Auto tick mode the accessors poll themselves and
// must then share the poller's goroutine.
package encoder

// Encoder is one rotary encoder. The zero value is not usable; build one
// with New, NewEncoder or NewEncoderWithButton.
type Encoder struct {
	clk, dt, sw Pin
	clock       Clock
	dec         decoder
	btn         button

	typ  Type
	dir  Direction
	pull Pull
	mode TickMode

	fastTimeout  uint32
	turnDebounce uint32

	lastTurn    uint32
	lastTurnDir int8

	flags flags
}

// Option configures an Encoder at construction.
type Option func(*Encoder)

// WithType sets the mechanical type.
func WithType(t Type) Option {
	return func(e *Encoder) { e.typ = t }
}

// WithAlgorithm selects the quadrature decoder. Defaults to Precise.
func WithAlgorithm(a Algorithm) Option {
	return func(e *Encoder) { e.dec = newDecoder(a) }
}

// WithDirection sets the rotation direction.
func WithDirection(d Direction) Option {
	return func(e *Encoder) { e.dir = d }
}

// WithPull sets the pull convention of the CLK and DT pins.
func WithPull(p Pull) Option {
	return func(e *Encoder) { e.pull = p }
}

// WithButtonPull sets the pull convention of the switch pin.
func WithButtonPull(p Pull) Option {
	return func(e *Encoder) { e.btn.setPull(p) }
}

// WithTickMode sets the tick mode.
func WithTickMode(m TickMode) Option {
	return func(e *Encoder) { e.mode = m }
}

// WithFastTimeout sets the longest interval between two same-direction
// turns that still counts as a fast turn.
func WithFastTimeout(ms uint32) Option {
	return func(e *Encoder) { e.fastTimeout = ms }
}

// WithTurnDebounce drops turns arriving less than ms after the previous
// accepted turn. Zero disables the gate.
func WithTurnDebounce(ms uint32) Option {
	return func(e *Encoder) { e.turnDebounce = ms }
}

// WithButtonDebounce sets the minimum interval between accepted button edges.
// The window runs from the last accepted edge, so a single-sample glitch
// after a quiet period is accepted as an edge.
func WithButtonDebounce(ms uint32) Option {
	return func(e *Encoder) { e.btn.setDebounce(ms) }
}

// WithHoldTimeout sets how long the button must stay down to fire Hold.
func WithHoldTimeout(ms uint32) Option {
	return func(e *Encoder) { e.btn.setHoldTimeout(ms) }
}

// WithClock replaces the system clock.
func WithClock(c Clock) Option {
	return func(e *Encoder) { e.clock = c }
}

// New returns an encoder not bound to any pins. Bind them later, or feed
// it with PollLevels.
func New(opts ...Option) *Encoder {
	return newEncoder(nil, nil, NoButton, opts)
}

// NewEncoder returns an encoder on clk and dt without a push-button.
func NewEncoder(clk, dt Pin, opts ...Option) *Encoder {
	return newEncoder(clk, dt, NoButton, opts)
}

// NewEncoderWithButton returns an encoder on clk and dt with its switch on
// sw. Passing NoButton as sw disables the button.
func NewEncoderWithButton(clk, dt, sw Pin, opts ...Option) *Encoder {
	return newEncoder(clk, dt, sw, opts)
}

func newEncoder(clk, dt, sw Pin, opts []Option) *Encoder {
	e := &Encoder{
		clock:        SystemClock(),
		dec:          newDecoder(DefaultAlgorithm),
		btn:          newButton(),
		pull:         DefaultPull,
		fastTimeout:  DefaultFastTimeout,
		turnDebounce: DefaultTurnDebounce,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.btn.arm(e.clock.Millis())
	e.Bind(clk, dt, sw)
	return e
}

// Bind assigns the pins. The current CLK/DT position becomes the resting
// position so binding never produces a turn.
func (e *Encoder) Bind(clk, dt, sw Pin) {
	e.clk, e.dt, e.sw = clk, dt, sw
	e.btn.setEnabled(sw != nil)
	if clk != nil && dt != nil {
		e.dec.reset(e.state(clk.Get(), dt.Get()))
	}
}

// SetType changes the mechanical type.
func (e *Encoder) SetType(t Type) {
	e.typ = t
}

// SetPinMode changes the pull convention of the CLK and DT pins.
func (e *Encoder) SetPinMode(p Pull) {
	if p == e.pull {
		return
	}
	e.pull = p
	// The stored position was read under the old convention.
	e.dec.reset(e.dec.last() ^ 0b11)
}

// SetButtonPull changes the pull convention of the switch pin.
func (e *Encoder) SetButtonPull(p Pull) {
	e.btn.setPull(p)
}

// SetTickMode changes the tick mode.
func (e *Encoder) SetTickMode(m TickMode) {
	e.mode = m
}

// SetDirection changes the rotation direction.
func (e *Encoder) SetDirection(d Direction) {
	e.dir = d
}

// SetFastTimeout changes the fast turn window, in milliseconds.
func (e *Encoder) SetFastTimeout(ms uint32) {
	e.fastTimeout = ms
}

// Clock returns the clock the encoder times events with.
func (e *Encoder) Clock() Clock {
	return e.clock
}

// Poll reads the bound pins and advances the decoder and the button. It
// does nothing on an encoder without pins.
func (e *Encoder) Poll() {
	if e.clk == nil || e.dt == nil {
		return
	}
	var sw bool
	if e.sw != nil {
		sw = e.sw.Get()
	}
	e.process(e.clk.Get(), e.dt.Get(), sw)
}

// PollLevels advances the decoder and the button from raw pin levels
// supplied by the caller, as they would read on the pins. sw is ignored
// when the encoder has no button.
func (e *Encoder) PollLevels(clk, dt, sw bool) {
	e.process(clk, dt, sw)
}

func (e *Encoder) process(clk, dt, sw bool) {
	now := e.clock.Millis()
	if d := e.dec.step(e.state(clk, dt), e.typ); d != 0 {
		if e.dir == Reverse {
			d = -d
		}
		e.turn(d, now)
	}
	e.btn.update(sw, now, &e.flags)
}

// state converts pin levels to contact-active bits.
func (e *Encoder) state(clk, dt bool) uint8 {
	var s uint8
	if clk {
		s |= stateCLK
	}
	if dt {
		s |= stateDT
	}
	if e.pull == PullUp {
		s ^= 0b11
	}
	return s
}

func (e *Encoder) turn(d int8, now uint32) {
	since := now - e.lastTurn
	if e.turnDebounce > 0 && e.lastTurnDir != 0 && since < e.turnDebounce {
		return
	}
	fast := e.lastTurnDir == d && since < e.fastTimeout
	e.lastTurn = now
	e.lastTurnDir = d

	set := flagTurn
	switch {
	case e.btn.down():
		e.btn.markTurn()
		set |= pick(d, flagRightHeld, flagLeftHeld)
	case fast:
		set |= pick(d, flagRight|flagFastRight, flagLeft|flagFastLeft)
	default:
		set |= pick(d, flagRight, flagLeft)
	}
	e.flags.replace(flagDirection, set)
}

func pick(d int8, right, left flag) flag {
	if d > 0 {
		return right
	}
	return left
}

func (e *Encoder) take(f flag) bool {
	if e.mode == Auto {
		e.Poll()
	}
	return e.flags.take(f)
}

// IsTurn reports a turn in either direction, held or not.
func (e *Encoder) IsTurn() bool { return e.take(flagTurn) }

// IsRight reports a right turn with the button up.
func (e *Encoder) IsRight() bool { return e.take(flagRight) }

// IsLeft reports a left turn with the button up.
func (e *Encoder) IsLeft() bool { return e.take(flagLeft) }

// IsRightHeld reports a right turn with the button down.
func (e *Encoder) IsRightHeld() bool { return e.take(flagRightHeld) }

// IsLeftHeld reports a left turn with the button down.
func (e *Encoder) IsLeftHeld() bool { return e.take(flagLeftHeld) }

// IsFastRight reports a right turn following another inside the fast window.
func (e *Encoder) IsFastRight() bool { return e.take(flagFastRight) }

// IsFastLeft reports a left turn following another inside the fast window.
func (e *Encoder) IsFastLeft() bool { return e.take(flagFastLeft) }

// IsPress reports a debounced press.
func (e *Encoder) IsPress() bool { return e.take(flagPress) }

// IsRelease reports a debounced release.
func (e *Encoder) IsRelease() bool { return e.take(flagRelease) }

// IsClick reports a release ending a press that neither held nor turned.
func (e *Encoder) IsClick() bool { return e.take(flagClick) }

// IsHold reports, once per press, that the button passed the hold timeout.
func (e *Encoder) IsHold() bool { return e.take(flagHold) }

// IsHolding reports whether the button is held right now. It is not
// cleared by reading.
func (e *Encoder) IsHolding() bool {
	if e.mode == Auto {
		e.Poll()
	}
	return e.flags.has(flagHolding)
}

// Events appends every pending event to dst and clears it. Turn comes
// first, then the direction events, then the button events.
func (e *Encoder) Events(dst []Event) []Event {
	if e.mode == Auto {
		e.Poll()
	}
	for _, ev := range drainOrder {
		if e.flags.take(eventFlags[ev]) {
			dst = append(dst, ev)
		}
	}
	return dst
}
