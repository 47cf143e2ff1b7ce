//go:build !nobutton

package encoder

// button is the debounced push-button state machine: released, pressed,
// held, and back to released.
type button struct {
	enabled     bool
	pull        Pull
	debounce    uint32
	holdTimeout uint32

	pressed bool // pressed or held
	held    bool
	turned  bool   // a turn was accepted during this press
	edgeAt  uint32 // last accepted edge
}

func newButton() button {
	return button{
		pull:        DefaultButtonPull,
		debounce:    DefaultButtonDebounce,
		holdTimeout: DefaultHoldTimeout,
	}
}

func (b *button) setEnabled(on bool) { b.enabled = on }
func (b *button) setPull(p Pull) { b.pull = p }
func (b *button) setDebounce(ms uint32) { b.debounce = ms }
func (b *button) setHoldTimeout(ms uint32) { b.holdTimeout = ms }

// arm lets the first edge after construction through without waiting for
// a debounce window.
func (b *button) arm(now uint32) {
	b.edgeAt = now - b.debounce - 1
}

func (b *button) down() bool {
	return b.enabled && b.pressed
}

func (b *button) markTurn() {
	b.turned = true
}

func (b *button) update(level bool, now uint32, f *flags) {
	if !b.enabled {
		return
	}
	active := level != (b.pull == PullUp)
	since := now - b.edgeAt

	switch {
	case active && !b.pressed && since > b.debounce:
		b.pressed = true
		b.turned = false
		b.edgeAt = now
		f.set(flagPress)

	case !active && b.pressed && since > b.debounce:
		set := flagRelease
		if !b.held && !b.turned {
			set |= flagClick
		}
		b.pressed = false
		b.held = false
		b.edgeAt = now
		f.replace(flagHolding, set)

	case active && b.pressed && !b.held && since > b.holdTimeout:
		b.held = true
		f.set(flagHold | flagHolding)
	}
}
