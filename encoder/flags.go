package encoder

import "sync/atomic"

type flag uint32

const (
	flagTurn flag = 1 << iota
	flagRight
	flagLeft
	flagRightHeld
	flagLeftHeld
	flagFastRight
	flagFastLeft
	flagPress
	flagRelease
	flagClick
	flagHold
	flagHolding // level, never taken
)

// flagDirection holds the latches a new turn supersedes.
const flagDirection = flagRight | flagLeft | flagRightHeld | flagLeftHeld | flagFastRight | flagFastLeft

// flags is the latch set shared between the poller and the readers. Every
// update is a compare-and-swap so a poll running in another goroutine can
// never lose a bit cleared by a reader, or the other way round.
type flags struct {
	v atomic.Uint32
}

func (f *flags) set(m flag) {
	f.replace(0, m)
}

func (f *flags) clear(m flag) {
	f.replace(m, 0)
}

// replace clears mask and sets m in one step.
func (f *flags) replace(mask, m flag) {
	for {
		old := f.v.Load()
		next := old&^uint32(mask) | uint32(m)
		if old == next || f.v.CompareAndSwap(old, next) {
			return
		}
	}
}

// take reports whether m was set and clears it.
func (f *flags) take(m flag) bool {
	for {
		old := f.v.Load()
		if old&uint32(m) == 0 {
			return false
		}
		if f.v.CompareAndSwap(old, old&^uint32(m)) {
			return true
		}
	}
}

func (f *flags) has(m flag) bool {
	return f.v.Load()&uint32(m) != 0
}
