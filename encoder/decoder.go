package encoder

// Quadrature states, as "contact active" bits: CLK in bit 0, DT in bit 1.
// Turning right walks stateRest, stateCLK, stateBoth, stateDT and back to
// stateRest; turning left walks the same ring backwards.
const (
	stateRest uint8 = 0b00
	stateCLK  uint8 = 0b01
	stateBoth uint8 = 0b11
	stateDT   uint8 = 0b10
)

// decoder turns a stream of 2-bit states into steps.
type decoder interface {
	// step consumes the current state and returns +1 (right), -1 (left)
	// or 0 when no detent was completed.
	step(state uint8, t Type) int8
	// reset forgets all history and takes state as the resting position.
	reset(state uint8)
	last() uint8
}

func newDecoder(a Algorithm) decoder {
	switch a {
	case Fast:
		return &fastDecoder{}
	case Binary:
		return &binaryDecoder{}
	default:
		return &preciseDecoder{}
	}
}

// isRest reports whether the encoder sits in a detent in state s.
func isRest(s uint8, t Type) bool {
	return s == stateRest || (t == HalfStep && s == stateBoth)
}

type fastDecoder struct {
	prev uint8
}

func (d *fastDecoder) step(s uint8, t Type) int8 {
	prev := d.prev
	if s == prev {
		return 0
	}
	d.prev = s

	switch {
	case s == stateRest && prev == stateDT:
		return 1
	case s == stateRest && prev == stateCLK:
		return -1
	case t == HalfStep && s == stateBoth && prev == stateCLK:
		return 1
	case t == HalfStep && s == stateBoth && prev == stateDT:
		return -1
	}
	return 0
}

func (d *fastDecoder) reset(s uint8) { d.prev = s }
func (d *fastDecoder) last() uint8 { return d.prev }

// binaryDecoder keeps the last eight distinct states, newest in the low two
// bits, and matches them when a detent is reached.
type binaryDecoder struct {
	prev uint8
	hist uint16
}

// Known-good full-step histories ending in stateRest. The clean sequence
// and a sequence starting from a freshly sampled rest are matched on the
// last four states. A bounce before the final edge is matched on the last
// six: four states alone cannot tell it from half a detent the other way
// and back.
const (
	histRight       uint16 = 0b01_11_10_00
	histRightFresh  uint16 = 0b11_11_10_00
	histLeft        uint16 = 0b10_11_01_00
	histLeftFresh   uint16 = 0b11_11_01_00
	histRightBounce uint16 = 0b01_11_10_11_10_00
	histLeftBounce  uint16 = 0b10_11_01_11_01_00

	histMask4 uint16 = 0xFF
	histMask6 uint16 = 0xFFF
)

// A half-step detent is the other rest, one middle state, this rest.
const (
	halfRight uint16 = 0b11_10_00
	halfLeft  uint16 = 0b11_01_00
	halfMask  uint16 = 0x3F
)

func (d *binaryDecoder) step(s uint8, t Type) int8 {
	if s == d.prev {
		return 0
	}
	d.prev = s
	d.hist = d.hist<<2 | uint16(s)

	switch {
	case s == stateRest:
		return matchHistory(d.hist, t)
	case t == HalfStep && s == stateBoth:
		// Inverting every state maps the half cycle ending in stateBoth
		// onto the one ending in stateRest.
		return matchHistory(^d.hist, t)
	}
	return 0
}

func matchHistory(h uint16, t Type) int8 {
	if t == HalfStep {
		switch h & halfMask {
		case halfRight:
			return 1
		case halfLeft:
			return -1
		}
		return 0
	}
	switch h & histMask4 {
	case histRight, histRightFresh:
		return 1
	case histLeft, histLeftFresh:
		return -1
	}
	switch h & histMask6 {
	case histRightBounce:
		return 1
	case histLeftBounce:
		return -1
	}
	return 0
}

func (d *binaryDecoder) reset(s uint8) {
	d.prev = s
	d.hist = uint16(s) * 0b01_01_01_01_01_01_01_01
}

func (d *binaryDecoder) last() uint8 { return d.prev }

// ringStep is indexed by prev<<2 | cur. Single-bit moves along the ring
// count +1 to the right and -1 to the left; double-bit jumps are noise.
var ringStep = [16]int8{
	0, 1, -1, 0,
	-1, 0, 0, 1,
	1, 0, 0, -1,
	0, -1, 1, 0,
}

// preciseDecoder follows the position inside the detent cycle. A turn is
// reported only when the encoder settles in a detent after a complete
// excursion in one direction.
type preciseDecoder struct {
	prev uint8
	pos  int8
}

func (d *preciseDecoder) step(s uint8, t Type) int8 {
	if s == d.prev {
		return 0
	}
	d.pos += ringStep[d.prev<<2|s]
	d.prev = s
	if !isRest(s, t) {
		return 0
	}

	cycle := int8(4)
	if t == HalfStep {
		cycle = 2
	}
	pos := d.pos
	d.pos = 0
	switch {
	case pos >= cycle:
		return 1
	case pos <= -cycle:
		return -1
	}
	return 0
}

func (d *preciseDecoder) reset(s uint8) {
	d.prev = s
	d.pos = 0
}

func (d *preciseDecoder) last() uint8 { return d.prev }
