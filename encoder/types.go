package encoder

// Pin is a digital input line. TinyGo's machine.Pin satisfies it as is.
type Pin interface {
	Get() bool
}

// NoButton is passed as the switch pin of an encoder without a push-button.
var NoButton Pin

// Type is the mechanical variant of the encoder.
type Type uint8

const (
	// FullStep encoders rest once per quadrature cycle: one event per cycle.
	FullStep Type = iota
	// HalfStep encoders also rest half way through the cycle, doubling the
	// event rate for the same rotation.
	HalfStep
)

// Direction flips the reported rotation for encoders wired the other way round.
type Direction uint8

const (
	Normal Direction = iota
	Reverse
)

// Pull is the pin pull convention. It only changes how levels are read.
type Pull uint8

const (
	// PullUp: contact closed reads low.
	PullUp Pull = iota
	// PullDown: contact closed reads high.
	PullDown
)

// TickMode selects who polls the pins.
type TickMode uint8

const (
	// Manual requires the caller to call Poll or PollLevels regularly.
	Manual TickMode = iota
	// Auto polls at the start of every accessor.
	Auto
)

// Algorithm selects the quadrature decoder. It is fixed for the lifetime of
// an Encoder.
type Algorithm uint8

const (
	// Fast looks at the last transition only. Cheapest, bounce sensitive.
	Fast Algorithm = iota
	// Binary matches a short history of states against known sequences.
	Binary
	// Precise tracks the position inside the detent cycle and only fires on
	// a complete cycle. Works with worn, noisy encoders.
	Precise
)

// Defaults, in milliseconds where they are durations.
const (
	DefaultAlgorithm      = Precise
	DefaultPull           = PullUp
	DefaultButtonPull     = PullUp
	DefaultTurnDebounce   = 0
	DefaultButtonDebounce = 80
	DefaultHoldTimeout    = 700
	DefaultFastTimeout    = 50
)

func (t Type) String() string {
	switch t {
	case FullStep:
		return "full"
	case HalfStep:
		return "half"
	default:
		return "unknown"
	}
}

func (a Algorithm) String() string {
	switch a {
	case Fast:
		return "fast"
	case Binary:
		return "binary"
	case Precise:
		return "precise"
	default:
		return "unknown"
	}
}
