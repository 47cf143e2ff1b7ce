package encoder

import "fmt"

// Event is one kind of latched encoder event.
type Event uint8

const (
	None Event = iota
	Turn       // any accepted turn
	Right
	Left
	RightHeld // right turn with the button down
	LeftHeld
	FastRight
	FastLeft
	Press
	Release
	Click // press and release without a hold or a held turn
	Hold  // button held past the hold timeout, once per press
)

var eventNames = [...]string{
	None:      "none",
	Turn:      "turn",
	Right:     "right",
	Left:      "left",
	RightHeld: "right_held",
	LeftHeld:  "left_held",
	FastRight: "fast_right",
	FastLeft:  "fast_left",
	Press:     "press",
	Release:   "release",
	Click:     "click",
	Hold:      "hold",
}

var eventFlags = [...]flag{
	Turn:      flagTurn,
	Right:     flagRight,
	Left:      flagLeft,
	RightHeld: flagRightHeld,
	LeftHeld:  flagLeftHeld,
	FastRight: flagFastRight,
	FastLeft:  flagFastLeft,
	Press:     flagPress,
	Release:   flagRelease,
	Click:     flagClick,
	Hold:      flagHold,
}

// drainOrder is the order Events reports pending latches in.
var drainOrder = [...]Event{
	Turn, Right, Left, RightHeld, LeftHeld, FastRight, FastLeft,
	Press, Hold, Release, Click,
}

func (e Event) String() string {
	if int(e) < len(eventNames) {
		return eventNames[e]
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (e Event) MarshalText() ([]byte, error) {
	if int(e) >= len(eventNames) {
		return nil, fmt.Errorf("unknown event %d", e)
	}
	return []byte(eventNames[e]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (e *Event) UnmarshalText(b []byte) error {
	for i, name := range eventNames {
		if name == string(b) {
			*e = Event(i)
			return nil
		}
	}
	return fmt.Errorf("unknown event %q", b)
}

// Delta is +1 for right turns, -1 for left turns and 0 otherwise. A fast
// turn always comes with its plain turn event, so FastRight and FastLeft
// count 0: summing Delta over Events counts every detent once.
func (e Event) Delta() int {
	switch e {
	case Right, RightHeld:
		return 1
	case Left, LeftHeld:
		return -1
	}
	return 0
}
