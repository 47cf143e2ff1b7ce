package wire

import (
	"encoding/json"
	"time"

	"knob/encoder"
)

// EventMessage is the JSON form of an encoder event published to
// listeners.
type EventMessage struct {
	Event encoder.Event `json:"event"`
	Delta int           `json:"delta"`
	TS    int64         `json:"ts"` // unix milliseconds
}

// NewEventMessage stamps ev with at.
func NewEventMessage(ev encoder.Event, at time.Time) EventMessage {
	return EventMessage{Event: ev, Delta: ev.Delta(), TS: at.UnixMilli()}
}

// Marshal returns the JSON encoding of m.
func (m EventMessage) Marshal() ([]byte, error) {
	return json.Marshal(m)
}
