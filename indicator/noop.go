package indicator

import "knob/encoder"

// Noop implements Indicator but does nothing.
// Used when no indicators are configured.
type Noop struct{}

// Event implements Indicator.Event.
func (n *Noop) Event(encoder.Event) {}

// Idle implements Indicator.Idle.
func (n *Noop) Idle() {}

// ConnectionLost implements Indicator.ConnectionLost.
func (n *Noop) ConnectionLost() {}

// Shutdown implements Indicator.Shutdown.
func (n *Noop) Shutdown() {}

// Release implements Indicator.Release.
func (n *Noop) Release() error {
	return nil
}
