//go:build nobutton

package encoder

// button is compiled out; every button accessor reports false.
type button struct{}

func newButton() button { return button{} }

func (b *button) setEnabled(bool) {}
func (b *button) setPull(Pull) {}
func (b *button) setDebounce(uint32) {}
func (b *button) setHoldTimeout(uint32) {}
func (b *button) arm(uint32) {}
func (b *button) down() bool { return false }
func (b *button) markTurn() {}
func (b *button) update(bool, uint32, *flags) {}
