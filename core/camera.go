package core

// Camera is the shutter and the "camera ready" indicator
type Camera interface {
	// Trigger fires the shutter; must return without waiting for the exposure
	Trigger()

	// SetReady drives the ready indicator (no motion, no exposure in progress)
	SetReady(ready bool)
}

// NullCamera is a Camera without hardware
type NullCamera struct{}

func (NullCamera) Trigger()      {}
func (NullCamera) SetReady(bool) {}
