package lift

import "sync/atomic"

// StepCounter is the interrupt-driven quadrature step counter: a signed
// 16-bit cycle count incremented or decremented from the stepper's B
// channel on every step-timer compare-match.
type StepCounter struct {
	pos atomic.Int32 // stored as int32; Position truncates to int16, so it wraps
}

// NewStepCounter returns a StepCounter starting at 0.
func NewStepCounter() *StepCounter {
	return &StepCounter{}
}

// Reset zeroes the counter; called when calibration begins tracking travel.
func (c *StepCounter) Reset() {
	c.pos.Store(0)
}

// Position returns the current signed step count.
func (c *StepCounter) Position() int16 {
	return int16(c.pos.Load())
}

// HandleStep is invoked from the step-timer compare-match interrupt
// equivalent with the sampled stepper output port. forward reports the
// direction bit derived from XOR-ing the port with itself shifted left by
// one, masked against the B-channel bit: forward increments, reverse
// decrements.
func (c *StepCounter) HandleStep(forward bool) {
	if forward {
		c.pos.Add(1)
	} else {
		c.pos.Add(-1)
	}
}

// QuadratureSample decides step direction from a raw stepper output port
// sample, matching the original's (port ^ (port<<1)) & bMask == 0 test.
func QuadratureSample(port uint8, bMask uint8) bool {
	return (port^(port<<1))&bMask == 0
}
