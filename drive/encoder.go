package drive

import "sync"

// Quadrature channel bit masks on the four-line encoder input port, in the
// layout the original firmware samples from a single 8-bit GPIO port.
const (
	ChRightA uint8 = 1 << iota
	ChRightB
	ChLeftA
	ChLeftB
)

// PortReader samples the live state of the four encoder lines as a single
// byte, standing in for a direct port read.
type PortReader interface {
	Read() uint8
}

// Encoder accumulates signed step counts for both wheels from raw
// four-line quadrature port samples, using the Reed-Muller identity the
// original firmware's port-change ISR uses to derive direction without a
// state table: I = (^port) ^ (portLast >> 1); a changed channel-A bit
// being set in I means the wheel moved in its negative sense.
//
// Left and right are wired with opposite physical orientation, so the same
// intermediate bit drives opposite sign adjustments for the two wheels.
type Encoder struct {
	mu       sync.Mutex
	portLast uint8
	left     int16
	right    int16
}

// NewEncoder returns an Encoder with a zeroed accumulator and port history.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Reset zeroes both step accumulators and the port history, matching
// Enable() in the original shaft-encoder interrupt.
func (e *Encoder) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.portLast = 0
	e.left = 0
	e.right = 0
}

// HandleEdge processes one port-change sample. It is meant to be called
// from the dedicated goroutine servicing edge events on the four encoder
// lines.
func (e *Encoder) HandleEdge(port uint8) {
	e.mu.Lock()
	defer e.mu.Unlock()

	delta := e.portLast ^ port
	intermediate := (^port) ^ (e.portLast >> 1)

	if delta&(ChLeftA|ChLeftB) != 0 {
		if intermediate&ChLeftA != 0 {
			e.left--
		} else {
			e.left++
		}
	}
	if delta&(ChRightA|ChRightB) != 0 {
		if intermediate&ChRightA != 0 {
			e.right++
		} else {
			e.right--
		}
	}
	e.portLast = port
}

// DrainTick returns the step counts accumulated since the last DrainTick
// call and resets both accumulators to zero, matching the PID tick ISR's
// read-then-clear of the encoder step counters each control period.
func (e *Encoder) DrainTick() (left, right int16) {
	e.mu.Lock()
	defer e.mu.Unlock()
	left, right = e.left, e.right
	e.left, e.right = 0, 0
	return left, right
}
