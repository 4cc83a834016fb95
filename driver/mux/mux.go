// Package mux drives a PCA9542A/PCA9544A TWI channel selector, the chip
// the manipulator board uses to switch its single I2C segment between the
// mainboard and interfaceboard peripheral sets. It is a two/four-channel
// cousin of periph.io's own pca9548 (an eight-channel sibling from the
// same NXP family); the select-then-forward Tx pattern is carried over from
// it, while the channel-select byte is this family's enable bit (0x04) ORed
// with the channel number.
package mux

import (
	"errors"
	"fmt"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// ErrClosed is returned by a segment's Tx when the segment has no parent
// Dev.
var ErrClosed = errors.New("mux: segment closed")

// Dev is a handle to the mux chip itself, addressed at its own fixed
// 7-bit address on the upstream bus.
type Dev struct {
	bus  i2c.Bus
	addr uint16

	mu      sync.Mutex
	channel int // -1 until the first Select
}

// New returns a Dev for the mux chip at addr on the upstream bus.
func New(bus i2c.Bus, addr uint16) *Dev {
	return &Dev{bus: bus, addr: addr, channel: -1}
}

// Segment returns an i2c.Bus that transparently selects channel before
// every transaction it forwards to the upstream bus. channel must be in
// [0,3] for a PCA9544A (or [0,1] for a PCA9542A).
func (d *Dev) Segment(channel int) i2c.Bus {
	return &segment{dev: d, channel: channel}
}

// selectChannel writes the channel-select control byte (0x04 | channel) only when
// the requested channel differs from the one already active, mirroring
// the write-avoidance in pca9548's port-change check.
func (d *Dev) selectChannel(channel int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.channel == channel {
		return nil
	}
	if err := d.bus.Tx(d.addr, []byte{0x04 | byte(channel)}, nil); err != nil {
		return fmt.Errorf("mux: select channel %d: %w", channel, err)
	}
	d.channel = channel
	return nil
}

// segment is an i2c.Bus scoped to one downstream channel of a Dev.
type segment struct {
	dev     *Dev
	channel int
}

// Tx selects this segment's channel on the mux, then forwards the
// transaction to the downstream device at addr.
func (s *segment) Tx(addr uint16, w, r []byte) error {
	if s.dev == nil {
		return ErrClosed
	}
	if err := s.dev.selectChannel(s.channel); err != nil {
		return err
	}
	return s.dev.bus.Tx(addr, w, r)
}

func (s *segment) String() string {
	return fmt.Sprintf("mux-segment-%d", s.channel)
}

// Halt does nothing; the mux chip has no per-segment halt affordance.
func (s *segment) Halt() error { return nil }

// SetSpeed is not implemented: a segment slaves the upstream bus's clock.
func (s *segment) SetSpeed(f physic.Frequency) error { return nil }

var _ i2c.Bus = (*segment)(nil)
