// Package i2cdev implements the SMBus transaction shapes the boards'
// packet protocol exposes as passthrough commands (0xC0-0xC4, 0xD0-0xD4),
// addressed generically over a periph.io i2c bus so any device on the
// board's I2C segment can be interrogated by the host without a
// board-side driver for it.
package i2cdev

import (
	"fmt"

	"periph.io/x/conn/v3/i2c"
)

// Bridge adapts a periph.io i2c.Bus into the ten SMBus transaction
// shapes the wire protocol's passthrough commands carry.
type Bridge struct {
	bus i2c.Bus
}

// New wraps a periph.io i2c.Bus for SMBus passthrough.
func New(bus i2c.Bus) *Bridge {
	return &Bridge{bus: bus}
}

func (b *Bridge) dev(addr uint16) *i2c.Dev {
	return &i2c.Dev{Bus: b.bus, Addr: addr}
}

// ReadByte issues a bare SMBus "receive byte" to addr.
func (b *Bridge) ReadByte(addr uint8) (byte, error) {
	var r [1]byte
	if err := b.dev(uint16(addr)).Tx(nil, r[:]); err != nil {
		return 0, fmt.Errorf("i2cdev: read byte from %#x: %w", addr, err)
	}
	return r[0], nil
}

// WriteByte issues a bare SMBus "send byte" of data to addr.
func (b *Bridge) WriteByte(addr uint8, data byte) error {
	if err := b.dev(uint16(addr)).Tx([]byte{data}, nil); err != nil {
		return fmt.Errorf("i2cdev: write byte to %#x: %w", addr, err)
	}
	return nil
}

// ReadByteData reads one byte from a register.
func (b *Bridge) ReadByteData(addr, reg uint8) (byte, error) {
	var r [1]byte
	if err := b.dev(uint16(addr)).Tx([]byte{reg}, r[:]); err != nil {
		return 0, fmt.Errorf("i2cdev: read byte data from %#x reg %#x: %w", addr, reg, err)
	}
	return r[0], nil
}

// WriteByteData writes one byte to a register.
func (b *Bridge) WriteByteData(addr, reg, data uint8) error {
	if err := b.dev(uint16(addr)).Tx([]byte{reg, data}, nil); err != nil {
		return fmt.Errorf("i2cdev: write byte data to %#x reg %#x: %w", addr, reg, err)
	}
	return nil
}

// ReadWordData reads a little-endian 16-bit word from a register, the
// native SMBus word order.
func (b *Bridge) ReadWordData(addr, reg uint8) (uint16, error) {
	var r [2]byte
	if err := b.dev(uint16(addr)).Tx([]byte{reg}, r[:]); err != nil {
		return 0, fmt.Errorf("i2cdev: read word data from %#x reg %#x: %w", addr, reg, err)
	}
	return uint16(r[0]) | uint16(r[1])<<8, nil
}

// WriteWordData writes a little-endian 16-bit word to a register, the
// native SMBus word order.
func (b *Bridge) WriteWordData(addr, reg uint8, data uint16) error {
	w := []byte{reg, byte(data), byte(data >> 8)}
	if err := b.dev(uint16(addr)).Tx(w, nil); err != nil {
		return fmt.Errorf("i2cdev: write word data to %#x reg %#x: %w", addr, reg, err)
	}
	return nil
}

// WriteBlockData writes a length-prefixed SMBus block to a register.
func (b *Bridge) WriteBlockData(addr, reg uint8, data []byte) error {
	w := make([]byte, 0, 2+len(data))
	w = append(w, reg, byte(len(data)))
	w = append(w, data...)
	if err := b.dev(uint16(addr)).Tx(w, nil); err != nil {
		return fmt.Errorf("i2cdev: write block data to %#x reg %#x: %w", addr, reg, err)
	}
	return nil
}

// ReadBlockData reads a length-prefixed SMBus block from a register; n is
// the block's declared length (the first byte of the reply).
func (b *Bridge) ReadBlockData(addr, reg uint8, maxLen int) ([]byte, error) {
	hdr := make([]byte, maxLen+1)
	if err := b.dev(uint16(addr)).Tx([]byte{reg}, hdr); err != nil {
		return nil, fmt.Errorf("i2cdev: read block data from %#x reg %#x: %w", addr, reg, err)
	}
	n := int(hdr[0])
	if n > maxLen {
		n = maxLen
	}
	return hdr[1 : 1+n], nil
}

// ReadI2CBlockData reads a fixed-length raw I2C block (no SMBus length
// prefix) from a register.
func (b *Bridge) ReadI2CBlockData(addr, reg uint8, n int) ([]byte, error) {
	r := make([]byte, n)
	if err := b.dev(uint16(addr)).Tx([]byte{reg}, r); err != nil {
		return nil, fmt.Errorf("i2cdev: read i2c block data from %#x reg %#x: %w", addr, reg, err)
	}
	return r, nil
}

// WriteI2CBlockData writes a raw I2C block to a register.
func (b *Bridge) WriteI2CBlockData(addr, reg uint8, data []byte) error {
	w := make([]byte, 0, 1+len(data))
	w = append(w, reg)
	w = append(w, data...)
	if err := b.dev(uint16(addr)).Tx(w, nil); err != nil {
		return fmt.Errorf("i2cdev: write i2c block data to %#x reg %#x: %w", addr, reg, err)
	}
	return nil
}
