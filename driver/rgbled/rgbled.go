// Package rgbled drives the power-management board's PCA9633 4-channel
// LED controllers, one per input/battery indication cluster, as plain
// I2C register devices reached through driver/i2cdev, adapting them to
// power.LEDBank.
package rgbled

import "tribot.dev/power"

// PCA9633 register addresses.
const (
	regMode1   = 0x00
	regMode2   = 0x01
	regPWM0    = 0x02
	regGRPPWM  = 0x06
	regGRPFREQ = 0x07
	regLEDOut  = 0x08
)

const ledOutMask = 0x03

// field values for the two-bit-per-channel LEDOUT register.
const (
	fieldOff   = 0x00
	fieldOn    = 0x01
	fieldPWM   = 0x02
	fieldBlink = 0x03
)

// Bus is the generic register I/O contract driver/i2cdev.Bridge
// satisfies.
type Bus interface {
	ReadByteData(addr, reg uint8) (byte, error)
	WriteByteData(addr, reg, data uint8) error
}

// Bank is a single PCA9633 chip's four channels, adapted to
// power.LEDBank.
type Bank struct {
	bus  Bus
	addr uint8
}

// New constructs a Bank for the chip at addr on bus, and runs its
// power-on init sequence: wake the oscillator, enable group blinking,
// a 1s/50%-duty default blink rate, and full brightness on every
// channel's PWM register (mode selection is independent of brightness).
func New(bus Bus, addr uint8) *Bank {
	b := &Bank{bus: bus, addr: addr}
	b.bus.WriteByteData(b.addr, regMode1, 0x00)
	b.bus.WriteByteData(b.addr, regMode2, 0x25)
	b.bus.WriteByteData(b.addr, regGRPFREQ, 0x18)
	b.bus.WriteByteData(b.addr, regGRPPWM, 0x80)
	for ch := uint8(0); ch < 4; ch++ {
		b.bus.WriteByteData(b.addr, regPWM0+ch, 0xFF)
	}
	return b
}

// SetMode programs channel's two-bit LEDOUT field, satisfying
// power.LEDBank.
func (b *Bank) SetMode(channel int, mode power.LEDMode) {
	ch := uint8(channel % 4)
	v, _ := b.bus.ReadByteData(b.addr, regLEDOut)
	v &^= ledOutMask << (ch * 2)
	v |= ledField(mode) << (ch * 2)
	b.bus.WriteByteData(b.addr, regLEDOut, v)
}

func ledField(mode power.LEDMode) uint8 {
	switch mode {
	case power.LEDOff:
		return fieldOff
	case power.LEDOn:
		return fieldOn
	case power.LEDBlink:
		return fieldBlink
	default:
		return fieldOff
	}
}
