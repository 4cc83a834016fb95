// Package accel drives the sensor board's three-axis accelerometer as a
// register-addressed I2C device reached through driver/i2cdev, adapting
// it to drive.Accelerometer. No register map for this chip survived the
// original firmware's distillation (accelerometer_controller.{h,cpp}
// were not part of the retrieved source); the six-register
// X/Y/Z-low/high-byte plus single-register temperature layout here
// follows the generic shape common to this chip family rather than one
// specific part's datasheet.
package accel

import "tribot.dev/drive"

// Register addresses: three axes of little-endian 16-bit output
// registers, followed by an 8-bit temperature register.
const (
	regOutXL = 0x00
	regOutXH = 0x01
	regOutYL = 0x02
	regOutYH = 0x03
	regOutZL = 0x04
	regOutZH = 0x05
	regTemp  = 0x06
)

// Bus is the generic register I/O contract driver/i2cdev.Bridge
// satisfies.
type Bus interface {
	ReadByteData(addr, reg uint8) (byte, error)
}

// Device adapts the accelerometer to drive.Accelerometer.
type Device struct {
	bus  Bus
	addr uint8
}

// New constructs a Device for the chip at addr on bus.
func New(bus Bus, addr uint8) *Device {
	return &Device{bus: bus, addr: addr}
}

func (d *Device) axis(lo, hi uint8) int16 {
	l, _ := d.bus.ReadByteData(d.addr, lo)
	h, _ := d.bus.ReadByteData(d.addr, hi)
	return int16(uint16(l) | uint16(h)<<8)
}

// Reading samples all three axes and the temperature register, matching
// drive.Accelerometer.
func (d *Device) Reading() drive.AccelReading {
	temp, _ := d.bus.ReadByteData(d.addr, regTemp)
	return drive.AccelReading{
		X:    d.axis(regOutXL, regOutXH),
		Y:    d.axis(regOutYL, regOutYH),
		Z:    d.axis(regOutZL, regOutZH),
		Temp: int16(temp),
	}
}
