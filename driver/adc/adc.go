// Package adc reads the boards' analog channels: battery voltage dividers
// and the electromagnet's capacitor-bank voltage. The original firmware
// reads these from the AVR's on-chip 8-bit ADC by writing a channel
// number into the multiplexer field of ADMUX, triggering a conversion,
// and polling ADCSRA's ADSC bit until it clears; the host processes this
// module targets have no on-die converter, so the same select/trigger/
// poll/read shape is carried over onto an external register-addressed
// I2C ADC reached through driver/i2cdev.
package adc

import "fmt"

// Register layout assumed of the external ADC: a channel-select/trigger
// register and a ready/result pair, the same three-step shape as the
// original ADMUX/ADCSRA/ADCH sequence.
const (
	regConfig = 0x00 // bits [3:0] channel, bit 7 write-1 to start
	regStatus = 0x01 // bit 0 set while a conversion is in progress
	regResult = 0x02 // 16-bit conversion result, low byte first
)

const startConversion = 0x80

// Bus is the generic register I/O contract driver/i2cdev.Bridge
// satisfies.
type Bus interface {
	ReadByteData(addr, reg uint8) (byte, error)
	WriteByteData(addr, reg, data uint8) error
	ReadWordData(addr, reg uint8) (uint16, error)
}

// Controller is a multi-channel ADC reached over I2C, mirroring
// CADCController's channel-select GetValue() but over a real bus
// transaction instead of an on-chip register.
type Controller struct {
	bus  Bus
	addr uint8
}

// New constructs a Controller for the ADC at addr on bus.
func New(bus Bus, addr uint8) *Controller {
	return &Controller{bus: bus, addr: addr}
}

// Read triggers a conversion on channel and blocks until it completes,
// returning the raw result.
func (c *Controller) Read(channel uint8) (uint16, error) {
	if err := c.bus.WriteByteData(c.addr, regConfig, startConversion|(channel&0x0F)); err != nil {
		return 0, fmt.Errorf("adc: select channel %d: %w", channel, err)
	}
	for {
		status, err := c.bus.ReadByteData(c.addr, regStatus)
		if err != nil {
			return 0, fmt.Errorf("adc: poll channel %d: %w", channel, err)
		}
		if status&0x01 == 0 {
			break
		}
	}
	v, err := c.bus.ReadWordData(c.addr, regResult)
	if err != nil {
		return 0, fmt.Errorf("adc: read channel %d: %w", channel, err)
	}
	return v, nil
}

// Channel is a single fixed channel of a Controller. It satisfies
// power.ADCSource (16-bit raw), the shape the battery-voltage channels
// need for the BattMVPerADCCount conversion.
type Channel struct {
	ctrl    *Controller
	channel uint8
}

// On returns a Channel bound to channel on ctrl.
func (c *Controller) On(channel uint8) *Channel {
	return &Channel{ctrl: c, channel: channel}
}

// Sample reads the channel and returns the full-resolution raw result,
// satisfying power.ADCSource. A failed read reports 0 rather than
// propagating an error: the original's equivalent register read cannot
// fail either.
func (c *Channel) Sample() uint16 {
	v, err := c.ctrl.Read(c.channel)
	if err != nil {
		return 0
	}
	return v
}

// Voltage8 adapts a Channel to lift.VoltageSource's 8-bit reading,
// returning the top 8 bits of the raw conversion, the same left-aligned
// truncation the original's ADCH register applied in hardware.
type Voltage8 struct {
	Channel *Channel
}

// Sample returns the channel's top 8 bits, satisfying lift.VoltageSource.
func (v Voltage8) Sample() uint8 {
	return uint8(v.Channel.Sample() >> 8)
}
