// Package usbhub drives the power-management board's USB2532 hub and its
// MCP23008 GPIO-expander sidecar, which carries the hub's enable/reset
// lines and its suspend/high-speed status indicators. Both chips are
// reached as plain I2C register devices through driver/i2cdev, matching
// the hub/charger-detect split power.USBHub and power.ChargerDetector
// expect from the power board's update loop.
package usbhub

import "tribot.dev/power"

// MCP23008 register offsets, from the GPIO expander's datasheet as used
// to sequence the hub's enable/reset and read its status lines.
const (
	regDirection = 0x00
	regGPINTEN   = 0x02
	regPort      = 0x09
)

const (
	hsInd     = 0x01
	cfgStrap1 = 0x02
	suspInd   = 0x04
	cfgStrap2 = 0x08
	twSDAPU   = 0x10
	twSCLPU   = 0x20
	twIntEn   = 0x40
	hubRst    = 0x80
)

// USB2532 runtime register, selected through its SMBus page register.
const chgDetReg = 0xE2

const (
	chgDetDone     = 0x10
	chgDetTypeMask = 0xE0
	chgDetShift    = 5
)

// Bus is the generic register I/O contract driver/i2cdev.Bridge
// satisfies; usbhub only needs byte and byte-data transactions.
type Bus interface {
	ReadByteData(addr, reg uint8) (byte, error)
	WriteByteData(addr, reg, data uint8) error
}

// EnablePin drives the hub's power-enable and reset GPIO lines, which
// live outside the GPIO expander on the power board's own port.
type EnablePin interface {
	Set(enabled bool)
}

// Hub adapts the MCP23008 + USB2532 pair to power.USBHub and
// power.ChargerDetector.
type Hub struct {
	bus Bus

	expanderAddr uint8
	hubAddr      uint8

	enable EnablePin
	reset  EnablePin

	enabled bool
}

// New constructs a Hub wired to the GPIO-expander and hub register
// addresses and the discrete enable/reset lines.
func New(bus Bus, expanderAddr, hubAddr uint8, enable, reset EnablePin) *Hub {
	return &Hub{bus: bus, expanderAddr: expanderAddr, hubAddr: hubAddr, enable: enable, reset: reset}
}

// Enable sequences the hub on: assert power and reset, configure the
// expander's pull-ups and two-wire enable, then release reset.
func (h *Hub) Enable() {
	h.enable.Set(true)
	h.reset.Set(true)

	port := uint8(twSDAPU | twSCLPU)
	h.bus.WriteByteData(h.expanderAddr, regPort, port)

	outputs := ^uint8(cfgStrap1 | cfgStrap2 | twSDAPU | twSCLPU | twIntEn | hubRst)
	h.bus.WriteByteData(h.expanderAddr, regDirection, outputs)

	port |= twIntEn
	h.bus.WriteByteData(h.expanderAddr, regPort, port)

	port |= hubRst
	h.bus.WriteByteData(h.expanderAddr, regPort, port)

	h.bus.WriteByteData(h.expanderAddr, regGPINTEN, hsInd|suspInd)
	h.enabled = true
}

// Disable sequences the hub off: mask the status interrupts, leave the
// two-wire pull-ups driven, then assert reset and cut power.
func (h *Hub) Disable() {
	h.bus.WriteByteData(h.expanderAddr, regGPINTEN, 0)
	h.bus.WriteByteData(h.expanderAddr, regPort, twSDAPU|twSCLPU)
	h.reset.Set(false)
	h.enable.Set(false)
	h.enabled = false
}

// IsEnabled reports whether Enable has run without a following Disable.
func (h *Hub) IsEnabled() bool { return h.enabled }

func (h *Hub) port() uint8 {
	v, _ := h.bus.ReadByteData(h.expanderAddr, regPort)
	return v
}

// IsSuspended XORs the suspend indicator against its strap-configured
// polarity bit, the same decode the expander's strapping requires.
func (h *Hub) IsSuspended() bool {
	p := h.port()
	return (p&suspInd)^((p&cfgStrap2)>>1) != 0
}

// IsHighSpeedMode XORs the high-speed indicator against its strap bit.
func (h *Hub) IsHighSpeedMode() bool {
	p := h.port()
	return (p&hsInd)^((p&cfgStrap1)>>1) != 0
}

// Detect reads the hub's battery-charger-detection result register and
// maps it to a power.ChargerType, returning ChargerWait while detection
// is still in progress.
func (h *Hub) Detect() power.ChargerType {
	v, err := h.bus.ReadByteData(h.hubAddr, chgDetReg)
	if err != nil || v&chgDetDone == 0 {
		return power.ChargerWait
	}
	switch (v & chgDetTypeMask) >> chgDetShift {
	case 0x01:
		return power.ChargerDCP
	case 0x02:
		return power.ChargerCDP
	case 0x03:
		return power.ChargerSDP
	case 0x04:
		return power.ChargerSE1L
	case 0x05:
		return power.ChargerSE1H
	case 0x06:
		return power.ChargerSE1S
	default:
		return power.ChargerWait
	}
}
