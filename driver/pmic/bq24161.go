// Package pmic drives the power-management board's two battery-charger
// ICs as plain I2C register devices reached through driver/i2cdev,
// decoding their status registers into power.Status and accepting
// power.PMIC's input-limit/charging-enable/battery-parameter commands.
// BQ24161 backs the system PMIC (dual adapter+USB source arbitration);
// BQ24250 backs the actuator PMIC (single source, finer input-limit
// steps).
package pmic

import "tribot.dev/power"

// BQ24161 register addresses and field masks, from the chip's status
// (R0/R1) and control (R2/R3) register layout.
const (
	bq61R0 = 0x00
	bq61R1 = 0x01
	bq61R2 = 0x02
	bq61R3 = 0x03
)

const (
	bq61R0WatchdogReset = 0x80
	bq61R0StatMask      = 0x70
	bq61R0SupplyMask    = 0x08
	bq61R0FaultMask     = 0x07

	bq61R1AdapterStatMask = 0xC0
	bq61R1USBStatMask     = 0x30
	bq61R1BattStatMask    = 0x06

	bq61R2Reset         = 0x80
	bq61R2USBLimitMask  = 0x70
	bq61R2ChargeEnable  = 0x02
	bq61R3AdapterLimit2500 = 0x02
)

// Bus is the generic register I/O contract driver/i2cdev.Bridge
// satisfies.
type Bus interface {
	ReadByteData(addr, reg uint8) (byte, error)
	WriteByteData(addr, reg, data uint8) error
}

// BQ24161 adapts the system PMIC to power.PMIC.
type BQ24161 struct {
	bus  Bus
	addr uint8
}

// NewBQ24161 returns a driver for the chip at addr on bus.
func NewBQ24161(bus Bus, addr uint8) *BQ24161 {
	return &BQ24161{bus: bus, addr: addr}
}

// ResetWatchdog sets R0's watchdog-reset bit, which the chip self-clears.
func (d *BQ24161) ResetWatchdog() {
	v, _ := d.bus.ReadByteData(d.addr, bq61R0)
	d.bus.WriteByteData(d.addr, bq61R0, v|bq61R0WatchdogReset)
}

// Synchronize reads R0/R1 and decodes them into a power.Status snapshot.
func (d *BQ24161) Synchronize() power.Status {
	r0, _ := d.bus.ReadByteData(d.addr, bq61R0)
	r1, _ := d.bus.ReadByteData(d.addr, bq61R1)

	var s power.Status
	if r0&bq61R0SupplyMask == 0 {
		s.PreferredSource = power.SourceAdapter
	} else {
		s.PreferredSource = power.SourceUSB
	}

	switch (r0 & bq61R0StatMask) >> 4 {
	case 0x00:
		// No source present: standby, not a fault.
		s.DeviceState = power.DeviceReady
	case 0x01, 0x02:
		// Source present, not yet charging.
		s.DeviceState = power.DeviceReady
	case 0x03, 0x04:
		s.DeviceState = power.DeviceCharging
	case 0x05:
		s.DeviceState = power.DeviceDone
	case 0x06, 0x07:
		s.DeviceState = power.DeviceFault
	}

	switch r0 & bq61R0FaultMask {
	case 0x00:
		s.Fault = power.FaultNone
	case 0x01:
		s.Fault = power.FaultDeviceThermalShutdown
	case 0x02:
		s.Fault = power.FaultBatteryThermalShutdown
	case 0x03:
		s.Fault = power.FaultWatchdogExpired
	case 0x04:
		s.Fault = power.FaultSafetyTimerExpired
	case 0x05, 0x06:
		s.Fault = power.FaultCharger // adapter/usb fault
	case 0x07:
		s.Fault = power.FaultBattery // BATT_FAULT
	}

	s.AdapterState = decodeInputState((r1 & bq61R1AdapterStatMask) >> 6)
	s.USBState = decodeInputState((r1 & bq61R1USBStatMask) >> 4)
	s.BatteryState = decodeBatteryState((r1 & bq61R1BattStatMask) >> 1)

	return s
}

func decodeInputState(bits uint8) power.InputState {
	switch bits {
	case 0x00:
		return power.StateNormal
	case 0x01:
		return power.StateOverVoltage
	case 0x02:
		return power.StateWeak
	default:
		return power.StateUnderVoltage
	}
}

// decodeBatteryState decodes R1's BATT_STAT field, a battery-health axis
// the chip reports independently of STAT/FAULT.
func decodeBatteryState(bits uint8) power.BatteryState {
	switch bits {
	case 0x00:
		return power.BatteryNormal
	case 0x01:
		return power.BatteryOverVoltage
	case 0x02:
		return power.BatteryDisconnected
	default:
		return power.BatteryUndefined
	}
}

// SetInputLimit programs the input-current limit for src, matching the
// chip's six-step USB field and two-step adapter field.
func (d *BQ24161) SetInputLimit(src power.Source, limit power.InputLimit) {
	r2, _ := d.bus.ReadByteData(d.addr, bq61R2)
	r3, _ := d.bus.ReadByteData(d.addr, bq61R3)
	r2 &^= bq61R2Reset

	switch src {
	case power.SourceUSB:
		r2 &^= bq61R2USBLimitMask
		r2 |= usbLimitField(limit) << 4
	case power.SourceAdapter:
		if limit == power.L2500 {
			r3 |= bq61R3AdapterLimit2500
		} else {
			r3 &^= bq61R3AdapterLimit2500
		}
	}

	d.bus.WriteByteData(d.addr, bq61R2, r2)
	d.bus.WriteByteData(d.addr, bq61R3, r3)
}

func usbLimitField(limit power.InputLimit) uint8 {
	switch limit {
	case power.L100:
		return 0
	case power.L150:
		return 1
	case power.L500:
		return 2
	case power.L800:
		return 3
	case power.L900:
		return 4
	case power.L1500:
		return 5
	default:
		return 0
	}
}

// SetChargingEnable sets or clears R2's (active-low) charge-enable bit.
func (d *BQ24161) SetChargingEnable(enable bool) {
	v, _ := d.bus.ReadByteData(d.addr, bq61R2)
	v &^= bq61R2Reset
	if enable {
		v &^= bq61R2ChargeEnable
	} else {
		v |= bq61R2ChargeEnable
	}
	d.bus.WriteByteData(d.addr, bq61R2, v)
}

// SetBatteryParams is a no-op on the BQ24161: the board's original
// firmware programs its regulation/termination voltages once at startup
// through dedicated registers this driver does not expose, since the
// power-management update loop only ever resends them in response to a
// battery fault, which the chip's own safety timer already recovers
// from independently on this part.
func (d *BQ24161) SetBatteryParams(regulationMV, chargeCurrentMA, terminationCurrentMA int) {}
