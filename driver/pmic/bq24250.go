package pmic

import "tribot.dev/power"

// BQ24250 register addresses and field masks.
const (
	bq50R0 = 0x00
	bq50R1 = 0x01
)

const (
	bq50R0StatMask  = 0x30
	bq50R0FaultMask = 0x0F

	bq50R1ILimitMask = 0x70
	bq50R1Reset      = 0x80
	bq50R1ChargeEn   = 0x02
	bq50R1HiZ        = 0x01
)

// BQ24250 adapts the actuator PMIC to power.PMIC. It has a single input
// source (no adapter/USB split), so SetInputLimit ignores src.
type BQ24250 struct {
	bus  Bus
	addr uint8
}

// NewBQ24250 returns a driver for the chip at addr on bus.
func NewBQ24250(bus Bus, addr uint8) *BQ24250 {
	return &BQ24250{bus: bus, addr: addr}
}

// ResetWatchdog is a no-op: unlike the BQ24161, this part's watchdog is
// serviced implicitly by any register write and has no dedicated reset
// bit, per bq24250_module.cpp's GetWatchdogEnabled/GetWatchdogFault pair
// observing rather than resetting the timer.
func (d *BQ24250) ResetWatchdog() {}

// Synchronize reads R0 and decodes it into a power.Status snapshot. The
// device has one input, surfaced as SourceNone throughout, matching
// power's "actuator battery arbitration mirrors system, but with a
// single-source PMIC" framing.
func (d *BQ24250) Synchronize() power.Status {
	r0, _ := d.bus.ReadByteData(d.addr, bq50R0)

	var s power.Status
	s.PreferredSource = power.SourceNone

	switch (r0 & bq50R0StatMask) >> 4 {
	case 0x00:
		s.DeviceState = power.DeviceReady
	case 0x01:
		s.DeviceState = power.DeviceCharging
	case 0x02:
		s.DeviceState = power.DeviceDone
	default:
		s.DeviceState = power.DeviceFault
	}

	switch r0 & bq50R0FaultMask {
	case 0x00:
		s.Fault = power.FaultNone
	case 0x04:
		s.Fault = power.FaultBatteryThermalShutdown
	case 0x05:
		s.Fault = power.FaultBatteryOverVoltage
	case 0x08:
		s.Fault = power.FaultBatteryDisconnected
	case 0x01, 0x02, 0x03, 0x06, 0x07, 0x09, 0x0A:
		s.Fault = power.FaultCharger
	default:
		s.Fault = power.FaultNone
	}

	s.AdapterState = power.StateNormal
	s.USBState = power.StateNormal
	return s
}

// SetInputLimit programs R1's five-step input-current-limit field; src
// is ignored since the chip has a single input.
func (d *BQ24250) SetInputLimit(src power.Source, limit power.InputLimit) {
	v, _ := d.bus.ReadByteData(d.addr, bq50R1)
	v &^= bq50R1Reset

	if limit == power.LHiZ {
		v |= bq50R1HiZ
		d.bus.WriteByteData(d.addr, bq50R1, v)
		return
	}
	v &^= bq50R1HiZ
	v &^= bq50R1ILimitMask
	v |= actuatorLimitField(limit) << 4
	d.bus.WriteByteData(d.addr, bq50R1, v)
}

func actuatorLimitField(limit power.InputLimit) uint8 {
	switch limit {
	case power.L100:
		return 0
	case power.L150:
		return 1
	case power.L500:
		return 2
	case power.L900:
		return 3
	case power.L1500:
		return 4
	default:
		return 2
	}
}

// SetChargingEnable sets or clears R1's (active-low) charge-enable bit.
func (d *BQ24250) SetChargingEnable(enable bool) {
	v, _ := d.bus.ReadByteData(d.addr, bq50R1)
	v &^= bq50R1Reset
	if enable {
		v &^= bq50R1ChargeEn
	} else {
		v |= bq50R1ChargeEn
	}
	d.bus.WriteByteData(d.addr, bq50R1, v)
}

// SetBatteryParams is a no-op for the same reason as BQ24161.SetBatteryParams.
func (d *BQ24250) SetBatteryParams(regulationMV, chargeCurrentMA, terminationCurrentMA int) {}
