package power

// Timing and power-budget constants carried verbatim from the original
// firmware's power_management_system.cpp.
const (
	SyncPeriodMS = 5000

	InputVoltageMV = 5000 // nominal 5V bus on both PMIC inputs

	SysPowerReqMW           = 2500
	ActPowerReqMW           = 15000
	SysActPassthroughLossMW = 50

	BattMVPerADCCount = 17 // 1.1V reference over a 1M/330k divider

	SysBattRegulationMV        = 4200
	SysBattInitChargeMV        = 4100
	SysBattChargeCurrentMA     = 740
	SysBattTerminationCurrentA = 50
	SysBattLowVoltageMV        = 3200
	SysBattNotPresentMV        = 500

	ActBattRegulationMV        = 4200
	ActBattInitChargeMV        = 4100
	ActBattChargeCurrentMA     = 740
	ActBattTerminationCurrentA = 50
	ActBattLowVoltageMV        = 3200
	ActBattNotPresentMV        = 100
)

// chargePowerMW is a charge current/regulation-voltage pair's power draw.
func chargePowerMW(currentMA, regulationMV int) int {
	return (currentMA * regulationMV) / 1000
}

// milliWattsAt converts an input-current limit to available power at the
// given bus voltage, per step 5's available_power_mW formula.
func milliWattsAt(limit InputLimit, busMV int) int {
	return limit.MilliAmps() * busMV / 1000
}

// availablePowerMW walks the preferred-source-first ordered source list
// and returns the power offered by the first NORMAL source with a
// non-zero limit, per update-loop step 5.
func availablePowerMW(status Status, busMV int) int {
	order := [3]Source{status.PreferredSource}
	switch status.PreferredSource {
	case SourceAdapter:
		order[1], order[2] = SourceUSB, SourceNone
	case SourceUSB:
		order[1], order[2] = SourceAdapter, SourceNone
	default:
		order[0], order[1], order[2] = SourceNone, SourceNone, SourceNone
	}
	for _, src := range order {
		if status.InputState(src) != StateNormal {
			continue
		}
		if mw := milliWattsAt(status.InputLimit(src), busMV); mw > 0 {
			return mw
		}
	}
	return 0
}

// deduct subtracts req from available, flooring at zero, per steps 6/8/10.
func deduct(available, req int) int {
	if available > req {
		return available - req
	}
	return 0
}

// actuatorInputLimitFor thresholds remaining power into the actuator
// PMIC's input-limit buckets, per step 9. A non-LHiZ override bypasses the
// thresholding entirely.
func actuatorInputLimitFor(remainingMW int, override InputLimit) (limit InputLimit, available int) {
	if override != LHiZ {
		return override, remainingMW
	}
	busMW := func(ma int) int { return ma * InputVoltageMV / 1000 }
	switch {
	case remainingMW > busMW(900):
		return L900, remainingMW
	case remainingMW > busMW(500):
		return L500, remainingMW
	case remainingMW > busMW(150):
		return L150, remainingMW
	case remainingMW > busMW(100):
		return L100, remainingMW
	default:
		return LHiZ, 0
	}
}

// batteryParams bundles one battery's charge-regulation constants for
// arbitrateBattery.
type batteryParams struct {
	RegulationMV, ChargeCurrentMA      int
	InitChargeMV, LowVoltageMV, NotPresentMV int
}

// batteryResult is one battery's arbitration outcome for a single update
// pass.
type batteryResult struct {
	ChargeEnable        bool
	ResendParams        bool
	Remaining           int
	StatusLED, ChargeLED LEDMode
}

// arbitrateBattery runs one battery's charge arbitration branch (fault,
// charging, ready-below-init, ready-and-charged, or not-present), shared
// between the system and actuator batteries per the spec's "mirrors
// system" framing for the actuator pass.
func arbitrateBattery(deviceState DeviceState, fault Fault, batteryState BatteryState, batteryVoltageMV, available int, p batteryParams) batteryResult {
	chgPower := chargePowerMW(p.ChargeCurrentMA, p.RegulationMV)

	if batteryState != BatteryNormal || fault == FaultBattery || fault == FaultBatteryThermalShutdown {
		statusLED := LEDBlink
		if batteryVoltageMV < p.NotPresentMV {
			statusLED = LEDOff
		}
		return batteryResult{
			ResendParams: true,
			Remaining:    available,
			StatusLED:    statusLED,
			ChargeLED:    LEDOff,
		}
	}

	if deviceState == DeviceCharging {
		if available > chgPower/3 {
			return batteryResult{
				ChargeEnable: true,
				Remaining:    available - chgPower/3,
				StatusLED:    LEDOn,
				ChargeLED:    LEDBlink,
			}
		}
		return batteryResult{
			Remaining: available,
			StatusLED: LEDOn,
			ChargeLED: LEDOff,
		}
	}

	// DeviceReady or DeviceDone.
	if batteryVoltageMV < p.NotPresentMV {
		return batteryResult{Remaining: available, StatusLED: LEDOff, ChargeLED: LEDOff}
	}
	if batteryVoltageMV < p.InitChargeMV {
		if available > chgPower/3 {
			return batteryResult{
				ChargeEnable: true,
				ResendParams: true,
				Remaining:    available - chgPower/3,
				StatusLED:    LEDOn,
				ChargeLED:    LEDBlink,
			}
		}
		statusLED := LEDOn
		if batteryVoltageMV <= p.LowVoltageMV {
			statusLED = LEDBlink
		}
		return batteryResult{Remaining: available, StatusLED: statusLED, ChargeLED: LEDOff}
	}
	return batteryResult{Remaining: available, StatusLED: LEDOn, ChargeLED: LEDOn}
}
