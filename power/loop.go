package power

import (
	"sync"
	"time"
)

// PowerRail is a single GPIO-driven power enable line: system, actuator,
// or passthrough.
type PowerRail interface {
	Set(enabled bool)
	Get() bool
}

// ADCSource reads a raw battery-voltage ADC channel, pre-multiplication by
// BattMVPerADCCount.
type ADCSource interface {
	Sample() uint16
}

// Snapshot is the read-only public snapshot of one update pass, useful for
// GET_PM_STATUS / GET_USB_STATUS / GET_CHARGER_STATUS command handlers.
type Snapshot struct {
	System, Actuator             Status
	SystemBatteryMV, ActBatteryMV int
	ActuatorInputLimit            InputLimit
	SystemCharging, ActuatorCharging bool
	LastCharger                  ChargerType
}

// System is the power-management board's arbitration engine: it owns both
// PMIC mirrors, the USB hub and charger detector, both LED banks, both
// battery ADC channels, and the three power rails, and runs the ordered
// update pass spec.md documents as the update loop's eleven steps.
type System struct {
	mu sync.Mutex

	sysPMIC *mirror
	actPMIC *mirror

	hub      USBHub
	detector ChargerDetector

	inputLEDs LEDBank
	battLEDs  LEDBank

	sysBattADC, actBattADC ADCSource

	systemRail, actuatorRail, passthroughRail PowerRail

	actuatorLimitOverride InputLimit

	lastSync     time.Time
	syncRequired bool
	lastCharger  ChargerType

	last Snapshot
}

// New constructs a power System wired to its PMICs, USB hub/detector, LED
// banks, battery ADCs, and power rails.
func New(
	sysPMIC, actPMIC PMIC,
	hub USBHub, detector ChargerDetector,
	inputLEDs, battLEDs LEDBank,
	sysBattADC, actBattADC ADCSource,
	systemRail, actuatorRail, passthroughRail PowerRail,
) *System {
	return &System{
		sysPMIC:               newMirror(sysPMIC),
		actPMIC:                newMirror(actPMIC),
		hub:                   hub,
		detector:              detector,
		inputLEDs:             inputLEDs,
		battLEDs:              battLEDs,
		sysBattADC:            sysBattADC,
		actBattADC:            actBattADC,
		systemRail:            systemRail,
		actuatorRail:          actuatorRail,
		passthroughRail:       passthroughRail,
		actuatorLimitOverride: LHiZ,
	}
}

// RequestSync asserts sync_required so the next Poll runs Update. No
// goroutine in this module calls it: cmd/pmd watches no switch, USB-hub
// event or PMIC status line for edges, so passes run on the SyncPeriodMS
// schedule only.
func (s *System) RequestSync() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncRequired = true
}

// SetActuatorInputLimitOverride overrides the computed actuator input
// limit; pass LHiZ to return to automatic thresholding.
func (s *System) SetActuatorInputLimitOverride(limit InputLimit) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actuatorLimitOverride = limit
}

// SetUSBIFEnable directly enables or disables the USB hub, independent of
// the update loop's automatic enable/disable driven by USB input state.
// The next Update pass may re-assert the automatic state if the source
// classification still disagrees.
func (s *System) SetUSBIFEnable(enable bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if enable {
		s.hub.Enable()
	} else {
		s.hub.Disable()
	}
}

// SetSystemPowerEnable drives the system rail directly.
func (s *System) SetSystemPowerEnable(enable bool) { s.systemRail.Set(enable) }

// SetActuatorPowerEnable drives the actuator rail directly.
func (s *System) SetActuatorPowerEnable(enable bool) { s.actuatorRail.Set(enable) }

// Snapshot returns the last completed update pass's results.
func (s *System) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Poll runs Update if SyncPeriodMS has elapsed since the last pass, or if
// RequestSync has asserted sync_required since then. It is meant to be
// called from the power board's foreground dispatch loop every iteration.
func (s *System) Poll(now time.Time) {
	s.mu.Lock()
	due := s.syncRequired || now.Sub(s.lastSync) >= SyncPeriodMS*time.Millisecond
	s.mu.Unlock()
	if !due {
		return
	}
	s.Update()
	s.mu.Lock()
	s.lastSync = now
	s.syncRequired = false
	s.mu.Unlock()
}

// Update runs one full arbitration pass: the eleven ordered steps from
// PMIC resync through actuator battery arbitration.
func (s *System) Update() {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Step 1: reset watchdogs, resync both PMIC mirrors.
	s.sysPMIC.sync()
	s.actPMIC.sync()

	sysStatus := s.sysPMIC.status

	// Step 2: USB hub enable + charger classification, re-synced after.
	if sysStatus.InputState(SourceUSB) == StateNormal {
		if !s.hub.IsEnabled() {
			s.hub.Enable()
		}
		chg := s.detector.Detect()
		limit := classifyUSBInputLimit(s.hub, fixedCharger(chg))
		s.sysPMIC.pmic.SetInputLimit(SourceUSB, limit)
		s.sysPMIC.status = s.sysPMIC.pmic.Synchronize()
		sysStatus = s.sysPMIC.status
		s.lastCharger = chg
	} else {
		if s.hub.IsEnabled() {
			s.hub.Disable()
		}
		s.lastCharger = ChargerDisabled
	}

	// Step 3: input-status LEDs.
	setAdapterLED(s.inputLEDs, LEDAdapter, sysStatus.InputState(SourceAdapter))
	setUSBLEDs(s.inputLEDs, sysStatus.InputState(SourceUSB), sysStatus.InputLimit(SourceUSB))

	// Step 4: battery voltages.
	sysBattMV := int(s.sysBattADC.Sample()) * BattMVPerADCCount
	actBattMV := int(s.actBattADC.Sample()) * BattMVPerADCCount

	// Step 5: available power from the preferred-source-first list.
	available := availablePowerMW(sysStatus, InputVoltageMV)

	// Step 6: system load.
	if s.systemRail.Get() {
		available = deduct(available, SysPowerReqMW)
	}

	// Step 7: system battery arbitration.
	sysResult := arbitrateBattery(sysStatus.DeviceState, sysStatus.Fault, sysStatus.BatteryState, sysBattMV, available, batteryParams{
		RegulationMV:  SysBattRegulationMV,
		ChargeCurrentMA: SysBattChargeCurrentMA,
		InitChargeMV:  SysBattInitChargeMV,
		LowVoltageMV:  SysBattLowVoltageMV,
		NotPresentMV:  SysBattNotPresentMV,
	})
	available = sysResult.Remaining
	if sysResult.ResendParams {
		s.sysPMIC.pmic.SetBatteryParams(SysBattRegulationMV, SysBattChargeCurrentMA, SysBattTerminationCurrentA)
	}
	s.sysPMIC.pmic.SetChargingEnable(sysResult.ChargeEnable)
	s.battLEDs.SetMode(LEDBattStatus, sysResult.StatusLED)
	s.battLEDs.SetMode(LEDBattCharge, sysResult.ChargeLED)

	// Step 8: passthrough loss.
	available = deduct(available, SysActPassthroughLossMW)

	// Step 9: actuator input limit.
	actLimit, available := actuatorInputLimitFor(available, s.actuatorLimitOverride)
	s.actPMIC.pmic.SetInputLimit(SourceNone, actLimit)

	// Step 10: actuator load.
	if s.actuatorRail.Get() {
		available = deduct(available, ActPowerReqMW)
	}

	// Step 11: actuator battery arbitration mirrors system.
	actStatus := s.actPMIC.status
	actResult := arbitrateBattery(actStatus.DeviceState, actStatus.Fault, actStatus.BatteryState, actBattMV, available, batteryParams{
		RegulationMV:  ActBattRegulationMV,
		ChargeCurrentMA: ActBattChargeCurrentMA,
		InitChargeMV:  ActBattInitChargeMV,
		LowVoltageMV:  ActBattLowVoltageMV,
		NotPresentMV:  ActBattNotPresentMV,
	})
	if actResult.ResendParams {
		s.actPMIC.pmic.SetBatteryParams(ActBattRegulationMV, ActBattChargeCurrentMA, ActBattTerminationCurrentA)
	}
	s.actPMIC.pmic.SetChargingEnable(actResult.ChargeEnable)

	s.last = Snapshot{
		System:            sysStatus,
		Actuator:          actStatus,
		SystemBatteryMV:   sysBattMV,
		ActBatteryMV:      actBattMV,
		ActuatorInputLimit: actLimit,
		SystemCharging:    sysResult.ChargeEnable,
		ActuatorCharging:  actResult.ChargeEnable,
		LastCharger:       s.lastCharger,
	}
}
