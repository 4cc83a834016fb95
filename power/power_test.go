package power

import (
	"testing"
	"time"
)

type fakePMIC struct {
	status    Status
	limits    map[Source]InputLimit
	charging  bool
	watchdogs int
	params    [3]int
}

func newFakePMIC(status Status) *fakePMIC {
	return &fakePMIC{status: status, limits: map[Source]InputLimit{}}
}

func (f *fakePMIC) ResetWatchdog()   { f.watchdogs++ }
func (f *fakePMIC) Synchronize() Status { return f.status }
func (f *fakePMIC) SetInputLimit(src Source, limit InputLimit) {
	f.limits[src] = limit
	if src == SourceUSB {
		f.status.USBLimit = limit
	}
}
func (f *fakePMIC) SetChargingEnable(enable bool) { f.charging = enable }
func (f *fakePMIC) SetBatteryParams(regMV, chgMA, trmMA int) {
	f.params = [3]int{regMV, chgMA, trmMA}
}

type fakeHub struct {
	enabled, suspended, highSpeed bool
}

func (h *fakeHub) Enable()             { h.enabled = true }
func (h *fakeHub) Disable()            { h.enabled = false }
func (h *fakeHub) IsEnabled() bool     { return h.enabled }
func (h *fakeHub) IsSuspended() bool   { return h.suspended }
func (h *fakeHub) IsHighSpeedMode() bool { return h.highSpeed }

type fakeDetector struct{ t ChargerType }

func (d fakeDetector) Detect() ChargerType { return d.t }

type fakeLEDBank struct {
	modes map[int]LEDMode
}

func newFakeLEDBank() *fakeLEDBank { return &fakeLEDBank{modes: map[int]LEDMode{}} }
func (b *fakeLEDBank) SetMode(channel int, mode LEDMode) { b.modes[channel] = mode }

type fakeADC struct{ v uint16 }

func (a fakeADC) Sample() uint16 { return a.v }

type fakeRail struct{ on bool }

func (r *fakeRail) Set(enabled bool) { r.on = enabled }
func (r *fakeRail) Get() bool        { return r.on }

func TestAvailablePowerPrefersAdapterOverUSB(t *testing.T) {
	status := Status{
		PreferredSource: SourceAdapter,
		AdapterState:    StateNormal,
		AdapterLimit:    L1500,
		USBState:        StateNormal,
		USBLimit:        L500,
	}
	got := availablePowerMW(status, InputVoltageMV)
	want := milliWattsAt(L1500, InputVoltageMV)
	if got != want {
		t.Fatalf("got %d, want %d", got, want)
	}
}

func TestAvailablePowerFallsBackWhenPreferredNotNormal(t *testing.T) {
	status := Status{
		PreferredSource: SourceAdapter,
		AdapterState:    StateUnderVoltage,
		USBState:        StateNormal,
		USBLimit:        L900,
	}
	got := availablePowerMW(status, InputVoltageMV)
	want := milliWattsAt(L900, InputVoltageMV)
	if got != want {
		t.Fatalf("got %d, want %d", got, want)
	}
}

func TestAvailablePowerZeroWhenNoSourceNormal(t *testing.T) {
	status := Status{PreferredSource: SourceNone}
	if got := availablePowerMW(status, InputVoltageMV); got != 0 {
		t.Fatalf("got %d, want 0", got)
	}
}

func TestActuatorInputLimitThresholds(t *testing.T) {
	cases := []struct {
		mw   int
		want InputLimit
	}{
		{900*InputVoltageMV/1000 + 1, L900},
		{500*InputVoltageMV/1000 + 1, L500},
		{150*InputVoltageMV/1000 + 1, L150},
		{100*InputVoltageMV/1000 + 1, L100},
		{0, LHiZ},
	}
	for _, c := range cases {
		limit, _ := actuatorInputLimitFor(c.mw, LHiZ)
		if limit != c.want {
			t.Errorf("mw=%d: got %v, want %v", c.mw, limit, c.want)
		}
	}
}

func TestActuatorInputLimitOverrideBypassesThreshold(t *testing.T) {
	limit, available := actuatorInputLimitFor(0, L500)
	if limit != L500 || available != 0 {
		t.Fatalf("got limit=%v available=%d, want L500/0", limit, available)
	}
}

func TestArbitrateBatteryFaultBranchDisablesCharging(t *testing.T) {
	r := arbitrateBattery(DeviceFault, FaultBattery, BatteryNormal, 4000, 1000, batteryParams{
		RegulationMV: 4200, ChargeCurrentMA: 740, InitChargeMV: 4100, LowVoltageMV: 3200, NotPresentMV: 500,
	})
	if r.ChargeEnable {
		t.Fatalf("fault branch must not enable charging")
	}
	if r.StatusLED != LEDBlink {
		t.Fatalf("got status LED %v, want blink for present-but-faulted battery", r.StatusLED)
	}
}

func TestArbitrateBatteryFaultBranchNotPresent(t *testing.T) {
	r := arbitrateBattery(DeviceFault, FaultBattery, BatteryNormal, 100, 1000, batteryParams{
		RegulationMV: 4200, ChargeCurrentMA: 740, InitChargeMV: 4100, LowVoltageMV: 3200, NotPresentMV: 500,
	})
	if r.StatusLED != LEDOff {
		t.Fatalf("got status LED %v, want off for not-present battery", r.StatusLED)
	}
}

func TestArbitrateBatteryReadyBelowInitChargesWhenBudgetAvailable(t *testing.T) {
	params := batteryParams{RegulationMV: 4200, ChargeCurrentMA: 740, InitChargeMV: 4100, LowVoltageMV: 3200, NotPresentMV: 500}
	chg := chargePowerMW(params.ChargeCurrentMA, params.RegulationMV)
	r := arbitrateBattery(DeviceReady, FaultNone, BatteryNormal, 3900, chg, params)
	if !r.ChargeEnable {
		t.Fatalf("expected charging enabled with sufficient budget")
	}
	if r.Remaining != chg-chg/3 {
		t.Fatalf("got remaining %d, want %d", r.Remaining, chg-chg/3)
	}
}

func TestArbitrateBatteryReadyBelowInitInsufficientBudget(t *testing.T) {
	params := batteryParams{RegulationMV: 4200, ChargeCurrentMA: 740, InitChargeMV: 4100, LowVoltageMV: 3200, NotPresentMV: 500}
	r := arbitrateBattery(DeviceReady, FaultNone, BatteryNormal, 3900, 10, params)
	if r.ChargeEnable {
		t.Fatalf("expected charging disabled with insufficient budget")
	}
}

func TestArbitrateBatteryReadyAndChargedLeavesChargingOff(t *testing.T) {
	params := batteryParams{RegulationMV: 4200, ChargeCurrentMA: 740, InitChargeMV: 4100, LowVoltageMV: 3200, NotPresentMV: 500}
	r := arbitrateBattery(DeviceReady, FaultNone, BatteryNormal, 4200, 5000, params)
	if r.ChargeEnable {
		t.Fatalf("expected no charging once already at/above init voltage")
	}
	if r.StatusLED != LEDOn || r.ChargeLED != LEDOn {
		t.Fatalf("got statusLED=%v chargeLED=%v, want both on", r.StatusLED, r.ChargeLED)
	}
	if r.Remaining != 5000 {
		t.Fatalf("got remaining %d, want unchanged 5000", r.Remaining)
	}
}

func TestArbitrateBatteryNotPresentWhenNotCharging(t *testing.T) {
	params := batteryParams{RegulationMV: 4200, ChargeCurrentMA: 740, InitChargeMV: 4100, LowVoltageMV: 3200, NotPresentMV: 100}
	r := arbitrateBattery(DeviceReady, FaultNone, BatteryNormal, 50, 5000, params)
	if r.ChargeEnable || r.StatusLED != LEDOff || r.ChargeLED != LEDOff {
		t.Fatalf("got %+v, want charging disabled and both LEDs off", r)
	}
}

func TestArbitrateBatteryChargerFaultDoesNotTripBatteryBranch(t *testing.T) {
	params := batteryParams{RegulationMV: 4200, ChargeCurrentMA: 740, InitChargeMV: 4100, LowVoltageMV: 3200, NotPresentMV: 500}
	r := arbitrateBattery(DeviceReady, FaultCharger, BatteryNormal, 4200, 5000, params)
	if r.ResendParams {
		t.Fatalf("got ResendParams, want battery branch unaffected by a charger-side fault")
	}
	if r.StatusLED != LEDOn || r.ChargeLED != LEDOn {
		t.Fatalf("got statusLED=%v chargeLED=%v, want both on as in the non-fault ready-and-charged case", r.StatusLED, r.ChargeLED)
	}
}

func TestArbitrateBatteryOverVoltageTripsFaultBranch(t *testing.T) {
	r := arbitrateBattery(DeviceReady, FaultNone, BatteryOverVoltage, 4000, 1000, batteryParams{
		RegulationMV: 4200, ChargeCurrentMA: 740, InitChargeMV: 4100, LowVoltageMV: 3200, NotPresentMV: 500,
	})
	if !r.ResendParams {
		t.Fatalf("got ResendParams=false, want battery branch triggered by BatteryOverVoltage")
	}
	if r.ChargeEnable {
		t.Fatalf("fault branch must not enable charging")
	}
}

func TestClassifyUSBInputLimit(t *testing.T) {
	cases := []struct {
		charger   ChargerType
		highSpeed bool
		want      InputLimit
	}{
		{ChargerDCP, false, L1500},
		{ChargerSE1S, false, L1500},
		{ChargerSE1H, false, L900},
		{ChargerCDP, true, L900},
		{ChargerCDP, false, L1500},
		{ChargerSDP, false, L500},
		{ChargerSE1L, false, L500},
		{ChargerWait, false, L0},
		{ChargerDisabled, false, L0},
	}
	for _, c := range cases {
		hub := &fakeHub{highSpeed: c.highSpeed}
		got := classifyUSBInputLimit(hub, fakeDetector{t: c.charger})
		if got != c.want {
			t.Errorf("charger=%v highSpeed=%v: got %v, want %v", c.charger, c.highSpeed, got, c.want)
		}
	}
}

func TestClassifyUSBInputLimitSuspendedIsZero(t *testing.T) {
	hub := &fakeHub{suspended: true}
	if got := classifyUSBInputLimit(hub, fakeDetector{t: ChargerDCP}); got != L0 {
		t.Fatalf("got %v, want L0 for suspended port", got)
	}
}

func TestSwitchMonitorShortPressRequestsSoftShutdown(t *testing.T) {
	var m SwitchMonitor
	t0 := time.Unix(1000, 0)
	if a := m.HandlePress(t0, true); a != ActionNone {
		t.Fatalf("got %v, want ActionNone on press while already on", a)
	}
	if a := m.HandleRelease(t0.Add(200*time.Millisecond), true); a != ActionSoftPowerDownRequest {
		t.Fatalf("got %v, want ActionSoftPowerDownRequest", a)
	}
}

func TestSwitchMonitorLongPressTriggersHardPowerDown(t *testing.T) {
	var m SwitchMonitor
	t0 := time.Unix(1000, 0)
	m.HandlePress(t0, true)
	if a := m.Poll(t0.Add(800 * time.Millisecond)); a != ActionHardPowerDown {
		t.Fatalf("got %v, want ActionHardPowerDown", a)
	}
}

func TestSwitchMonitorPressWhileOffPowersOn(t *testing.T) {
	var m SwitchMonitor
	t0 := time.Unix(1000, 0)
	if a := m.HandlePress(t0, false); a != ActionPowerOn {
		t.Fatalf("got %v, want ActionPowerOn", a)
	}
}

func TestUpdateEndToEndScenario(t *testing.T) {
	// Adapter NORMAL with limit L2500, system power ON, system battery at
	// 3900mV (below init charge), actuator power OFF, actuator battery
	// absent: expect system charging enabled, actuator input-limit the
	// highest bucket that fits remaining budget.
	sysPMIC := newFakePMIC(Status{
		PreferredSource: SourceAdapter,
		AdapterState:    StateNormal,
		AdapterLimit:    L2500,
		USBState:        StateUnderVoltage,
		DeviceState:     DeviceReady,
	})
	actPMIC := newFakePMIC(Status{DeviceState: DeviceReady})

	hub := &fakeHub{}
	detector := fakeDetector{t: ChargerWait}
	inputLEDs := newFakeLEDBank()
	battLEDs := newFakeLEDBank()
	sysBattADC := fakeADC{v: 3900 / BattMVPerADCCount}
	actBattADC := fakeADC{v: 50 / BattMVPerADCCount} // below ActBattNotPresentMV=100

	systemRail := &fakeRail{on: true}
	actuatorRail := &fakeRail{on: false}
	passthroughRail := &fakeRail{on: true}

	sys := New(sysPMIC, actPMIC, hub, detector, inputLEDs, battLEDs, sysBattADC, actBattADC, systemRail, actuatorRail, passthroughRail)
	sys.Update()

	snap := sys.Snapshot()
	if !snap.SystemCharging {
		t.Fatalf("expected system battery charging enabled")
	}
	if snap.ActuatorCharging {
		t.Fatalf("expected actuator battery not charging (absent)")
	}
	if snap.ActuatorInputLimit == LHiZ {
		t.Fatalf("expected a non-HiZ actuator input limit with abundant adapter power")
	}
}

func TestPollRunsOnlyWhenDueOrSyncRequired(t *testing.T) {
	sysPMIC := newFakePMIC(Status{})
	actPMIC := newFakePMIC(Status{})
	sys := New(sysPMIC, actPMIC, &fakeHub{}, fakeDetector{}, newFakeLEDBank(), newFakeLEDBank(),
		fakeADC{}, fakeADC{}, &fakeRail{}, &fakeRail{}, &fakeRail{})

	t0 := time.Unix(1000, 0)
	sys.Poll(t0)
	if sysPMIC.watchdogs != 1 {
		t.Fatalf("expected first Poll to run Update, got %d watchdog resets", sysPMIC.watchdogs)
	}

	sys.Poll(t0.Add(time.Second))
	if sysPMIC.watchdogs != 1 {
		t.Fatalf("expected Poll before sync period to be a no-op, got %d watchdog resets", sysPMIC.watchdogs)
	}

	sys.RequestSync()
	sys.Poll(t0.Add(time.Second))
	if sysPMIC.watchdogs != 2 {
		t.Fatalf("expected RequestSync to force an Update, got %d watchdog resets", sysPMIC.watchdogs)
	}
}
