package board

import (
	"context"
	"time"

	"tribot.dev/pci"
	"tribot.dev/power"
)

// SwitchPin reports the power button's current electrical state: true
// while held down. PM polls it once per foreground loop iteration and
// feeds edges to power.SwitchMonitor; the button is polled rather than
// serviced by an edge-interrupt goroutine.
type SwitchPin interface {
	Pressed() bool
}

// PM is the power-management board: the arbitration update loop, the
// power button's press/hold/release handling, shared telemetry, and
// SMBus passthrough.
type PM struct {
	d     *Dispatcher
	sys   *power.System
	sw    SwitchPin
	mon   power.SwitchMonitor
	swWas bool

	systemOn bool
}

// NewPM builds the power-management board's dispatcher, wiring the
// arbitration system's commands, the power switch poller, shared
// telemetry, and (if smbus is non-nil) register passthrough.
func NewPM(src pci.Source, sink pci.Sink, sys *power.System, sw SwitchPin, batt BatteryReader, smbus SMBusDevice) *PM {
	d := newDispatcher("pm", src, sink)
	b := &PM{d: d, sys: sys, sw: sw}

	d.handle(pci.SetSystemPowerEnable, b.handleSetSystemPowerEnable)
	d.handle(pci.SetActuatorPowerEnable, b.handleSetActuatorPowerEnable)
	d.handle(pci.SetActuatorInputLimitOverride, b.handleSetActuatorInputLimitOverride)
	d.handle(pci.SetUSBIFEnable, b.handleSetUSBIFEnable)
	d.handle(pci.GetPMStatus, b.handleGetPMStatus)
	d.handle(pci.GetUSBStatus, b.handleGetUSBStatus)
	d.handle(pci.GetChargerStatus, b.handleGetChargerStatus)

	d.handle(pci.GetUptime, uptimeHandler(d))
	if batt != nil {
		d.handle(pci.GetBattLvl, batteryHandler(d, batt))
	}
	if smbus != nil {
		registerSMBusHandlers(d, smbus)
	}

	d.poll(func() { sys.Poll(time.Now()) })
	if sw != nil {
		d.poll(b.pollSwitch)
	}

	return b
}

func (b *PM) handleSetSystemPowerEnable(data []byte) {
	if len(data) != 1 {
		return
	}
	b.systemOn = data[0] != 0
	b.sys.SetSystemPowerEnable(b.systemOn)
}

func (b *PM) handleSetActuatorPowerEnable(data []byte) {
	if len(data) != 1 {
		return
	}
	b.sys.SetActuatorPowerEnable(data[0] != 0)
}

func (b *PM) handleSetActuatorInputLimitOverride(data []byte) {
	if len(data) != 1 {
		return
	}
	b.sys.SetActuatorInputLimitOverride(power.InputLimit(data[0]))
}

func (b *PM) handleSetUSBIFEnable(data []byte) {
	if len(data) != 1 {
		return
	}
	b.sys.SetUSBIFEnable(data[0] != 0)
}

// handleGetPMStatus packs both PMIC mirrors' charging state, fault, and
// battery-voltage readings: 1 byte system device-state, 1 byte system fault, 2 bytes system battery
// mV, 1 byte actuator device-state, 1 byte actuator fault, 2 bytes
// actuator battery mV, then 1 byte system battery-state and 1 byte
// actuator battery-state (BQ24161's BATT_STAT field, independent of the
// fault byte above; always BatteryNormal on the actuator's BQ24250,
// which has no separate battery-health register). spec.md calls
// GET_PM_STATUS out as "representative" of the status-query family
// without pinning an exact payload; this is the layout GET_USB_STATUS and
// GET_CHARGER_STATUS below follow the same convention for.
func (b *PM) handleGetPMStatus(data []byte) {
	if len(data) != 0 {
		return
	}
	snap := b.sys.Snapshot()
	var reply [10]byte
	reply[0] = byte(snap.System.DeviceState)
	reply[1] = byte(snap.System.Fault)
	putUint16(reply[2:4], uint16(snap.SystemBatteryMV))
	reply[4] = byte(snap.Actuator.DeviceState)
	reply[5] = byte(snap.Actuator.Fault)
	putUint16(reply[6:8], uint16(snap.ActBatteryMV))
	reply[8] = byte(snap.System.BatteryState)
	reply[9] = byte(snap.Actuator.BatteryState)
	b.d.reply(pci.GetPMStatus, reply[:])
}

// handleGetUSBStatus reports the system PMIC's USB input classification,
// negotiated limit, and a flag: 1 byte InputState, 1 byte InputLimit, 1
// byte set to 1 when the USB input is classified normal (the condition
// under which the update pass enables the hub). The flag does not read
// the hub itself, so a SET_USBIF_ENABLE since the last update pass is not
// reflected.
func (b *PM) handleGetUSBStatus(data []byte) {
	if len(data) != 0 {
		return
	}
	snap := b.sys.Snapshot()
	enabled := byte(0)
	if snap.System.USBState == power.StateNormal {
		enabled = 1
	}
	reply := [3]byte{byte(snap.System.USBState), byte(snap.System.USBLimit), enabled}
	b.d.reply(pci.GetUSBStatus, reply[:])
}

// handleGetChargerStatus reports the last USB charger classification
// observed during an update pass.
func (b *PM) handleGetChargerStatus(data []byte) {
	if len(data) != 0 {
		return
	}
	snap := b.sys.Snapshot()
	b.d.reply(pci.GetChargerStatus, []byte{byte(snap.LastCharger)})
}

// pollSwitch samples the power button once per foreground loop
// iteration, translating press/release edges and sustained holds into
// power.SwitchAction via power.SwitchMonitor, and actions the result:
// ActionPowerOn and ActionHardPowerDown drive the system rail directly,
// ActionSoftPowerDownRequest is forwarded to the host as a REQ_SOFT_PWDN
// packet for it to decide whether and how to shut down gracefully.
func (b *PM) pollSwitch() {
	now := time.Now()
	pressed := b.sw.Pressed()

	var action power.SwitchAction
	switch {
	case pressed && !b.swWas:
		action = b.mon.HandlePress(now, b.systemOn)
	case !pressed && b.swWas:
		action = b.mon.HandleRelease(now, b.systemOn)
	case pressed:
		action = b.mon.Poll(now)
	}
	b.swWas = pressed

	switch action {
	case power.ActionPowerOn:
		b.systemOn = true
		b.sys.SetSystemPowerEnable(true)
	case power.ActionHardPowerDown:
		b.systemOn = false
		b.sys.SetSystemPowerEnable(false)
	case power.ActionSoftPowerDownRequest:
		b.d.reply(pci.ReqSoftPWDN, nil)
	}
}

// Run executes the board's foreground dispatch loop, including the
// arbitration update poller and the power switch poller, until ctx is
// cancelled.
func (b *PM) Run(ctx context.Context) error {
	return b.d.Exec(ctx)
}
