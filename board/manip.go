package board

import (
	"context"

	"tribot.dev/driver/nfc"
	"tribot.dev/driver/rf"
	"tribot.dev/lift"
	"tribot.dev/pci"
)

// maxNFCPayload bounds a single READ_NFC/WRITE_NFC exchange to the frame
// payload budget.
const maxNFCPayload = pci.RecvBufferCapacity - pci.NonDataSize

// Manip is the manipulator board: the lift-actuator state machine and its
// electromagnetic clutch, the RF range/ambient sensor, the NFC
// transceiver, shared telemetry, and SMBus passthrough.
type Manip struct {
	d    *Dispatcher
	lift *lift.System
	rf   *rf.Sensor
	nfc  *nfc.Device
}

// NewManip builds the manipulator board's dispatcher. rf, nfcDev, and
// smbus may each be nil if the board instance has no such peripheral
// fitted; their commands are simply left unregistered.
func NewManip(src pci.Source, sink pci.Sink, sys *lift.System, rfSensor *rf.Sensor, nfcDev *nfc.Device, batt BatteryReader, smbus SMBusDevice) *Manip {
	d := newDispatcher("manip", src, sink)
	b := &Manip{d: d, lift: sys, rf: rfSensor, nfc: nfcDev}

	d.handle(pci.SetLiftActuatorPosition, b.handleSetPosition)
	d.handle(pci.GetLiftActuatorPosition, b.handleGetPosition)
	d.handle(pci.SetLiftActuatorSpeed, b.handleSetSpeed)
	d.handle(pci.GetLimitSwitchState, b.handleGetLimitSwitchState)
	d.handle(pci.CalibrateLiftActuator, b.handleCalibrate)
	d.handle(pci.EmerStopLiftActuator, b.handleEmerStop)
	d.handle(pci.GetLiftActuatorState, b.handleGetState)

	if sys.Electromagnet() != nil {
		d.handle(pci.SetEMChargeEnable, b.handleSetEMChargeEnable)
		d.handle(pci.SetEMDischargeMode, b.handleSetEMDischargeMode)
		d.handle(pci.GetEMAccumVoltage, b.handleGetEMAccumVoltage)
	}

	if rfSensor != nil {
		d.handle(pci.GetRFRange, b.handleGetRFRange)
		d.handle(pci.GetRFAmbient, b.handleGetRFAmbient)
	}

	if nfcDev != nil {
		d.handle(pci.ReadNFC, b.handleReadNFC)
		d.handle(pci.WriteNFC, b.handleWriteNFC)
	}

	d.handle(pci.GetUptime, uptimeHandler(d))
	if batt != nil {
		d.handle(pci.GetBattLvl, batteryHandler(d, batt))
	}
	if smbus != nil {
		registerSMBusHandlers(d, smbus)
	}

	d.poll(sys.Step)

	return b
}

func (b *Manip) handleSetPosition(data []byte) {
	if len(data) != 1 {
		return
	}
	b.lift.SetPosition(data[0])
}

func (b *Manip) handleGetPosition(data []byte) {
	if len(data) != 0 {
		return
	}
	b.d.reply(pci.GetLiftActuatorPosition, []byte{b.lift.Position()})
}

func (b *Manip) handleSetSpeed(data []byte) {
	if len(data) != 1 {
		return
	}
	b.lift.SetSpeed(int8(data[0]))
}

func (b *Manip) handleGetLimitSwitchState(data []byte) {
	if len(data) != 0 {
		return
	}
	upper, lower := b.lift.LimitSwitchState()
	var v byte
	if upper {
		v |= 1 << 0
	}
	if lower {
		v |= 1 << 1
	}
	b.d.reply(pci.GetLimitSwitchState, []byte{v})
}

func (b *Manip) handleCalibrate(data []byte) {
	if len(data) != 0 {
		return
	}
	b.lift.Calibrate()
}

func (b *Manip) handleEmerStop(data []byte) {
	if len(data) != 0 {
		return
	}
	b.lift.EmergencyStop()
}

func (b *Manip) handleGetState(data []byte) {
	if len(data) != 0 {
		return
	}
	b.d.reply(pci.GetLiftActuatorState, []byte{byte(b.lift.State())})
}

func (b *Manip) handleSetEMChargeEnable(data []byte) {
	if len(data) != 1 {
		return
	}
	b.lift.Electromagnet().SetChargeEnable(data[0] != 0)
}

func (b *Manip) handleSetEMDischargeMode(data []byte) {
	if len(data) != 1 {
		return
	}
	mode := lift.DischargeMode(data[0])
	if mode != lift.Constructive && mode != lift.Destructive && mode != lift.Disable {
		return
	}
	b.lift.Electromagnet().SetDischargeMode(mode)
}

func (b *Manip) handleGetEMAccumVoltage(data []byte) {
	if len(data) != 0 {
		return
	}
	b.d.reply(pci.GetEMAccumVoltage, []byte{b.lift.Electromagnet().AccumulatedVoltage()})
}

func (b *Manip) handleGetRFRange(data []byte) {
	if len(data) != 0 {
		return
	}
	var reply [2]byte
	putUint16(reply[:], b.rf.Range())
	b.d.reply(pci.GetRFRange, reply[:])
}

func (b *Manip) handleGetRFAmbient(data []byte) {
	if len(data) != 0 {
		return
	}
	var reply [2]byte
	putUint16(reply[:], b.rf.Ambient())
	b.d.reply(pci.GetRFAmbient, reply[:])
}

// handleReadNFC treats its payload as the bytes to exchange with the
// already-initialized P2P peer, replying with whatever the peer sends
// back. The initiator link must have been brought up with a prior
// WRITE_NFC init sequence; spec.md leaves the exact P2P handshaking to
// the host, mirroring how firmware.cpp forwards raw payloads to
// CNFCController without interpreting them.
func (b *Manip) handleReadNFC(data []byte) {
	reply := make([]byte, maxNFCPayload)
	n := b.nfc.P2PInitiatorTxRx(data, reply)
	b.d.reply(pci.ReadNFC, reply[:n])
}

// handleWriteNFC's single reserved byte selects a control operation
// instead of an exchange, since spec.md calls out WriteNFC as
// "representative" of link-management commands the distillation
// otherwise dropped: 0x00 powers the chip down, 0x01 configures the SAM
// for P2P initiator mode, 0x02 brings up the initiator link. Any other
// value, or any payload after it, is forwarded as a raw exchange just
// like ReadNFC.
func (b *Manip) handleWriteNFC(data []byte) {
	if len(data) == 1 {
		switch data[0] {
		case 0x00:
			b.nfc.PowerDown()
			return
		case 0x01:
			b.nfc.ConfigureSAM()
			return
		case 0x02:
			b.nfc.P2PInitiatorInit()
			return
		}
	}
	reply := make([]byte, maxNFCPayload)
	n := b.nfc.P2PInitiatorTxRx(data, reply)
	b.d.reply(pci.WriteNFC, reply[:n])
}

// Run executes the board's foreground dispatch loop, including the lift
// actuator's Step poller, until ctx is cancelled.
func (b *Manip) Run(ctx context.Context) error {
	return b.d.Exec(ctx)
}
