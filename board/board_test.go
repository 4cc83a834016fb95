package board

import (
	"context"
	"testing"
	"time"

	"tribot.dev/drive"
	"tribot.dev/internal/simio"
	"tribot.dev/lift"
	"tribot.dev/pci"
	"tribot.dev/power"
)

type fakeBridge struct {
	mode drive.BridgeMode
	duty uint8
}

func (b *fakeBridge) Configure(mode drive.BridgeMode, duty uint8) { b.mode, b.duty = mode, duty }

type fakeAccel struct{ r drive.AccelReading }

func (a fakeAccel) Reading() drive.AccelReading { return a.r }

type fakeBatt struct{ mv uint16 }

func (f fakeBatt) MilliVolts() uint16 { return f.mv }

type fakePin struct{ state bool }

func (p *fakePin) Read() bool { return p.state }

type fakeSMBus struct {
	byteData map[[2]uint8]byte
	writes   []string
}

func newFakeSMBus() *fakeSMBus { return &fakeSMBus{byteData: map[[2]uint8]byte{}} }

func (f *fakeSMBus) ReadByte(addr uint8) (byte, error) { return 0, nil }
func (f *fakeSMBus) WriteByte(addr uint8, data byte) error { return nil }
func (f *fakeSMBus) ReadByteData(addr, reg uint8) (byte, error) {
	return f.byteData[[2]uint8{addr, reg}], nil
}
func (f *fakeSMBus) WriteByteData(addr, reg, data uint8) error {
	f.byteData[[2]uint8{addr, reg}] = data
	return nil
}
func (f *fakeSMBus) ReadWordData(addr, reg uint8) (uint16, error) { return 0, nil }
func (f *fakeSMBus) WriteWordData(addr, reg uint8, data uint16) error { return nil }
func (f *fakeSMBus) ReadBlockData(addr, reg uint8, maxLen int) ([]byte, error) {
	return nil, nil
}
func (f *fakeSMBus) WriteBlockData(addr, reg uint8, data []byte) error { return nil }
func (f *fakeSMBus) ReadI2CBlockData(addr, reg uint8, n int) ([]byte, error) {
	return make([]byte, n), nil
}
func (f *fakeSMBus) WriteI2CBlockData(addr, reg uint8, data []byte) error { return nil }

// runExec runs exec in the background and cancels it once the test
// function returns, waiting for the goroutine to actually exit so
// later assertions don't race the dispatch loop.
func runExec(t *testing.T, exec func(context.Context) error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		exec(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func sendFrame(end *simio.End, typ pci.Type, data []byte) {
	sender := pci.NewSender(end)
	sender.Send(typ, data)
}

func recvFrame(t *testing.T, end *simio.End, timeout time.Duration) pci.Packet {
	t.Helper()
	parser := pci.NewParser(end)
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		parser.ProcessInput()
		if parser.GetState() == pci.RecvCommand {
			return parser.GetPacket()
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for reply")
	return pci.Packet{}
}

func TestSensActDDSSpeedRoundTrip(t *testing.T) {
	link := simio.NewLink()
	host := link.HostEnd()

	encoder := drive.NewEncoder()
	left := &fakeBridge{}
	right := &fakeBridge{}
	sys := drive.New(encoder, left, right, func(bool) {}, fakeAccel{})

	b := NewSensAct(link.BoardEnd(), link.BoardEnd(), sys, fakeBatt{mv: 7400}, nil)
	runExec(t, b.Run)

	sys.SetTargetVelocity(12, -7)
	sendFrame(host, pci.GetDDSSpeed, nil)
	pkt := recvFrame(t, host, time.Second)
	if pkt.Type != pci.GetDDSSpeed {
		t.Fatalf("got type %v, want GetDDSSpeed", pkt.Type)
	}
	left16 := getInt16(pkt.Data[0:2])
	right16 := getInt16(pkt.Data[2:4])
	if left16 != 0 || right16 != 0 {
		// Velocity reports the prior tick's observed steps, not the
		// target; with no ticks run yet it should read zero.
		t.Fatalf("got left=%d right=%d, want 0,0 before any PID tick", left16, right16)
	}
}

func TestSensActBatteryAndSMBus(t *testing.T) {
	link := simio.NewLink()
	host := link.HostEnd()

	encoder := drive.NewEncoder()
	sys := drive.New(encoder, &fakeBridge{}, &fakeBridge{}, func(bool) {}, fakeAccel{})
	sm := newFakeSMBus()
	sm.byteData[[2]uint8{0x50, 0x02}] = 0x7B

	b := NewSensAct(link.BoardEnd(), link.BoardEnd(), sys, fakeBatt{mv: 8200}, sm)
	runExec(t, b.Run)

	sendFrame(host, pci.GetBattLvl, nil)
	pkt := recvFrame(t, host, time.Second)
	if mv := getUint16(pkt.Data); mv != 8200 {
		t.Fatalf("got %d mV, want 8200", mv)
	}

	sendFrame(host, pci.ReadSMBusByteData, []byte{0x50, 0x02})
	pkt = recvFrame(t, host, time.Second)
	if len(pkt.Data) != 1 || pkt.Data[0] != 0x7B {
		t.Fatalf("got %v, want [0x7B]", pkt.Data)
	}
}

func TestManipPositionRoundTrip(t *testing.T) {
	link := simio.NewLink()
	host := link.HostEnd()

	upper := &fakePin{}
	lower := &fakePin{}
	limits := lift.NewLimitSwitches(upper, lower)
	counter := lift.NewStepCounter()
	wave := lift.NewSoftwareWaveform()
	sys := lift.New(wave, limits, counter)
	sys.AttachElectromagnet(lift.NewElectromagnet(fakeVoltage{v: 200}, &fakePower{}, &fakeCoils{}))

	b := NewManip(link.BoardEnd(), link.BoardEnd(), sys, nil, nil, fakeBatt{mv: 7400}, nil)
	runExec(t, b.Run)

	sendFrame(host, pci.GetLiftActuatorPosition, nil)
	pkt := recvFrame(t, host, time.Second)
	if len(pkt.Data) != 1 || pkt.Data[0] != 0 {
		t.Fatalf("got %v, want [0] at rest", pkt.Data)
	}

	sendFrame(host, pci.GetEMAccumVoltage, nil)
	pkt = recvFrame(t, host, time.Second)
	if len(pkt.Data) != 1 || pkt.Data[0] != 200 {
		t.Fatalf("got %v, want [200]", pkt.Data)
	}
}

type fakeVoltage struct{ v uint8 }

func (f fakeVoltage) Sample() uint8 { return f.v }

type fakePower struct{ on bool }

func (f *fakePower) Set(enabled bool) { f.on = enabled }

type fakeCoils struct{ mode lift.DischargeMode }

func (f *fakeCoils) Drive(mode lift.DischargeMode) { f.mode = mode }

func TestPMStatusRoundTrip(t *testing.T) {
	link := simio.NewLink()
	host := link.HostEnd()

	sysPMIC := &fakePMIC{status: power.Status{DeviceState: power.DeviceCharging, Fault: power.FaultNone, BatteryState: power.BatteryOverVoltage}}
	actPMIC := &fakePMIC{status: power.Status{DeviceState: power.DeviceReady}}
	hub := &fakeHub{}
	detector := fakeDetector{t: power.ChargerSDP}
	sys := power.New(sysPMIC, actPMIC, hub, detector, newFakeLEDBank(), newFakeLEDBank(),
		fakeADC{v: 100}, fakeADC{v: 90}, &fakeRail{}, &fakeRail{}, &fakeRail{})
	sys.Update()

	sw := &fakePin{}
	b := NewPM(link.BoardEnd(), link.BoardEnd(), sys, swPin{sw}, fakeBatt{mv: 12000}, nil)
	runExec(t, b.Run)

	sendFrame(host, pci.GetPMStatus, nil)
	pkt := recvFrame(t, host, time.Second)
	if pkt.Data[0] != byte(power.DeviceCharging) {
		t.Fatalf("got device state %d, want DeviceCharging", pkt.Data[0])
	}
	if pkt.Data[8] != byte(power.BatteryOverVoltage) {
		t.Fatalf("got system battery state %d, want BatteryOverVoltage", pkt.Data[8])
	}
	if pkt.Data[9] != byte(power.BatteryNormal) {
		t.Fatalf("got actuator battery state %d, want BatteryNormal", pkt.Data[9])
	}
}

type fakePMIC struct {
	status power.Status
}

func (f *fakePMIC) ResetWatchdog()                                         {}
func (f *fakePMIC) Synchronize() power.Status                              { return f.status }
func (f *fakePMIC) SetInputLimit(src power.Source, limit power.InputLimit) {}
func (f *fakePMIC) SetChargingEnable(enable bool)                          {}
func (f *fakePMIC) SetBatteryParams(regMV, chgMA, trmMA int)               {}

type fakeHub struct{ enabled bool }

func (h *fakeHub) Enable()               { h.enabled = true }
func (h *fakeHub) Disable()              { h.enabled = false }
func (h *fakeHub) IsEnabled() bool       { return h.enabled }
func (h *fakeHub) IsSuspended() bool     { return false }
func (h *fakeHub) IsHighSpeedMode() bool { return false }

type fakeDetector struct{ t power.ChargerType }

func (d fakeDetector) Detect() power.ChargerType { return d.t }

type fakeLEDBank struct{}

func newFakeLEDBank() *fakeLEDBank                             { return &fakeLEDBank{} }
func (b *fakeLEDBank) SetMode(channel int, mode power.LEDMode) {}

type fakeADC struct{ v uint16 }

func (a fakeADC) Sample() uint16 { return a.v }

type fakeRail struct{ on bool }

func (r *fakeRail) Set(enabled bool) { r.on = enabled }
func (r *fakeRail) Get() bool        { return r.on }

type swPin struct{ p *fakePin }

func (s swPin) Pressed() bool { return s.p.state }
