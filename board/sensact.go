package board

import (
	"context"
	"time"

	"tribot.dev/drive"
	"tribot.dev/pci"
)

// sensActTickPeriod approximates drive.Period timer-1 compare-match ticks
// at /64 prescale and F_CPU = 8MHz: 2040 * 64 / 8e6 s ≈ 16.32ms, ≈61.3 Hz.
const sensActTickPeriod = 2040 * 64 * time.Second / 8_000_000

// SensAct is the sensor/actuator board: differential-drive PID control,
// the onboard accelerometer, the shared uptime/battery telemetry
// commands, and SMBus passthrough to its local I2C segment.
type SensAct struct {
	d     *Dispatcher
	drive *drive.System
}

// NewSensAct builds the sensor/actuator board's dispatcher, wiring the
// drive subsystem's commands, shared telemetry, and (if smbus is
// non-nil) register passthrough.
func NewSensAct(src pci.Source, sink pci.Sink, sys *drive.System, batt BatteryReader, smbus SMBusDevice) *SensAct {
	d := newDispatcher("sensact", src, sink)
	b := &SensAct{d: d, drive: sys}

	d.handle(pci.SetDDSEnable, b.handleSetDDSEnable)
	d.handle(pci.SetDDSSpeed, b.handleSetDDSSpeed)
	d.handle(pci.GetDDSSpeed, b.handleGetDDSSpeed)
	d.handle(pci.SetDDSParams, b.handleSetDDSParams)
	d.handle(pci.GetDDSParams, b.handleGetDDSParams)
	d.handle(pci.GetAccelReading, b.handleGetAccelReading)
	d.handle(pci.GetUptime, uptimeHandler(d))
	if batt != nil {
		d.handle(pci.GetBattLvl, batteryHandler(d, batt))
	}
	if smbus != nil {
		registerSMBusHandlers(d, smbus)
	}

	return b
}

func (b *SensAct) handleSetDDSEnable(data []byte) {
	if len(data) != 1 {
		return
	}
	if data[0] != 0 {
		b.drive.Enable()
	} else {
		b.drive.Disable()
	}
}

func (b *SensAct) handleSetDDSSpeed(data []byte) {
	if len(data) != 4 {
		return
	}
	left := getInt16(data[0:2])
	right := getInt16(data[2:4])
	b.drive.SetTargetVelocity(left, right)
}

func (b *SensAct) handleGetDDSSpeed(data []byte) {
	if len(data) != 0 {
		return
	}
	left, right := b.drive.GetVelocity()
	var reply [4]byte
	putInt16(reply[0:2], left)
	putInt16(reply[2:4], right)
	b.d.reply(pci.GetDDSSpeed, reply[:])
}

func (b *SensAct) handleSetDDSParams(data []byte) {
	if len(data) != 12 {
		return
	}
	g := drive.Gains{
		Kp: getFloat32(data[0:4]),
		Ki: getFloat32(data[4:8]),
		Kd: getFloat32(data[8:12]),
	}
	b.drive.SetPIDParams(g)
}

func (b *SensAct) handleGetDDSParams(data []byte) {
	if len(data) != 0 {
		return
	}
	g := b.drive.PIDParams()
	var reply [12]byte
	putFloat32(reply[0:4], g.Kp)
	putFloat32(reply[4:8], g.Ki)
	putFloat32(reply[8:12], g.Kd)
	b.d.reply(pci.GetDDSParams, reply[:])
}

func (b *SensAct) handleGetAccelReading(data []byte) {
	if len(data) != 0 {
		return
	}
	r := b.drive.AccelReading()
	var reply [8]byte
	putInt16(reply[0:2], r.X)
	putInt16(reply[2:4], r.Y)
	putInt16(reply[4:6], r.Z)
	putInt16(reply[6:8], r.Temp)
	b.d.reply(pci.GetAccelReading, reply[:])
}

// Run executes the board's foreground dispatch loop and its independent
// ~61.3 Hz PID control tick concurrently until ctx is cancelled. The tick
// runs on its own ticker rather than as a Dispatcher poller since it is a
// genuine timer-interrupt-equivalent rate, distinct from the foreground
// loop's pollInterval.
func (b *SensAct) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- b.d.Exec(ctx) }()

	ticker := time.NewTicker(sensActTickPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			<-errCh
			return ctx.Err()
		case err := <-errCh:
			return err
		case <-ticker.C:
			b.drive.Tick()
		}
	}
}
