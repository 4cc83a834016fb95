package lift

// DischargeMode selects how the electromagnet's coil driver discharges the
// accumulated capacitor bank into the coils: constructive reinforces the
// lift field, destructive opposes it for release, and disable parks the
// driver in its low-power sleep state.
type DischargeMode int

const (
	Constructive DischargeMode = iota
	Destructive
	Disable
)

// VoltageSource reads the electromagnet's capacitor-bank accumulated
// voltage, standing in for a direct ADC channel sample in the original
// firmware.
type VoltageSource interface {
	Sample() uint8
}

// ChargePin drives the charge-regulator enable line.
type ChargePin interface {
	Set(enabled bool)
}

// CoilDriver drives the two coil-driver control lines that select discharge
// polarity.
type CoilDriver interface {
	Drive(mode DischargeMode)
}

// Electromagnet is the manipulator's electromagnetic lift clutch: a
// capacitor bank charged through a regulator and discharged through the
// coils in either polarity, sized by an accumulated-voltage readback.
type Electromagnet struct {
	voltage VoltageSource
	charge  ChargePin
	coils   CoilDriver
}

// NewElectromagnet wires an Electromagnet to its voltage source, charge
// enable line and coil driver.
func NewElectromagnet(voltage VoltageSource, charge ChargePin, coils CoilDriver) *Electromagnet {
	e := &Electromagnet{voltage: voltage, charge: charge, coils: coils}
	e.coils.Drive(Disable)
	e.charge.Set(false)
	return e
}

// SetChargeEnable enables or disables the capacitor-bank charge regulator.
func (e *Electromagnet) SetChargeEnable(enable bool) {
	e.charge.Set(enable)
}

// SetDischargeMode selects the coil discharge polarity, or disables the
// driver entirely.
func (e *Electromagnet) SetDischargeMode(mode DischargeMode) {
	e.coils.Drive(mode)
}

// AccumulatedVoltage reports the capacitor bank's current charge level.
func (e *Electromagnet) AccumulatedVoltage() uint8 {
	return e.voltage.Sample()
}
