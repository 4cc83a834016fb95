package power

// PMIC is the opaque interface to a charger/power-management IC, whether
// it arbitrates two input sources (adapter + USB, the system rail) or one
// (the actuator rail). Register maps are out of scope; callers see only
// the mirrored Status a full Synchronize pass produces.
type PMIC interface {
	ResetWatchdog()
	Synchronize() Status
	SetInputLimit(src Source, limit InputLimit)
	SetChargingEnable(enable bool)
	SetBatteryParams(regulationMV, chargeCurrentMA, terminationCurrentMA int)
}

// mirror wraps a PMIC with the last-synchronised Status, matching the
// spec's requirement that mirrored state is "never assumed fresh outside"
// of the update loop: every read between Sync calls returns the same
// snapshot.
type mirror struct {
	pmic   PMIC
	status Status
}

func newMirror(pmic PMIC) *mirror {
	return &mirror{pmic: pmic}
}

func (m *mirror) sync() {
	m.pmic.ResetWatchdog()
	m.status = m.pmic.Synchronize()
}
