package drive

// AccelReading is one sample from the sensor board's three-axis
// accelerometer plus its onboard temperature sensor, in the device's
// native signed 16-bit units.
type AccelReading struct {
	X, Y, Z, Temp int16
}

// Accelerometer is the sensor board's three-axis accelerometer, exposed as
// an opaque peripheral per the out-of-scope framing for third-party chip
// register maps.
type Accelerometer interface {
	Reading() AccelReading
}

// System is the sensor/actuator board's differential-drive subsystem: a
// PID controller driving two H-bridges from quadrature-encoder feedback,
// plus the board's accelerometer.
type System struct {
	pid     *PID
	encoder *Encoder
	accel   Accelerometer

	enabled bool
	enable  func(bool)
}

// New constructs a drive System from its encoder, two motor bridges, the
// motor-driver enable line, and the accelerometer.
func New(encoder *Encoder, leftBridge, rightBridge Bridge, motorEnable func(bool), accel Accelerometer) *System {
	return &System{
		pid:     NewPID(encoder, leftBridge, rightBridge),
		encoder: encoder,
		accel:   accel,
		enable:  motorEnable,
	}
}

// Enable resets the PID loops and encoder accumulators and energizes the
// motor driver.
func (s *System) Enable() {
	s.pid.Enable()
	s.enabled = true
	s.enable(true)
}

// Disable de-energizes the motor driver. Until the next Enable, Tick and
// HandleEncoderEdge return without doing anything.
func (s *System) Disable() {
	s.enable(false)
	s.enabled = false
}

// Enabled reports whether the motor driver is currently energized.
func (s *System) Enabled() bool { return s.enabled }

// SetTargetVelocity sets per-tick step targets for both wheels.
func (s *System) SetTargetVelocity(left, right int16) {
	s.pid.SetTargetVelocity(left, right)
}

// SetPIDParams updates the PID gains.
func (s *System) SetPIDParams(g Gains) {
	s.pid.SetPIDParams(g)
}

// PIDParams returns the gains currently in effect.
func (s *System) PIDParams() Gains {
	return s.pid.GetPIDParams()
}

// GetVelocity returns the most recently observed left/right step counts.
func (s *System) GetVelocity() (left, right int16) {
	return s.pid.GetLeftVelocity(), s.pid.GetRightVelocity()
}

// Tick advances the PID control loop by one control period. board.SensAct
// invokes it at the ~61.3 Hz control-tick rate; it does nothing while the
// system is disabled.
func (s *System) Tick() {
	if !s.enabled {
		return
	}
	s.pid.Tick()
}

// HandleEncoderEdge forwards a raw four-line encoder port sample to the
// underlying Encoder while the system is enabled; while disabled the sample
// is dropped. Meant to be called from the dedicated goroutine
// servicing port-change events on the encoder lines.
func (s *System) HandleEncoderEdge(port uint8) {
	if !s.enabled {
		return
	}
	s.encoder.HandleEdge(port)
}

// AccelReading returns the most recent accelerometer sample.
func (s *System) AccelReading() AccelReading {
	return s.accel.Reading()
}
