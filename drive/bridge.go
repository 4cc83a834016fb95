// Package drive implements the differential-drive controller: a
// quadrature-encoder ISR equivalent, a dual-channel PID control tick, and
// signed-PWM H-bridge modulation across eight decay/direction modes.
package drive

// BridgeMode selects an H-bridge drive pattern. The four PWM modes
// modulate duty cycle at the programmed frequency; the four static modes
// disconnect PWM entirely and drive the output pins directly.
type BridgeMode int

const (
	ForwardPWMFastDecay BridgeMode = iota
	ForwardPWMSlowDecay
	ReversePWMFastDecay
	ReversePWMSlowDecay
	Coast
	Forward
	Reverse
	Brake
)

func (m BridgeMode) String() string {
	switch m {
	case ForwardPWMFastDecay:
		return "FORWARD_PWM_FD"
	case ForwardPWMSlowDecay:
		return "FORWARD_PWM_SD"
	case ReversePWMFastDecay:
		return "REVERSE_PWM_FD"
	case ReversePWMSlowDecay:
		return "REVERSE_PWM_SD"
	case Coast:
		return "COAST"
	case Forward:
		return "FORWARD"
	case Reverse:
		return "REVERSE"
	case Brake:
		return "BRAKE"
	default:
		return "UNKNOWN"
	}
}

func (m BridgeMode) isStatic() bool {
	return m == Coast || m == Forward || m == Reverse || m == Brake
}

func (m BridgeMode) isSlowDecay() bool {
	return m == ForwardPWMSlowDecay || m == ReversePWMSlowDecay
}

// Bridge is a single H-bridge output: the motor driver for one wheel.
// Configure receives a mode and a duty cycle in [0,255]; slow-decay modes
// invert the duty cycle before it reaches the PWM comparator, and static
// modes always program duty cycle zero, matching the original firmware's
// ConfigureLeftMotor/ConfigureRightMotor.
type Bridge interface {
	Configure(mode BridgeMode, dutyCycle uint8)
}

// driveBridge applies the slow-decay duty-cycle inversion before handing
// off to the underlying hardware Bridge, so callers of motor() never need
// to think about decay-mode polarity.
func driveBridge(b Bridge, mode BridgeMode, duty uint8) {
	if mode.isStatic() {
		b.Configure(mode, 0)
		return
	}
	if mode.isSlowDecay() {
		duty = 255 - duty
	}
	b.Configure(mode, duty)
}
