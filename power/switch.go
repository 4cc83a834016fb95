package power

import "time"

// HardPowerDownHold is the press duration past which the power switch
// triggers a hard power-down rather than a soft-shutdown request.
const HardPowerDownHold = 750 * time.Millisecond

// SwitchAction is what a completed (or, for hold, still-in-progress) power
// switch press should cause the caller to do.
type SwitchAction int

const (
	ActionNone SwitchAction = iota
	ActionHardPowerDown
	ActionSoftPowerDownRequest
	ActionPowerOn
)

// SwitchMonitor tracks the power button's press/release timing and
// translates it into one of the three switch actions the power board's
// main loop must take, per spec.md's switch-handling rule.
type SwitchMonitor struct {
	pressedAt time.Time
	pressed   bool
}

// HandlePress records a falling edge. If the system is already powered
// on, a press triggers nothing by itself -- the action resolves on
// release or, for a held press, when Poll observes the hold threshold
// exceeded while still pressed.
func (m *SwitchMonitor) HandlePress(now time.Time, systemPowerOn bool) SwitchAction {
	m.pressed = true
	m.pressedAt = now
	if !systemPowerOn {
		return ActionPowerOn
	}
	return ActionNone
}

// Poll should be called while the switch is held down and the system is
// powered on; it reports ActionHardPowerDown once the hold threshold has
// elapsed, and ActionNone otherwise.
func (m *SwitchMonitor) Poll(now time.Time) SwitchAction {
	if m.pressed && now.Sub(m.pressedAt) > HardPowerDownHold {
		return ActionHardPowerDown
	}
	return ActionNone
}

// HandleRelease records a rising edge and reports ActionSoftPowerDownRequest
// if the press was shorter than the hard-power-down hold threshold while
// the system was powered on; ActionNone otherwise (the hard power-down was
// already actioned by Poll, or the system was off and ActionPowerOn
// already fired on press).
func (m *SwitchMonitor) HandleRelease(now time.Time, systemPowerOn bool) SwitchAction {
	wasPressed := m.pressed
	m.pressed = false
	if !wasPressed || !systemPowerOn {
		return ActionNone
	}
	if now.Sub(m.pressedAt) > HardPowerDownHold {
		return ActionNone
	}
	return ActionSoftPowerDownRequest
}
