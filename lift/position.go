package lift

// positionController implements closed-loop position control: every Step it
// compares the step counter against a target and drives the waveform at a
// half-period proportional to the remaining distance, clamped to
// [MinHalfPeriod, MaxHalfPeriod]. Half-period grows *with* distance: the
// actuator runs fastest near zero error and slowest at maximum error, the
// inverse of a typical deceleration-on-approach profile. This matches the
// original firmware's documented (if counterintuitive) behavior and is
// preserved rather than "fixed".
type positionController struct {
	sys *System

	target     int32
	halfPeriod int
	dir        Direction
}

func (p *positionController) setTarget(target int32) {
	p.target = target
}

// step recomputes the drive parameters from the current step count. It must
// be called with sys.mu held (it is only ever invoked from System.Step).
func (p *positionController) step() {
	current := int32(p.sys.counter.Position())
	errv := p.target - current

	mag := errv
	if mag < 0 {
		mag = -mag
	}
	if mag < PositionErrorThresh {
		p.sys.processEventLocked(Stop)
		return
	}

	maxPos := p.sys.maxPosition
	if maxPos <= 0 {
		maxPos = DefaultMaxPosition
	}

	hp := MinHalfPeriod + (MaxHalfPeriod-MinHalfPeriod)*int(mag)/int(maxPos)
	if hp < MinHalfPeriod {
		hp = MinHalfPeriod
	}
	if hp > MaxHalfPeriod {
		hp = MaxHalfPeriod
	}
	p.halfPeriod = hp

	if errv < 0 {
		p.dir = Reverse
	} else {
		p.dir = Forward
	}
}

func (p *positionController) get() (int, Direction) {
	return p.halfPeriod, p.dir
}
