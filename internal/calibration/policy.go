package calibration

import (
	"time"

	"eyetrack-go/internal/options"
)

type Decision int

const (
	Skip Decision = iota
	Recalibrate
)

func (d Decision) String() string {
	if d == Skip {
		return "skip"
	}
	return "recalibrate"
}

// Policy decides at head positioning whether the current calibration can be
// reused. A nil threshold disables that trigger.
type Policy struct {
	SkipIfCalibrated bool
	AfterSeconds     *float64
	AfterTrials      *int
	Now              func() time.Time
}

func NewPolicy(o options.Options) Policy {
	return Policy{
		SkipIfCalibrated: o.SkipIfCalibrated,
		AfterSeconds:     o.RecalibrateAfterNSeconds,
		AfterTrials:      o.RecalibrateAfterNTrials,
		Now:              time.Now,
	}
}

// Evaluate is the decision without side effects. The calibration is reused
// only when the tracker is calibrated and no enabled threshold is exceeded:
// more than AfterSeconds elapsed, or at least AfterTrials trials run.
func (p Policy) Evaluate(s Snapshot, now time.Time) Decision {
	if !p.SkipIfCalibrated || !s.Calibrated {
		return Recalibrate
	}
	if p.AfterSeconds != nil && now.Sub(s.LastCalibration).Seconds() > *p.AfterSeconds {
		return Recalibrate
	}
	if p.AfterTrials != nil && s.TrialsSinceCalibration >= *p.AfterTrials {
		return Recalibrate
	}
	return Skip
}

// Decide evaluates the policy and applies it: a skip counts one more trial on
// the current calibration, a recalibration invalidates it.
func (p Policy) Decide(st *State) Decision {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	d := p.Evaluate(st.Snapshot(), now())
	if d == Skip {
		st.IncrementTrials()
	} else {
		st.Invalidate()
	}
	return d
}
