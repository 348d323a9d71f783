package sweep

import "time"

const (
	DefaultWait = 24 * time.Hour
	WaitBuffer  = 5 * time.Minute
	MinWait     = 5 * time.Minute
)

// Outcome is one account's result for one sweep.
type Outcome struct {
	Index   int
	Label   string
	Egress  string
	Success bool
	Rolled  bool
	// NextEligible is zero when unknown.
	NextEligible time.Time
	Credits      float64
	Social       int
	Err          error
	Took         time.Duration
}

// Wait is the delay until the next sweep.
type Wait struct {
	Duration time.Duration
	Until    time.Time
	// Account is the label of the outcome that set the wait; empty when the
	// default was used.
	Account   string
	Defaulted bool
	// Scheduled is set when a fixed schedule chose the wait.
	Scheduled bool
}

// ComputeWait sleeps until the successful account with the latest next
// eligible time can roll again, plus WaitBuffer. With nothing to go on, or a
// result under MinWait, it falls back to DefaultWait.
func ComputeWait(outcomes []Outcome, now time.Time) Wait {
	var (
		latest Outcome
		found  bool
	)
	for _, o := range outcomes {
		if !o.Success || o.NextEligible.IsZero() {
			continue
		}
		if !found || o.NextEligible.After(latest.NextEligible) {
			latest = o
			found = true
		}
	}
	if !found {
		return defaultWait(now)
	}

	d := latest.NextEligible.Sub(now) + WaitBuffer
	if d < MinWait {
		return defaultWait(now)
	}
	return Wait{Duration: d, Until: now.Add(d), Account: latest.Label}
}

func defaultWait(now time.Time) Wait {
	return Wait{Duration: DefaultWait, Until: now.Add(DefaultWait), Defaulted: true}
}
