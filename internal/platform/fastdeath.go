package platform

import (
	"time"
)

// FastDeathPolicy bounds how quickly a restored generation may end before it
// counts as a strike.
type FastDeathPolicy struct {
	Threshold time.Duration
	Strikes   int
}

func DefaultFastDeathPolicy() FastDeathPolicy {
	return FastDeathPolicy{Threshold: time.Second, Strikes: 3}
}

type FastDeathDecision struct {
	Elapsed time.Duration
	Fast    bool
	Strikes int
	Reset   bool
}

// FastDeathDetector counts consecutive generations that started within the
// threshold of the previous start while a restored snapshot was in use.
type FastDeathDetector struct {
	policy    FastDeathPolicy
	clock     func() time.Time
	lastStart time.Time
	strikes   int
}

func NewFastDeathDetector(policy FastDeathPolicy, clock func() time.Time) *FastDeathDetector {
	if policy.Threshold <= 0 {
		policy.Threshold = DefaultFastDeathPolicy().Threshold
	}
	if policy.Strikes <= 0 {
		policy.Strikes = DefaultFastDeathPolicy().Strikes
	}
	if clock == nil {
		clock = time.Now
	}
	return &FastDeathDetector{policy: policy, clock: clock}
}

// Observe runs once at the start of every generation. When the returned
// decision has Reset set the strike counter is already back at zero; the
// caller owns discarding durable and in-memory state.
func (d *FastDeathDetector) Observe(hasSnapshot bool) FastDeathDecision {
	now := d.clock()
	if !hasSnapshot {
		d.strikes = 0
		d.lastStart = now
		return FastDeathDecision{}
	}

	var decision FastDeathDecision
	if !d.lastStart.IsZero() {
		decision.Elapsed = now.Sub(d.lastStart)
		decision.Fast = decision.Elapsed < d.policy.Threshold
	}
	if decision.Fast {
		d.strikes++
	} else {
		d.strikes = 0
	}
	d.lastStart = now

	decision.Strikes = d.strikes
	if d.strikes >= d.policy.Strikes {
		decision.Reset = true
		d.strikes = 0
	}
	return decision
}

func (d *FastDeathDetector) Strikes() int {
	return d.strikes
}

func (d *FastDeathDetector) Policy() FastDeathPolicy {
	return d.policy
}
