package connpool

import "time"

// Stats is a point-in-time snapshot of pool counters.
type Stats struct {
	Active       int32
	Idle         int32
	Total        int32
	Constructing int32
	Max          int32

	AcquireCount         int64
	EmptyAcquireCount    int64
	CanceledAcquireCount int64
	AcquireDuration      time.Duration

	// Evicted counts connections closed by the idle sweep.
	Evicted int64
	// Discarded counts connections dropped because they failed validation
	// or were returned poisoned.
	Discarded          int64
	ValidationFailures int64
}

// Stats returns the current pool counters.
func (p *Pool) Stats() Stats {
	s := p.res.Stat()
	return Stats{
		Active:               s.AcquiredResources(),
		Idle:                 s.IdleResources(),
		Total:                s.TotalResources(),
		Constructing:         s.ConstructingResources(),
		Max:                  s.MaxResources(),
		AcquireCount:         s.AcquireCount(),
		EmptyAcquireCount:    s.EmptyAcquireCount(),
		CanceledAcquireCount: s.CanceledAcquireCount(),
		AcquireDuration:      s.AcquireDuration(),
		Evicted:              p.evicted.Load(),
		Discarded:            p.discarded.Load(),
		ValidationFailures:   p.validationFailures.Load(),
	}
}
