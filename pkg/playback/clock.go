package playback

import "time"

// Clock is the output timeline. Now returns the elapsed time on that
// timeline; it is monotonically non-decreasing. Tests substitute a manual
// implementation.
type Clock interface {
	Now() time.Duration
}

// monotonicClock measures the output timeline from its creation instant.
type monotonicClock struct {
	start time.Time
}

// NewClock returns a Clock anchored at the moment of the call.
func NewClock() Clock {
	return &monotonicClock{start: time.Now()}
}

func (c *monotonicClock) Now() time.Duration {
	return time.Since(c.start)
}
