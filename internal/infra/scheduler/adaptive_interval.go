package scheduler

import "time"

const (
	DefaultMinInterval         = 60 * time.Second
	DefaultMaxInterval         = 120 * time.Second
	DefaultEmptyCycleThreshold = 3
	DefaultGrowthFactor        = 1.5
)

// AdaptiveInterval backs polling off after sustained inactivity and snaps back to the
// minimum as soon as a cycle delivers something. It is not safe for concurrent use.
type AdaptiveInterval struct {
	min, max  time.Duration
	threshold int
	factor    float64

	current time.Duration
	empty   int
}

func NewAdaptiveInterval(minInterval, maxInterval time.Duration, threshold int) *AdaptiveInterval {
	if minInterval <= 0 {
		minInterval = DefaultMinInterval
	}
	if maxInterval < minInterval {
		maxInterval = minInterval
	}
	if threshold <= 0 {
		threshold = DefaultEmptyCycleThreshold
	}
	return &AdaptiveInterval{
		min:       minInterval,
		max:       maxInterval,
		threshold: threshold,
		factor:    DefaultGrowthFactor,
		current:   minInterval,
	}
}

func (a *AdaptiveInterval) Current() time.Duration { return a.current }

// EmptyCycles is the number of consecutive empty cycles since the last growth or activity.
func (a *AdaptiveInterval) EmptyCycles() int { return a.empty }

// Observe records the outcome of a cycle and returns the interval to wait before the next.
func (a *AdaptiveInterval) Observe(delivered int) time.Duration {
	if delivered > 0 {
		a.Reset()
		return a.current
	}
	a.empty++
	if a.empty >= a.threshold {
		next := time.Duration(float64(a.current) * a.factor)
		if next > a.max {
			next = a.max
		}
		a.current = next
		a.empty = 0
	}
	return a.current
}

// Reset clears the empty-cycle counter and returns to the minimum interval.
func (a *AdaptiveInterval) Reset() {
	a.empty = 0
	a.current = a.min
}
