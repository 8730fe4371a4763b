package ratelimit

import (
	"sync"
	"time"
)

// Throttle defaults.
const (
	DefaultThrottlePeriod = time.Minute
	DefaultThrottleMax    = 250

	// minRequestSpacing is the shortest gap the throttle allows between
	// two consecutive sends.
	minRequestSpacing = 100 * time.Millisecond
)

// Throttle is a reduced single-window rate limiter: one period, one
// maximum. It is the failsafe used for endpoints that never declare their
// quotas through headers, where the full per-interval window engine has
// nothing to work with.
type Throttle struct {
	mu sync.Mutex

	period time.Duration
	max    int

	lastExecuted  time.Time
	requestsSince int
	nextReset     time.Time

	now func() time.Time
}

// NewThrottle creates a throttle allowing max requests per period.
// Non-positive arguments fall back to the defaults (250 per minute).
func NewThrottle(period time.Duration, max int) *Throttle {
	if period <= 0 {
		period = DefaultThrottlePeriod
	}
	if max <= 0 {
		max = DefaultThrottleMax
	}
	t := &Throttle{
		period: period,
		max:    max,
		now:    time.Now,
	}
	t.nextReset = t.now().Add(period)
	return t
}

// Delay returns how long the caller should wait before the next send.
// The result is always within [10ms, period]:
//
//   - less than 100ms since the previous send: wait out the spacing gap;
//   - budget remaining: the proportional default, period divided by max;
//   - budget exhausted: the time until the period resets.
func (t *Throttle) Delay() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.resetIfDueLocked(now)

	if !t.lastExecuted.IsZero() {
		if since := now.Sub(t.lastExecuted); since < minRequestSpacing {
			return clampDuration(minRequestSpacing, MinQueueDelay, t.period)
		}
	}

	if t.requestsSince < t.max {
		return clampDuration(t.period/time.Duration(t.max), MinQueueDelay, t.period)
	}

	return clampDuration(t.nextReset.Sub(now), MinQueueDelay, t.period)
}

// Record charges one send against the throttle.
func (t *Throttle) Record() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.resetIfDueLocked(now)
	t.lastExecuted = now
	t.requestsSince++
}

// Remaining returns how many sends are left in the current period.
func (t *Throttle) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.resetIfDueLocked(t.now())
	if r := t.max - t.requestsSince; r > 0 {
		return r
	}
	return 0
}

func (t *Throttle) resetIfDueLocked(now time.Time) {
	if !now.Before(t.nextReset) {
		t.requestsSince = 0
		t.nextReset = now.Add(t.period)
	}
}
