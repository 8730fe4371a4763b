package ratelimit

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimitsDelayBounds(t *testing.T) {
	l := NewLimits("contacts", DefaultAllowances(), 0)

	// No windows materialized yet: minimum delay.
	assert.Equal(t, minGroupDelay, l.Delay())

	// Exhaust the day window; its reset is ~24h away but the group delay
	// must stay inside the clamp band.
	day := l.Window(IntervalDay)
	day.SetAllowed(1)
	day.Increment()

	d := l.Delay()
	assert.GreaterOrEqual(t, d, minGroupDelay)
	assert.LessOrEqual(t, d, maxGroupDelay)
	assert.Equal(t, maxGroupDelay, d)
}

func TestLimitsIncrementChargesEveryWindow(t *testing.T) {
	l := NewLimits("orders", DefaultAllowances(), 0)
	l.Window(IntervalSecond)
	l.Window(IntervalMinute)

	l.Increment()

	assert.Equal(t, 1, l.Window(IntervalBurst).Made())
	assert.Equal(t, 1, l.Window(IntervalSecond).Made())
	assert.Equal(t, 1, l.Window(IntervalMinute).Made())
}

func TestLimitsUpdateIsAuthoritative(t *testing.T) {
	l := NewLimits("contacts", Allowances{Burst: 1}, 0)

	spec, ok := ParseLimitHeader("10 10;w=1,250;w=60,15000;w=3600,360000;w=86400")
	require.True(t, ok)
	l.Update(spec)

	assert.Equal(t, 10, l.Window(IntervalBurst).Allowed())
	assert.Equal(t, 10, l.Window(IntervalSecond).Allowed())
	assert.Equal(t, 250, l.Window(IntervalMinute).Allowed())
	assert.Equal(t, 15000, l.Window(IntervalHour).Allowed())
	assert.Equal(t, 360000, l.Window(IntervalDay).Allowed())
}

func TestLimitsApplyHeaders(t *testing.T) {
	tests := []struct {
		name        string
		group       string
		headers     http.Header
		wantApplied bool
		wantBurst   int
	}{
		{
			name:  "given matching group, then limits update",
			group: "contacts",
			headers: http.Header{
				"X-Ratelimit-Group": {"Contacts"},
				"X-Ratelimit-Limit": {"10 250;w=60"},
			},
			wantApplied: true,
			wantBurst:   10,
		},
		{
			name:  "given foreign group, then headers are ignored",
			group: "contacts",
			headers: http.Header{
				"X-Ratelimit-Group": {"orders"},
				"X-Ratelimit-Limit": {"99 1;w=1"},
			},
			wantApplied: false,
			wantBurst:   5,
		},
		{
			name:  "given no group header, then limits still update",
			group: "contacts",
			headers: http.Header{
				"X-Ratelimit-Limit": {"42"},
			},
			wantApplied: true,
			wantBurst:   42,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLimits(tt.group, Allowances{Burst: 5}, 0)

			applied := l.ApplyHeaders(tt.headers)

			assert.Equal(t, tt.wantApplied, applied)
			assert.Equal(t, tt.wantBurst, l.Window(IntervalBurst).Allowed())
		})
	}
}

func TestLimitsApplyHeadersAdvisoryRemaining(t *testing.T) {
	l := NewLimits("contacts", Allowances{Burst: 10}, 0)
	l.Increment()

	h := http.Header{}
	h.Set(HeaderRemaining, "3")
	require.True(t, l.ApplyHeaders(h))

	// Server says 3 of 10 remain; local bookkeeping is overridden.
	assert.Equal(t, 7, l.Window(IntervalBurst).Made())
	assert.Equal(t, 3, l.Window(IntervalBurst).Remaining())
}

func TestEngineGroupLifecycle(t *testing.T) {
	e := NewEngine(DefaultAllowances())

	a := e.Group("contacts")
	b := e.Group("contacts")
	assert.Same(t, a, b, "same group name must share state")

	assert.ElementsMatch(t, []string{"contacts"}, e.Groups())
}

func TestEngineUpdateFromHeaders(t *testing.T) {
	e := NewEngine(DefaultAllowances())

	h := http.Header{}
	h.Set(HeaderGroup, "Contacts")
	h.Set(HeaderLimit, "10 10;w=1,250;w=60,15000;w=3600,360000;w=86400")

	require.True(t, e.UpdateFromHeaders("Contacts", h))

	g := e.Group("Contacts")
	assert.Equal(t, 10, g.Window(IntervalBurst).Allowed())
	assert.Equal(t, 250, g.Window(IntervalMinute).Allowed())
	assert.Equal(t, 360000, g.Window(IntervalDay).Allowed())

	// Empty group names never update anything.
	assert.False(t, e.UpdateFromHeaders("", h))
}

func TestEngineDelayAfterReconfigure(t *testing.T) {
	e := NewEngine(DefaultAllowances())
	g := e.Group("contacts")

	h := http.Header{}
	h.Set(HeaderLimit, "10 10;w=1")
	require.True(t, g.ApplyHeaders(h))

	// Fresh budget across the declared windows: only the minimum delay.
	d := g.Delay()
	assert.Equal(t, minGroupDelay, d)

	for i := 0; i < 10; i++ {
		g.Increment()
	}
	assert.Greater(t, g.Delay(), minGroupDelay)
}

func TestWindowMaxDelayFromEngine(t *testing.T) {
	e := NewEngine(DefaultAllowances())
	e.SetMaxDelayBeforeQueueing(200 * time.Millisecond)

	w := e.Group("g").Window(IntervalBurst)
	assert.Equal(t, 200*time.Millisecond, w.maxDelayBeforeQueueing)
}
