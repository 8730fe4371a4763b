package httpclient

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerPassesThroughHealthyTraffic(t *testing.T) {
	mock := NewMockDelegate()
	d := newBreakerDelegate(mock, DefaultBreakerConfig(), "test", zerolog.Nop())

	for i := 0; i < 10; i++ {
		env, err := d.Send(context.Background(), MethodGet, "https://x.test", DefaultConfig(), nil)
		require.NoError(t, err)
		assert.Equal(t, 200, env.Status)
	}
	assert.Equal(t, 10, mock.CallCount())
}

func TestBreakerServerErrorsStillReachCaller(t *testing.T) {
	mock := NewMockDelegate().Respond(EnvelopeFromBytes(500, nil, nil, nil))
	d := newBreakerDelegate(mock, DefaultBreakerConfig(), "test", zerolog.Nop())

	// Server errors count as failures for the breaker but the envelope
	// still reaches the caller.
	env, err := d.Send(context.Background(), MethodGet, "https://x.test", DefaultConfig(), nil)
	require.NoError(t, err)
	assert.Equal(t, 500, env.Status)
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	mock := NewMockDelegate().Respond(EnvelopeFromBytes(500, nil, nil, nil))

	var transitions []gobreaker.State
	cfg := BreakerConfig{
		ConsecutiveFailures: 3,
		Timeout:             time.Minute,
		OnStateChange: func(_ string, _, to gobreaker.State) {
			transitions = append(transitions, to)
		},
	}
	d := newBreakerDelegate(mock, cfg, "test", zerolog.Nop())

	for i := 0; i < 3; i++ {
		_, err := d.Send(context.Background(), MethodGet, "https://x.test", DefaultConfig(), nil)
		require.NoError(t, err)
	}

	// The breaker is open: the next call is shed without reaching the
	// delegate.
	_, err := d.Send(context.Background(), MethodGet, "https://x.test", DefaultConfig(), nil)
	require.Error(t, err)
	assert.Equal(t, KindRateLimitExceeded, KindOf(err))
	assert.Equal(t, 3, mock.CallCount())
	require.NotEmpty(t, transitions)
	assert.Equal(t, gobreaker.StateOpen, transitions[len(transitions)-1])
}
