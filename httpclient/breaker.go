package httpclient

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// BreakerConfig configures the optional circuit breaker wrapped around
// the default delegate. The breaker trips on repeated server errors and
// infrastructure failures, shedding load from a downstream that is
// already struggling.
type BreakerConfig struct {
	// MaxRequests is how many probes pass through a half-open breaker.
	MaxRequests uint32

	// Interval is the cyclic period for clearing counts while closed.
	Interval time.Duration

	// Timeout is how long an open breaker stays open.
	Timeout time.Duration

	// ConsecutiveFailures trips the breaker when reached. Zero disables
	// the rule.
	ConsecutiveFailures uint32

	// FailureRatio trips the breaker once the failure ratio reaches the
	// value, provided FailureThreshold requests were observed.
	FailureRatio     float64
	FailureThreshold uint32

	// OnStateChange observes breaker transitions.
	OnStateChange func(name string, from, to gobreaker.State)
}

// DefaultBreakerConfig trips after five consecutive failures and stays
// open for 30 seconds.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:         1,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 5,
	}
}

// errSyntheticFailure tells the breaker a request failed even though the
// delegate returned an envelope rather than an error. It is unwrapped
// before the envelope reaches the caller.
var errSyntheticFailure = errors.New("synthetic failure")

// breakerDelegate wraps a Delegate in a circuit breaker.
type breakerDelegate struct {
	next    Delegate
	breaker *gobreaker.CircuitBreaker[*Envelope]
	logger  zerolog.Logger
}

func newBreakerDelegate(next Delegate, cfg BreakerConfig, name string, logger zerolog.Logger) Delegate {
	if name == "" {
		name = "quota-http-client"
	}

	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if cfg.FailureThreshold > 0 && counts.Requests < cfg.FailureThreshold {
				return false
			}
			if cfg.ConsecutiveFailures > 0 && counts.ConsecutiveFailures >= cfg.ConsecutiveFailures {
				return true
			}
			if cfg.FailureRatio > 0 && counts.TotalFailures > 0 {
				ratio := float64(counts.TotalFailures) / float64(counts.Requests)
				if ratio >= cfg.FailureRatio {
					return true
				}
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
			if cfg.OnStateChange != nil {
				cfg.OnStateChange(name, from, to)
			}
		},
	}

	return &breakerDelegate{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker[*Envelope](st),
		logger:  logger,
	}
}

// Send implements Delegate.
func (d *breakerDelegate) Send(ctx context.Context, method Method, rawURL string, cfg *Config, body any) (*Envelope, error) {
	env, err := d.breaker.Execute(func() (*Envelope, error) {
		env, err := d.next.Send(ctx, method, rawURL, cfg, body)
		if err != nil {
			return nil, err
		}
		// Server errors count against the breaker even though they ride
		// inside the envelope.
		if env.Status >= 500 {
			return env, errSyntheticFailure
		}
		return env, nil
	})
	if err != nil {
		if errors.Is(err, errSyntheticFailure) && env != nil {
			return env, nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, newError(KindRateLimitExceeded, 0, rawURL, err)
		}
		return nil, err
	}
	return env, nil
}
