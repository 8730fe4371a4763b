package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// FetchDelegate is the default transport delegate. It wraps net/http and
// implements the dispatch state machine:
//
//	PREPARE → DISPATCH
//	DISPATCH → OK        (2xx)                      return
//	         → REDIRECT  (3xx with Location)        re-dispatch, count++
//	         → RETRY     (retry-eligible status)    sleep, re-dispatch
//	         → FAIL      (otherwise or limit hit)   return error envelope
//
// Each retry sleeps for the larger of the response's Retry-After and the
// status's default retry delay. Infrastructure failures (DNS, TLS,
// cancellation) are never retried and are returned as errors.
type FetchDelegate struct {
	logger zerolog.Logger
}

// NewFetchDelegate creates the default delegate. The logger may be a
// zerolog.Nop().
func NewFetchDelegate(logger zerolog.Logger) *FetchDelegate {
	return &FetchDelegate{logger: logger}
}

var _ Delegate = (*FetchDelegate)(nil)

// statusRetryError signals the retry loop that a retry-eligible status
// came back. It carries the envelope so exhaustion can surface it.
type statusRetryError struct {
	env *Envelope
}

func (e *statusRetryError) Error() string {
	return fmt.Sprintf("retry-eligible status %d", e.env.Status)
}

// Ensure the status-driven strategy satisfies the backoff interface.
var _ backoff.BackOff = (*statusBackOff)(nil)

// statusBackOff feeds the retry loop the delay derived from the last
// retry-eligible response: max(Retry-After, default delay for status).
type statusBackOff struct {
	delay time.Duration
}

func (b *statusBackOff) NextBackOff() time.Duration {
	if b.delay <= 0 {
		return time.Second
	}
	return b.delay
}

func (b *statusBackOff) Reset() {}

// Send implements Delegate.
func (d *FetchDelegate) Send(ctx context.Context, method Method, rawURL string, cfg *Config, body any) (*Envelope, error) {
	if cfg == nil || cfg.Transport == nil {
		cfg = Resolve(cfg)
	}
	if !method.Valid() {
		return nil, newError(KindConfig, 0, rawURL, fmt.Errorf("unrecognized verb %q", string(method)))
	}

	data, impliedCT, err := resolveBody(body, cfg)
	if err != nil {
		return nil, err
	}

	target, err := resolveURL(cfg, rawURL)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout())
	defer cancel()

	bo := &statusBackOff{}
	attempts := 0

	op := func() (*Envelope, error) {
		env, dispatchErr := d.dispatch(ctx, method, target, cfg, data, impliedCT)
		if dispatchErr != nil {
			return nil, backoff.Permanent(dispatchErr)
		}
		if IsRetryEligibleStatus(env.Status) {
			bo.delay = maxDuration(env.RetryAfter(), retryDelayFor(env.Status))
			env.discardBody()
			return nil, &statusRetryError{env: env}
		}
		return env, nil
	}

	env, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(cfg.RetryLimit())+1),
		backoff.WithNotify(func(err error, next time.Duration) {
			attempts++
			d.logger.Debug().
				Str("method", method.String()).
				Str("url", target).
				Int("attempt", attempts).
				Dur("sleep", next).
				Msg("retrying request")
		}),
	)
	if err != nil {
		var sre *statusRetryError
		if errors.As(err, &sre) {
			sre.env.Retries = attempts
			sre.env.Err = newError(KindRetryExhausted, sre.env.Status, target, ErrRetryExhausted)
			return sre.env, nil
		}
		return nil, classifyInfra(err, target)
	}

	env.Retries = attempts
	return env, nil
}

// dispatch issues one logical request, following redirects up to the
// configured limit.
func (d *FetchDelegate) dispatch(ctx context.Context, method Method, target string, cfg *Config, data []byte, impliedCT string) (*Envelope, error) {
	client := &http.Client{
		Transport: cfg.Transport,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	current := target
	redirects := 0
	for {
		req, err := http.NewRequestWithContext(ctx, method.String(), current, bodyReader(data))
		if err != nil {
			return nil, newError(KindConfig, 0, current, err)
		}
		d.applyHeaders(req, cfg, impliedCT, data)

		resp, err := client.Do(req)
		if err != nil {
			return nil, classifyInfra(err, current)
		}

		env := NewEnvelope(resp, cfg)
		env.URL = current

		if !env.IsRedirect() {
			return env, nil
		}

		if redirects >= cfg.RedirectLimit() {
			env.discardBody()
			env.Err = newError(KindTooManyRedirects, env.Status, current, ErrTooManyRedirects)
			return env, nil
		}

		next, err := resolveRedirect(current, env.RedirectURL())
		if err != nil {
			env.discardBody()
			env.Err = newError(KindConfig, env.Status, current, err)
			return env, nil
		}

		env.discardBody()
		redirects++
		d.logger.Debug().
			Str("from", current).
			Str("to", next).
			Int("redirects", redirects).
			Msg("following redirect")
		current = next
	}
}

// applyHeaders sets the configured and derived headers on a wire request.
func (d *FetchDelegate) applyHeaders(req *http.Request, cfg *Config, impliedCT string, data []byte) {
	for k, vs := range cfg.Headers {
		req.Header[k] = append([]string(nil), vs...)
	}
	if cfg.Accept != "" {
		req.Header.Set("Accept", cfg.Accept)
	}
	if ct := cfg.ContentType; ct != "" {
		req.Header.Set("Content-Type", ct)
	} else if impliedCT != "" && len(data) > 0 {
		req.Header.Set("Content-Type", impliedCT)
	}
	if !cfg.Decompress {
		req.Header.Set("Accept-Encoding", "identity")
	}
	if req.Header.Get("X-Request-Id") == "" {
		req.Header.Set("X-Request-Id", uuid.NewString())
	}
}

// resolveRedirect resolves a Location value against the current URL.
func resolveRedirect(current, location string) (string, error) {
	cur, err := url.Parse(current)
	if err != nil {
		return "", err
	}
	loc, err := url.Parse(location)
	if err != nil {
		return "", err
	}
	return cur.ResolveReference(loc).String(), nil
}

// classifyInfra maps an infrastructure failure onto the error taxonomy.
func classifyInfra(err error, url string) *Error {
	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return newError(KindTimeout, 0, url, err)
	case errors.Is(err, context.Canceled):
		return newError(KindCancelled, 0, url, ErrCancelled)
	default:
		return newError(KindTransport, 0, url, err)
	}
}

// discardBody drains and closes the live stream so the connection can be
// reused, leaving the cached accessors empty.
func (e *Envelope) discardBody() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.bodyRead || e.body == nil {
		e.bodyRead = true
		return
	}
	e.bodyRead = true
	io.Copy(io.Discard, e.body) //nolint:errcheck
	e.body.Close()
	e.body = nil
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}
