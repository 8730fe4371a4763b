package httpclient

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kroma-labs/quotaclient-go/ratelimit"
)

// RateLimitedClient is the quota-aware orchestrator. For each call it
// resolves the effective config, maps the URL to a quota group, asks the
// window engine how long to wait, and either dispatches after an inline
// sleep or parks the request on the priority queue. Every dispatch charges
// the group before the wire call, so concurrent callers always observe the
// spent budget, and feeds the response headers back into the engine
// afterwards.
type RateLimitedClient struct {
	*Client

	engine *ratelimit.Engine
	mapper *ratelimit.GroupMapper
	queue  *requestQueue
	flight singleflight.Group
}

// NewRateLimited creates the quota-aware client.
func NewRateLimited(opts ...Option) *RateLimitedClient {
	o := buildOptions(opts)

	mapper := o.mapper
	if mapper == nil {
		mapper = ratelimit.NewGroupMapper()
	}

	client := newClient(o)
	// Every rate-limited dispatch carries a quota group, so the simple
	// throttle (reserved for traffic without one) never applies here.
	client.throttle = nil

	return &RateLimitedClient{
		Client: client,
		engine: ratelimit.NewEngine(o.allowances),
		mapper: mapper,
		queue:  newRequestQueue(),
	}
}

// Engine exposes the quota engine, mainly for inspection in tests and
// operational tooling.
func (c *RateLimitedClient) Engine() *ratelimit.Engine {
	return c.engine
}

// QueueSize returns how many requests are parked on the priority queues.
func (c *RateLimitedClient) QueueSize() int {
	return c.queue.size()
}

// groupFor resolves the quota group for a request: an explicit config
// pin wins, else the URL mapper decides.
func (c *RateLimitedClient) groupFor(eff *Config, rawURL string) string {
	if eff.RateLimitGroup != "" {
		return eff.RateLimitGroup
	}
	return c.mapper.MapURL(rawURL)
}

// Send schedules and dispatches one request operation.
func (c *RateLimitedClient) Send(ctx context.Context, method Method, rawURL string, cfg *Config, body any) (*Envelope, error) {
	eff := Resolve(Merge(c.cfg, cfg))
	eff.Method = method

	group := c.groupFor(eff, rawURL)
	limits := c.engine.Group(group)

	delay := limits.Delay()
	c.metrics.recordThrottleDelay(ctx, delay, c.baseAttributes())

	if delay > eff.QueueingDelay() {
		return c.enqueue(ctx, method, rawURL, eff, body, group)
	}

	if err := sleepCtx(ctx, delay); err != nil {
		return nil, classifyInfra(err, rawURL)
	}
	return c.dispatch(ctx, method, rawURL, eff, body, group)
}

// enqueue parks the request and blocks on its continuation. The caller's
// context aborts both the queued wait and any later wire call.
func (c *RateLimitedClient) enqueue(ctx context.Context, method Method, rawURL string, eff *Config, body any, group string) (*Envelope, error) {
	r := newQueuedRequest(ctx, method, rawURL, eff, body)
	if err := c.queue.add(r); err != nil {
		c.logger.Warn().
			Str("url", rawURL).
			Str("group", group).
			Msg("priority queues saturated")
		return nil, err
	}

	c.metrics.addQueueDepth(ctx, 1)
	c.logger.Debug().
		Int64("id", r.id).
		Str("group", group).
		Str("priority", r.priority.String()).
		Msg("request queued")

	c.queue.process(c.dispatchQueued)

	env, err := r.wait(ctx)
	c.metrics.addQueueDepth(ctx, -1)
	return env, err
}

// dispatch charges the group, sends, and feeds the response headers back
// into the engine. The charge lands before the wire call so concurrent
// callers observe it; a background drain is always triggered afterwards.
func (c *RateLimitedClient) dispatch(ctx context.Context, method Method, rawURL string, eff *Config, body any, group string) (*Envelope, error) {
	limits := c.engine.Group(group)
	limits.Increment()
	defer c.queue.process(c.dispatchQueued)

	env, err := c.send(ctx, method, rawURL, eff, body)
	if err != nil {
		return nil, err
	}

	if limits.ApplyHeaders(env.Header) {
		c.metrics.recordQuotaUpdate(ctx, group)
		c.logger.Debug().
			Str("group", group).
			Str("limit", env.RateLimitLimit()).
			Msg("quota reconfigured from response headers")
	}
	return env, nil
}

// dispatchQueued admits one parked request. Admission order and pacing
// belong to the drain pass; the wire call itself runs concurrently so a
// slow response never stalls the queue.
func (c *RateLimitedClient) dispatchQueued(r *queuedRequest) {
	go func() {
		group := c.groupFor(r.cfg, r.url)
		limits := c.engine.Group(group)

		if err := sleepCtx(r.ctx, limits.Delay()); err != nil {
			r.complete(nil, classifyInfra(err, r.url))
			return
		}
		r.complete(c.dispatch(r.ctx, r.method, r.url, r.cfg, r.body, group))
	}()
}

// Get issues a GET through the quota scheduler.
func (c *RateLimitedClient) Get(ctx context.Context, url string, cfg *Config) (*Envelope, error) {
	return c.Send(ctx, MethodGet, url, cfg, nil)
}

// Post issues a POST through the quota scheduler.
func (c *RateLimitedClient) Post(ctx context.Context, url string, cfg *Config, body any) (*Envelope, error) {
	return c.Send(ctx, MethodPost, url, cfg, body)
}

// Put issues a PUT through the quota scheduler.
func (c *RateLimitedClient) Put(ctx context.Context, url string, cfg *Config, body any) (*Envelope, error) {
	return c.Send(ctx, MethodPut, url, cfg, body)
}

// Patch issues a PATCH through the quota scheduler.
func (c *RateLimitedClient) Patch(ctx context.Context, url string, cfg *Config, body any) (*Envelope, error) {
	return c.Send(ctx, MethodPatch, url, cfg, body)
}

// Delete issues a DELETE through the quota scheduler.
func (c *RateLimitedClient) Delete(ctx context.Context, url string, cfg *Config) (*Envelope, error) {
	return c.Send(ctx, MethodDelete, url, cfg, nil)
}

// Head issues a HEAD through the quota scheduler.
func (c *RateLimitedClient) Head(ctx context.Context, url string, cfg *Config) (*Envelope, error) {
	return c.Send(ctx, MethodHead, url, cfg, nil)
}

// Options issues an OPTIONS through the quota scheduler.
func (c *RateLimitedClient) Options(ctx context.Context, url string, cfg *Config) (*Envelope, error) {
	return c.Send(ctx, MethodOptions, url, cfg, nil)
}

// Trace issues a TRACE through the quota scheduler.
func (c *RateLimitedClient) Trace(ctx context.Context, url string, cfg *Config) (*Envelope, error) {
	return c.Send(ctx, MethodTrace, url, cfg, nil)
}

// RequestData is the data-only convenience: GET the URL and return the
// body bytes. Redirects are followed up to the config's limit, client and
// server failures raise the envelope's error, and a rate-limited response
// falls back to sleeping max(Retry-After, default delay) scaled by the
// attempt count before trying again.
//
// Identical concurrent calls are coalesced: only one hits the wire and
// all callers share its result.
func (c *RateLimitedClient) RequestData(ctx context.Context, rawURL string, cfg *Config) ([]byte, error) {
	key := coalesceKey(MethodGet.String(), rawURL, nil)
	v, err, _ := c.flight.Do(key, func() (any, error) {
		return c.requestData(ctx, rawURL, cfg)
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (c *RateLimitedClient) requestData(ctx context.Context, rawURL string, cfg *Config) ([]byte, error) {
	eff := Resolve(Merge(c.cfg, cfg))

	url := rawURL
	redirects := 0
	retries := 0
	for {
		env, err := c.Send(ctx, MethodGet, url, cfg, nil)
		if err != nil {
			return nil, err
		}

		switch {
		case env.IsOK() || env.IsUseCached():
			return env.Raw()

		case env.IsRedirect():
			redirects++
			if redirects > eff.RedirectLimit() {
				return nil, newError(KindTooManyRedirects, env.Status, url, ErrTooManyRedirects)
			}
			next, rerr := resolveRedirect(env.URL, env.RedirectURL())
			if rerr != nil {
				return nil, newError(KindConfig, env.Status, url, rerr)
			}
			url = next

		case env.IsExceedsRateLimit():
			// Fallback path for quotas the primary throttle missed.
			retries++
			if retries > eff.RetryLimit() {
				return nil, newError(KindRateLimitExceeded, env.Status, url, ErrRateLimited)
			}
			delay := maxDuration(env.RetryAfter(), retryDelayFor(env.Status)) * time.Duration(retries)
			if serr := sleepCtx(ctx, delay); serr != nil {
				return nil, classifyInfra(serr, url)
			}

		default:
			if env.Err != nil {
				return nil, env.Err
			}
			return nil, newError(KindTransport, env.Status, url, nil)
		}
	}
}
