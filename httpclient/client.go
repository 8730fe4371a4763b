package httpclient

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/kroma-labs/quotaclient-go/ratelimit"
)

// Client is the public entry point. It selects a transport delegate per
// (verb, content type), forwards every request operation, and applies the
// failsafe throttles for traffic that carries no quota group. Use
// NewRateLimited for the full quota-aware orchestrator.
type Client struct {
	cfg         *Config
	table       *delegateTable
	logger      zerolog.Logger
	serviceName string

	tracer  trace.Tracer
	metrics *clientMetrics

	limiter     *rate.Limiter
	waitOnLimit bool
	throttle    *ratelimit.Throttle
}

// FailsafeConfig configures the client-level token-bucket guard applied
// before every dispatch. It is a coarse safety net underneath the window
// engine, not a replacement for it.
type FailsafeConfig struct {
	// RequestsPerSecond is the sustained admission rate.
	RequestsPerSecond float64

	// Burst allows brief spikes above the sustained rate.
	Burst int

	// WaitOnLimit selects waiting for a token over failing fast with a
	// rate-limit error.
	WaitOnLimit bool
}

// DefaultFailsafeConfig returns 100 requests per second with a burst of
// 10, waiting on the limit.
func DefaultFailsafeConfig() FailsafeConfig {
	return FailsafeConfig{RequestsPerSecond: 100, Burst: 10, WaitOnLimit: true}
}

type delegateBinding struct {
	method      Method
	contentType string
	delegate    Delegate
}

type clientOptions struct {
	cfg             *Config
	logger          zerolog.Logger
	serviceName     string
	tracerProvider  trace.TracerProvider
	meterProvider   metric.MeterProvider
	bindings        []delegateBinding
	defaultDelegate Delegate
	breaker         *BreakerConfig
	failsafe        *FailsafeConfig
	throttle        *ratelimit.Throttle
	mapper          *ratelimit.GroupMapper
	allowances      ratelimit.Allowances
}

// Option configures a Client or RateLimitedClient.
type Option func(*clientOptions)

// WithConfig sets the client-wide default config merged under every
// request's own config.
func WithConfig(cfg *Config) Option {
	return func(o *clientOptions) { o.cfg = cfg }
}

// WithLogger sets the structured logger. The default logger discards
// everything.
func WithLogger(l zerolog.Logger) Option {
	return func(o *clientOptions) { o.logger = l }
}

// WithServiceName identifies this client in spans and metrics.
func WithServiceName(name string) Option {
	return func(o *clientOptions) { o.serviceName = name }
}

// WithTracerProvider overrides the global OpenTelemetry tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *clientOptions) { o.tracerProvider = tp }
}

// WithMeterProvider overrides the global OpenTelemetry meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *clientOptions) { o.meterProvider = mp }
}

// WithDelegate routes one (verb, content type) pair to a delegate. An
// empty content type binds the verb's wildcard entry.
//
// Example - route multipart POSTs to a dedicated transport:
//
//	client := httpclient.New(
//	    httpclient.WithDelegate(httpclient.MethodPost, "multipart/form-data", uploadDelegate),
//	)
func WithDelegate(method Method, contentType string, d Delegate) Option {
	return func(o *clientOptions) {
		o.bindings = append(o.bindings, delegateBinding{method, contentType, d})
	}
}

// WithDefaultDelegate replaces the fetch-based default delegate.
func WithDefaultDelegate(d Delegate) Option {
	return func(o *clientOptions) { o.defaultDelegate = d }
}

// WithBreaker wraps the default delegate in a circuit breaker.
func WithBreaker(cfg BreakerConfig) Option {
	return func(o *clientOptions) { o.breaker = &cfg }
}

// WithFailsafeLimit enables the client-level token-bucket guard.
func WithFailsafeLimit(cfg FailsafeConfig) Option {
	return func(o *clientOptions) { o.failsafe = &cfg }
}

// WithThrottle attaches a simple throttle consulted before dispatches
// that carry no quota group information.
func WithThrottle(t *ratelimit.Throttle) Option {
	return func(o *clientOptions) { o.throttle = t }
}

// WithGroupMapper sets the URL-to-quota-group mapper used by
// NewRateLimited.
func WithGroupMapper(m *ratelimit.GroupMapper) Option {
	return func(o *clientOptions) { o.mapper = m }
}

// WithAllowances sets the default per-interval budgets groups start with
// before the server declares its own.
func WithAllowances(a ratelimit.Allowances) Option {
	return func(o *clientOptions) { o.allowances = a }
}

func buildOptions(opts []Option) *clientOptions {
	o := &clientOptions{
		logger:         zerolog.Nop(),
		tracerProvider: otel.GetTracerProvider(),
		meterProvider:  otel.GetMeterProvider(),
		allowances:     ratelimit.DefaultAllowances(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// New creates a facade client.
func New(opts ...Option) *Client {
	return newClient(buildOptions(opts))
}

func newClient(o *clientOptions) *Client {
	cfg := o.cfg
	if cfg == nil {
		cfg = DefaultConfig()
	}

	fallback := o.defaultDelegate
	if fallback == nil {
		fallback = NewFetchDelegate(o.logger)
	}
	if o.breaker != nil {
		fallback = newBreakerDelegate(fallback, *o.breaker, o.serviceName, o.logger)
	}

	table := newDelegateTable(fallback)
	for _, b := range o.bindings {
		table.register(b.method, b.contentType, b.delegate)
	}

	c := &Client{
		cfg:         cfg,
		table:       table,
		logger:      o.logger,
		serviceName: o.serviceName,
		tracer:      o.tracerProvider.Tracer(scope),
		metrics:     newClientMetrics(o.meterProvider.Meter(scope)),
		throttle:    o.throttle,
	}
	if o.failsafe != nil && o.failsafe.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(o.failsafe.RequestsPerSecond), o.failsafe.Burst)
		c.waitOnLimit = o.failsafe.WaitOnLimit
	}
	return c
}

// Do resolves the effective config and dispatches through the delegate
// selected for (method, content type).
func (c *Client) Do(ctx context.Context, method Method, rawURL string, cfg *Config, body any) (*Envelope, error) {
	eff := Resolve(Merge(c.cfg, cfg))
	eff.Method = method
	return c.send(ctx, method, rawURL, eff, body)
}

// send dispatches an already-resolved config. The rate-limited client
// enters here after its own scheduling.
func (c *Client) send(ctx context.Context, method Method, rawURL string, eff *Config, body any) (*Envelope, error) {
	start := time.Now()

	ctx, span := c.tracer.Start(ctx, "HTTP "+method.String(),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(c.baseAttributes()...),
	)
	defer span.End()

	if err := c.admitFailsafe(ctx); err != nil {
		return nil, err
	}
	if c.throttle != nil {
		if err := sleepCtx(ctx, c.throttle.Delay()); err != nil {
			return nil, classifyInfra(err, rawURL)
		}
		c.throttle.Record()
	}

	delegate := c.table.lookup(method, eff.ContentType)
	env, err := delegate.Send(ctx, method, rawURL, eff, body)

	attrs := append(c.baseAttributes(), attribute.String("http.request.method", method.String()))
	c.metrics.recordRequest(ctx, time.Since(start), attrs)
	if env != nil {
		c.metrics.recordRetries(ctx, env.Retries, attrs)
		span.SetAttributes(attribute.Int("http.response.status_code", env.Status))
	}
	if err != nil {
		span.RecordError(err)
	}
	return env, err
}

// admitFailsafe consults the token-bucket guard when one is configured.
func (c *Client) admitFailsafe(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if c.waitOnLimit {
		if err := c.limiter.Wait(ctx); err != nil {
			return classifyInfra(err, "")
		}
		return nil
	}
	if !c.limiter.Allow() {
		return newError(KindRateLimitExceeded, 0, "", ErrRateLimited)
	}
	return nil
}

func (c *Client) baseAttributes() []attribute.KeyValue {
	if c.serviceName == "" {
		return nil
	}
	return []attribute.KeyValue{attribute.String("http.client.name", c.serviceName)}
}

// Get issues a GET request.
func (c *Client) Get(ctx context.Context, url string, cfg *Config) (*Envelope, error) {
	return c.Do(ctx, MethodGet, url, cfg, nil)
}

// Post issues a POST request.
func (c *Client) Post(ctx context.Context, url string, cfg *Config, body any) (*Envelope, error) {
	return c.Do(ctx, MethodPost, url, cfg, body)
}

// Put issues a PUT request.
func (c *Client) Put(ctx context.Context, url string, cfg *Config, body any) (*Envelope, error) {
	return c.Do(ctx, MethodPut, url, cfg, body)
}

// Patch issues a PATCH request.
func (c *Client) Patch(ctx context.Context, url string, cfg *Config, body any) (*Envelope, error) {
	return c.Do(ctx, MethodPatch, url, cfg, body)
}

// Delete issues a DELETE request.
func (c *Client) Delete(ctx context.Context, url string, cfg *Config) (*Envelope, error) {
	return c.Do(ctx, MethodDelete, url, cfg, nil)
}

// Head issues a HEAD request.
func (c *Client) Head(ctx context.Context, url string, cfg *Config) (*Envelope, error) {
	return c.Do(ctx, MethodHead, url, cfg, nil)
}

// Options issues an OPTIONS request.
func (c *Client) Options(ctx context.Context, url string, cfg *Config) (*Envelope, error) {
	return c.Do(ctx, MethodOptions, url, cfg, nil)
}

// Trace issues a TRACE request.
func (c *Client) Trace(ctx context.Context, url string, cfg *Config) (*Envelope, error) {
	return c.Do(ctx, MethodTrace, url, cfg, nil)
}

// sleepCtx sleeps for d, honoring context cancellation.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
