package httpclient

import (
	"crypto/tls"
	"net"
	"net/http"
	"sync"
	"time"
)

// Agent configuration bounds. Values outside a bound are clamped by the
// getters, never rejected.
const (
	minKeepAliveMillis = 1000
	maxKeepAliveMillis = 300000

	minFreeSockets = 64
	maxFreeSockets = 1024

	minKeepAliveBuffer = 128
	maxKeepAliveBuffer = 4500

	minAgentTimeoutMillis = 5000
	maxAgentTimeoutMillis = 19000

	// Unbounded marks a socket limit as unlimited.
	Unbounded = 0
)

// Scheduling selects how the connection pool hands out idle sockets.
type Scheduling string

const (
	// SchedulingLIFO reuses the most recently idle socket (default).
	SchedulingLIFO Scheduling = "lifo"
	// SchedulingFIFO cycles sockets oldest-first.
	SchedulingFIFO Scheduling = "fifo"
)

// AgentConfig controls transport connection pooling. The zero value is
// usable; all numeric getters clamp into their documented bounds.
type AgentConfig struct {
	// KeepAlive enables connection reuse across requests.
	KeepAlive bool

	// KeepAliveMillis is how long an idle socket stays pooled,
	// clamped to [1000, 300000].
	KeepAliveMillis int

	// MaxFreeSockets limits pooled idle sockets, clamped to [64, 1024].
	// Unbounded disables the limit.
	MaxFreeSockets int

	// MaxTotalSockets limits idle plus active sockets. Unbounded or any
	// value above the effective MaxFreeSockets.
	MaxTotalSockets int

	// RejectUnauthorized enforces TLS certificate verification.
	RejectUnauthorized bool
}

// DefaultAgentConfig returns the pooling defaults used by the process-wide
// agent.
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		KeepAlive:          true,
		KeepAliveMillis:    30000,
		MaxFreeSockets:     256,
		MaxTotalSockets:    Unbounded,
		RejectUnauthorized: true,
	}
}

// KeepAliveDuration returns the clamped idle keep-alive duration.
func (c AgentConfig) KeepAliveDuration() time.Duration {
	ms := clamp(c.KeepAliveMillis, minKeepAliveMillis, maxKeepAliveMillis)
	return time.Duration(ms) * time.Millisecond
}

// FreeSocketLimit returns the clamped idle socket limit, or Unbounded.
func (c AgentConfig) FreeSocketLimit() int {
	if c.MaxFreeSockets == Unbounded {
		return Unbounded
	}
	return clamp(c.MaxFreeSockets, minFreeSockets, maxFreeSockets)
}

// TotalSocketLimit returns the total socket limit: Unbounded, or a value
// strictly above the free-socket limit.
func (c AgentConfig) TotalSocketLimit() int {
	if c.MaxTotalSockets == Unbounded {
		return Unbounded
	}
	free := c.FreeSocketLimit()
	if free != Unbounded && c.MaxTotalSockets <= free {
		return free + 1
	}
	return c.MaxTotalSockets
}

// Equal compares two configs field-wise on their clamped values. Two
// unbounded limits compare equal regardless of how they were spelled.
func (c AgentConfig) Equal(o AgentConfig) bool {
	return c.KeepAlive == o.KeepAlive &&
		c.KeepAliveDuration() == o.KeepAliveDuration() &&
		c.FreeSocketLimit() == o.FreeSocketLimit() &&
		c.TotalSocketLimit() == o.TotalSocketLimit() &&
		c.RejectUnauthorized == o.RejectUnauthorized
}

// Transport materializes an *http.Transport from the config.
func (c AgentConfig) Transport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: c.KeepAliveDuration(),
	}

	t := &http.Transport{
		DialContext:         dialer.DialContext,
		MaxIdleConns:        c.FreeSocketLimit(),
		MaxIdleConnsPerHost: c.FreeSocketLimit(),
		MaxConnsPerHost:     c.TotalSocketLimit(),
		IdleConnTimeout:     c.KeepAliveDuration(),
		DisableKeepAlives:   !c.KeepAlive,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	if !c.RejectUnauthorized {
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}
	return t
}

// ExtendedAgentConfig adds the long-transfer tuning knobs used by the
// download path.
type ExtendedAgentConfig struct {
	AgentConfig

	// KeepAliveTimeoutBufferMillis is the slack subtracted from the
	// server's idle timeout so this side closes first, clamped to
	// [128, 4500].
	KeepAliveTimeoutBufferMillis int

	// Scheduling selects socket reuse order. Default lifo.
	Scheduling Scheduling

	// TimeoutMillis bounds the response-header wait, clamped to
	// [5000, 19000].
	TimeoutMillis int
}

// DefaultExtendedAgentConfig returns the defaults used by the process-wide
// download agent.
func DefaultExtendedAgentConfig() ExtendedAgentConfig {
	return ExtendedAgentConfig{
		AgentConfig:                  DefaultAgentConfig(),
		KeepAliveTimeoutBufferMillis: 1000,
		Scheduling:                   SchedulingLIFO,
		TimeoutMillis:                15000,
	}
}

// KeepAliveTimeoutBuffer returns the clamped buffer duration.
func (c ExtendedAgentConfig) KeepAliveTimeoutBuffer() time.Duration {
	ms := clamp(c.KeepAliveTimeoutBufferMillis, minKeepAliveBuffer, maxKeepAliveBuffer)
	return time.Duration(ms) * time.Millisecond
}

// SchedulingMode returns the configured mode, defaulting to lifo.
func (c ExtendedAgentConfig) SchedulingMode() Scheduling {
	if c.Scheduling == SchedulingFIFO {
		return SchedulingFIFO
	}
	return SchedulingLIFO
}

// Timeout returns the clamped response-header timeout.
func (c ExtendedAgentConfig) Timeout() time.Duration {
	ms := clamp(c.TimeoutMillis, minAgentTimeoutMillis, maxAgentTimeoutMillis)
	return time.Duration(ms) * time.Millisecond
}

// Equal compares two extended configs on their clamped values.
func (c ExtendedAgentConfig) Equal(o ExtendedAgentConfig) bool {
	return c.AgentConfig.Equal(o.AgentConfig) &&
		c.KeepAliveTimeoutBuffer() == o.KeepAliveTimeoutBuffer() &&
		c.SchedulingMode() == o.SchedulingMode() &&
		c.Timeout() == o.Timeout()
}

// Transport materializes an *http.Transport honoring the extended knobs.
func (c ExtendedAgentConfig) Transport() *http.Transport {
	t := c.AgentConfig.Transport()
	if idle := c.KeepAliveDuration() - c.KeepAliveTimeoutBuffer(); idle > 0 {
		t.IdleConnTimeout = idle
	}
	t.ResponseHeaderTimeout = c.Timeout()
	return t
}

// Process-wide default agents, created lazily on first use and shared by
// every client that does not carry its own.
var (
	defaultAgentOnce sync.Once
	defaultAgent     *http.Transport

	defaultDownloadAgentOnce sync.Once
	defaultDownloadAgent     *http.Transport
)

// DefaultAgent returns the shared pooled transport.
func DefaultAgent() *http.Transport {
	defaultAgentOnce.Do(func() {
		defaultAgent = DefaultAgentConfig().Transport()
	})
	return defaultAgent
}

// DefaultDownloadAgent returns the shared transport tuned for streamed
// downloads.
func DefaultDownloadAgent() *http.Transport {
	defaultDownloadAgentOnce.Do(func() {
		defaultDownloadAgent = DefaultExtendedAgentConfig().Transport()
	})
	return defaultDownloadAgent
}

// fixAgent guarantees the effective transport is a real agent. A nil
// round tripper is replaced by the process-wide default (the extended
// default in download contexts), so a merge can never silently disable
// pooling. Any non-nil round tripper, including custom wrappers, is
// returned unchanged.
func fixAgent(rt http.RoundTripper, download bool) http.RoundTripper {
	if t, ok := rt.(*http.Transport); ok && t != nil {
		return t
	}
	if rt != nil {
		// A custom RoundTripper (test double, instrumented wrapper) is a
		// real agent for our purposes.
		return rt
	}
	if download {
		return DefaultDownloadAgent()
	}
	return DefaultAgent()
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
