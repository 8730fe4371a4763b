package httpclient

import (
	"net/http"
	"net/textproto"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Client configuration bounds. Out-of-range values are clamped by the
// getters, never rejected.
const (
	minTimeoutMillis     = 10000
	maxTimeoutMillis     = 60000
	defaultTimeoutMillis = 30000

	minContentLength = 64 * 1024
	maxContentLength = 200 * 1024 * 1024

	minRedirects     = 3
	maxRedirects     = 10
	defaultRedirects = 5

	defaultMaxRetries = 5
	maxMaxRetries     = 10

	minQueueingDelayMillis     = 100
	maxQueueingDelayMillis     = 10000
	defaultQueueingDelayMillis = 2500
)

// Config is the per-request client configuration. The zero value resolves
// to usable defaults; every numeric bound is enforced by clamping in the
// getters.
//
// Configs merge: a request-level config is merged over the client's
// defaults before each call, with non-zero fields of the newer config
// winning. Unknown options survive merges verbatim in Extra.
type Config struct {
	// AllowAbsoluteURLs permits absolute request URLs when a BaseURL is
	// configured.
	AllowAbsoluteURLs bool `yaml:"allowAbsoluteUrls"`

	// TimeoutMillis bounds the whole request, clamped to [10000, 60000].
	TimeoutMillis int `yaml:"timeoutMillis"`

	// MaxContentLength caps response bodies, clamped to [64KB, 200MB].
	MaxContentLength int64 `yaml:"maxContentLength"`

	// MaxBodyLength caps request bodies, same range as MaxContentLength.
	MaxBodyLength int64 `yaml:"maxBodyLength"`

	// MaxRedirects caps redirect chains, clamped to [3, 10].
	MaxRedirects int `yaml:"maxRedirects"`

	// MaxRetries caps automatic retries of retry-eligible statuses,
	// clamped to [1, 10]. Zero resolves to the default of 5; use
	// NoRetries to disable retries outright.
	MaxRetries int `yaml:"maxRetries"`

	// NoRetries disables status-based retries regardless of MaxRetries.
	NoRetries bool `yaml:"noRetries"`

	// Decompress enables transparent response decompression.
	Decompress bool `yaml:"decompress"`

	// Method is the verb, used when an operation does not set one.
	Method Method `yaml:"method"`

	// ContentType selects the delegate and the request body encoding.
	ContentType string `yaml:"contentType"`

	// Accept is sent as the Accept header when non-empty.
	Accept string `yaml:"accept"`

	// Headers are merged into every request, later configs winning per
	// key.
	Headers http.Header `yaml:"-"`

	// BaseURL is prepended to relative request URLs.
	BaseURL string `yaml:"baseUrl"`

	// URL is a pre-configured request target.
	URL string `yaml:"url"`

	// Body is a pre-configured request body.
	Body any `yaml:"-"`

	// Priority selects the queue a deferred request lands on.
	Priority Priority `yaml:"priority"`

	// RateLimitGroup pins the quota group, bypassing the URL mapper.
	RateLimitGroup string `yaml:"rateLimitGroup"`

	// MaxDelayBeforeQueueingMillis is the longest inline sleep before a
	// request is queued instead, clamped to [100, 10000].
	MaxDelayBeforeQueueingMillis int `yaml:"maxDelayBeforeQueueing"`

	// Agent configures connection pooling for this request.
	Agent *AgentConfig `yaml:"agent"`

	// ExtendedAgent configures the download transport.
	ExtendedAgent *ExtendedAgentConfig `yaml:"extendedAgent"`

	// Transport overrides the wire transport. Resolve guarantees the
	// effective config always holds a real agent.
	Transport http.RoundTripper `yaml:"-"`

	// Extra preserves unrecognized options across merges. A nil value
	// deletes the key; any other value overwrites it.
	Extra map[string]any `yaml:"extra"`
}

// DefaultConfig returns the client-wide defaults.
func DefaultConfig() *Config {
	return &Config{
		TimeoutMillis:                defaultTimeoutMillis,
		MaxContentLength:             maxContentLength,
		MaxBodyLength:                maxContentLength,
		MaxRedirects:                 defaultRedirects,
		MaxRetries:                   defaultMaxRetries,
		MaxDelayBeforeQueueingMillis: defaultQueueingDelayMillis,
		Decompress:                   true,
	}
}

// BulkTransferConfig returns defaults tuned for large uploads and
// downloads: the longest allowed timeout and content caps.
func BulkTransferConfig() *Config {
	cfg := DefaultConfig()
	cfg.TimeoutMillis = maxTimeoutMillis
	cfg.MaxContentLength = maxContentLength
	cfg.MaxBodyLength = maxContentLength
	return cfg
}

// LowLatencyConfig returns defaults tuned for interactive traffic: the
// shortest allowed timeout and at most one retry.
func LowLatencyConfig() *Config {
	cfg := DefaultConfig()
	cfg.TimeoutMillis = minTimeoutMillis
	cfg.MaxRetries = 1
	return cfg
}

// Timeout returns the clamped request deadline.
func (c *Config) Timeout() time.Duration {
	ms := c.TimeoutMillis
	if ms == 0 {
		ms = defaultTimeoutMillis
	}
	return time.Duration(clamp(ms, minTimeoutMillis, maxTimeoutMillis)) * time.Millisecond
}

// ContentLengthLimit returns the clamped response body cap.
func (c *Config) ContentLengthLimit() int64 {
	n := c.MaxContentLength
	if n == 0 {
		n = maxContentLength
	}
	return clampInt64(n, minContentLength, maxContentLength)
}

// BodyLengthLimit returns the clamped request body cap.
func (c *Config) BodyLengthLimit() int64 {
	n := c.MaxBodyLength
	if n == 0 {
		n = maxContentLength
	}
	return clampInt64(n, minContentLength, maxContentLength)
}

// RedirectLimit returns the clamped redirect cap.
func (c *Config) RedirectLimit() int {
	n := c.MaxRedirects
	if n == 0 {
		n = defaultRedirects
	}
	return clamp(n, minRedirects, maxRedirects)
}

// RetryLimit returns the clamped retry cap, zero when retries are
// disabled.
func (c *Config) RetryLimit() int {
	if c.NoRetries {
		return 0
	}
	n := c.MaxRetries
	if n == 0 {
		n = defaultMaxRetries
	}
	return clamp(n, 1, maxMaxRetries)
}

// QueueingDelay returns the clamped inline-sleep threshold.
func (c *Config) QueueingDelay() time.Duration {
	ms := c.MaxDelayBeforeQueueingMillis
	if ms == 0 {
		ms = defaultQueueingDelayMillis
	}
	return time.Duration(clamp(ms, minQueueingDelayMillis, maxQueueingDelayMillis)) * time.Millisecond
}

// ValidStatus reports whether a status is inside the default
// "not a transport error" band of [200, 500).
func (c *Config) ValidStatus(code int) bool {
	return code >= 200 && code < 500
}

// Clone returns a deep-enough copy: headers and the Extra map are copied,
// agent configs are copied by value, the transport is shared.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	out := *c
	if c.Headers != nil {
		out.Headers = c.Headers.Clone()
	}
	if c.Agent != nil {
		agent := *c.Agent
		out.Agent = &agent
	}
	if c.ExtendedAgent != nil {
		ext := *c.ExtendedAgent
		out.ExtendedAgent = &ext
	}
	if c.Extra != nil {
		out.Extra = make(map[string]any, len(c.Extra))
		for k, v := range c.Extra {
			out.Extra[k] = v
		}
	}
	return &out
}

// Merge combines two configs, the newer one's non-zero fields winning.
// Header keys merge individually. In Extra, a nil value deletes the key
// and any other value overwrites it. Merge is idempotent:
// Merge(Merge(a, b), b) equals Merge(a, b).
func Merge(older, newer *Config) *Config {
	if older == nil {
		return newer.Clone()
	}
	out := older.Clone()
	if newer == nil {
		return out
	}

	if newer.AllowAbsoluteURLs {
		out.AllowAbsoluteURLs = true
	}
	if newer.TimeoutMillis != 0 {
		out.TimeoutMillis = newer.TimeoutMillis
	}
	if newer.MaxContentLength != 0 {
		out.MaxContentLength = newer.MaxContentLength
	}
	if newer.MaxBodyLength != 0 {
		out.MaxBodyLength = newer.MaxBodyLength
	}
	if newer.MaxRedirects != 0 {
		out.MaxRedirects = newer.MaxRedirects
	}
	if newer.MaxRetries != 0 {
		out.MaxRetries = newer.MaxRetries
	}
	if newer.NoRetries {
		out.NoRetries = true
	}
	if newer.Decompress {
		out.Decompress = true
	}
	if newer.Method != "" {
		out.Method = newer.Method
	}
	if newer.ContentType != "" {
		out.ContentType = newer.ContentType
	}
	if newer.Accept != "" {
		out.Accept = newer.Accept
	}
	if newer.BaseURL != "" {
		out.BaseURL = newer.BaseURL
	}
	if newer.URL != "" {
		out.URL = newer.URL
	}
	if newer.Body != nil {
		out.Body = newer.Body
	}
	if newer.Priority != PriorityAuto {
		out.Priority = newer.Priority
	}
	if newer.RateLimitGroup != "" {
		out.RateLimitGroup = newer.RateLimitGroup
	}
	if newer.MaxDelayBeforeQueueingMillis != 0 {
		out.MaxDelayBeforeQueueingMillis = newer.MaxDelayBeforeQueueingMillis
	}
	if newer.Agent != nil {
		agent := *newer.Agent
		out.Agent = &agent
	}
	if newer.ExtendedAgent != nil {
		ext := *newer.ExtendedAgent
		out.ExtendedAgent = &ext
	}
	if newer.Transport != nil {
		out.Transport = newer.Transport
	}

	if len(newer.Headers) > 0 {
		if out.Headers == nil {
			out.Headers = make(http.Header, len(newer.Headers))
		}
		for k, vs := range newer.Headers {
			out.Headers[textproto.CanonicalMIMEHeaderKey(k)] = append([]string(nil), vs...)
		}
	}

	for k, v := range newer.Extra {
		if v == nil {
			delete(out.Extra, k)
			continue
		}
		if out.Extra == nil {
			out.Extra = make(map[string]any)
		}
		out.Extra[k] = v
	}

	return out
}

// Resolve produces the frozen effective config for one request: user
// settings merged over the defaults, with a guaranteed real agent. The
// result is a private copy the dispatch path may annotate freely.
func Resolve(user *Config) *Config {
	out := Merge(DefaultConfig(), user)
	out.Transport = fixAgent(resolveTransport(out), false)
	return out
}

// resolveTransport picks the transport the config implies: an explicit
// override first, then a materialized agent config.
func resolveTransport(cfg *Config) http.RoundTripper {
	if cfg.Transport != nil {
		return cfg.Transport
	}
	if cfg.ExtendedAgent != nil {
		return cfg.ExtendedAgent.Transport()
	}
	if cfg.Agent != nil {
		return cfg.Agent.Transport()
	}
	return nil
}

// ParseHeaderString parses headers given in single-string form: entries
// split on CR/LF, each entry split on the first colon. Entries whose name
// fails the header-name predicate are dropped.
func ParseHeaderString(s string) http.Header {
	h := make(http.Header)
	for _, line := range strings.FieldsFunc(s, func(r rune) bool { return r == '\r' || r == '\n' }) {
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		if !validHeaderName(name) {
			continue
		}
		h.Add(name, strings.TrimSpace(value))
	}
	return h
}

// validHeaderName reports whether s is a legal HTTP field name (RFC 9110
// token).
func validHeaderName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !strings.ContainsRune("!#$%&'*+-.^_`|~", r) &&
			!('0' <= r && r <= '9') &&
			!('a' <= r && r <= 'z') &&
			!('A' <= r && r <= 'Z') {
			return false
		}
	}
	return true
}

// yamlConfig mirrors Config for file loading, with headers as a plain map.
type yamlConfig struct {
	Config  `yaml:",inline"`
	Headers map[string]string `yaml:"headers"`
}

// LoadConfig reads a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseConfigYAML(data)
}

// ParseConfigYAML parses a YAML document into a Config.
func ParseConfigYAML(data []byte) (*Config, error) {
	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return nil, newError(KindConfig, 0, "", err)
	}
	cfg := yc.Config
	if len(yc.Headers) > 0 {
		cfg.Headers = make(http.Header, len(yc.Headers))
		for k, v := range yc.Headers {
			if validHeaderName(k) {
				cfg.Headers.Set(k, v)
			}
		}
	}
	return &cfg, nil
}

// RecognizedOptions enumerates every option key the resolver understands,
// in the spelling used by YAML configs and Extra maps.
func RecognizedOptions() []string {
	return []string{
		"keepAlive", "keepAliveMillis", "maxFreeSockets", "maxTotalSockets",
		"rejectUnauthorized", "agentKeepAliveTimeoutBuffer", "scheduling",
		"timeout", "allowAbsoluteUrls", "timeoutMillis", "maxContentLength",
		"maxBodyLength", "maxRedirects", "decompress", "method",
		"contentType", "accept", "headers", "baseUrl", "url", "body",
		"apiKey", "accessToken", "personalAccessToken", "clientId",
		"clientSecret", "orgId", "userId", "accessTokenUrl", "priority",
		"abortController", "signal", "requestGroupMapper",
		"maxDelayBeforeQueueing", "maxRetries",
	}
}

func clampInt64(n, lo, hi int64) int64 {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
