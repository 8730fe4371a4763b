package httpclient

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/kroma-labs/quotaclient-go/ratelimit"
)

// Envelope is the normalized response every delegate returns, whatever
// transport produced it. It preserves the wire status, gives cached body
// access, and answers the classification questions the scheduler and the
// caller ask.
//
// Body accessors are idempotent: the stream is consumed at most once and
// every later call returns the cached bytes.
type Envelope struct {
	// Status is the wire status code.
	Status int

	// StatusText is the wire status line, derived from the standard
	// status table when the wire carried none.
	StatusText string

	// Header holds the response headers (case-insensitive access).
	Header http.Header

	// Config is the frozen effective config the request ran under.
	Config *Config

	// Request references the dispatched wire request, when one exists.
	// The envelope holds the reference; requests never point back.
	Request *http.Request

	// URL is the final request URL after redirects.
	URL string

	// Err carries the classified failure for non-ok envelopes.
	Err *Error

	// Retries is how many retry attempts the dispatch consumed.
	Retries int

	// body is the live stream, consumed at most once.
	body io.ReadCloser

	mu       sync.Mutex
	raw      []byte
	bodyRead bool
	readErr  error
}

// NewEnvelope normalizes a wire response. The response body is not read;
// call Raw, Text or JSON to consume it.
func NewEnvelope(resp *http.Response, cfg *Config) *Envelope {
	e := &Envelope{
		Config: cfg,
		Header: make(http.Header),
	}
	if resp != nil {
		e.Status = resp.StatusCode
		e.StatusText = statusText(resp.StatusCode, strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)+" "))
		e.Header = resp.Header
		e.Request = resp.Request
		e.body = resp.Body
		if resp.Request != nil && resp.Request.URL != nil {
			e.URL = resp.Request.URL.String()
		}
	}
	e.classify()
	return e
}

// EnvelopeFromError normalizes an infrastructure failure into an error
// envelope so callers always receive a uniform shape.
func EnvelopeFromError(err error, url string, cfg *Config) *Envelope {
	e := &Envelope{
		Config: cfg,
		Header: make(http.Header),
		URL:    url,
	}
	if typed, ok := err.(*Error); ok {
		e.Err = typed
		e.Status = typed.Status
	} else {
		e.Err = newError(KindTransport, 0, url, err)
	}
	if e.StatusText == "" && e.Status != 0 {
		e.StatusText = statusText(e.Status, "")
	}
	return e
}

// EnvelopeFromBytes builds an envelope from already-materialized parts,
// used by delegates that do not wrap net/http.
func EnvelopeFromBytes(status int, header http.Header, body []byte, cfg *Config) *Envelope {
	if header == nil {
		header = make(http.Header)
	}
	e := &Envelope{
		Status:     status,
		StatusText: statusText(status, ""),
		Header:     header,
		Config:     cfg,
		raw:        body,
		bodyRead:   true,
	}
	e.classify()
	return e
}

// classify attaches the taxonomy error matching the status, when any.
func (e *Envelope) classify() {
	switch {
	case e.Status == 0 || e.IsOK() || e.IsRedirect() || e.IsUseCached():
	case e.IsExceedsRateLimit():
		e.Err = newError(KindRateLimitExceeded, e.Status, e.URL, ErrRateLimited)
	case e.Status >= 500:
		e.Err = newError(KindServerError, e.Status, e.URL, nil)
	case e.Status >= 400:
		e.Err = newError(KindClientError, e.Status, e.URL, nil)
	}
}

// Raw returns the response body bytes, consuming the stream on first call
// and serving the cache afterwards. The stream is limited by the config's
// content-length cap.
func (e *Envelope) Raw() ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.bodyRead {
		return e.raw, e.readErr
	}
	e.bodyRead = true

	if e.body == nil {
		return nil, nil
	}
	defer e.body.Close()

	var r io.Reader = e.body
	if e.Config != nil {
		r = io.LimitReader(r, e.Config.ContentLengthLimit())
	}
	e.raw, e.readErr = io.ReadAll(r)
	return e.raw, e.readErr
}

// Text returns the body as a string.
func (e *Envelope) Text() (string, error) {
	b, err := e.Raw()
	return string(b), err
}

// JSON decodes the body into v.
func (e *Envelope) JSON(v any) error {
	b, err := e.Raw()
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// Stream hands the caller the live body for streamed consumption. After
// Stream the cached accessors report an empty body; the caller owns the
// stream and must close it.
func (e *Envelope) Stream() io.ReadCloser {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.bodyRead || e.body == nil {
		return nil
	}
	e.bodyRead = true
	body := e.body
	e.body = nil
	return body
}

// IsOK reports membership in the ok class {200, 201, 202, 204}.
func (e *Envelope) IsOK() bool { return IsOKStatus(e.Status) }

// IsRedirect reports a 3xx status carrying a Location header.
func (e *Envelope) IsRedirect() bool {
	return IsRedirectStatus(e.Status) && e.Header.Get("Location") != ""
}

// IsUseCached reports a 304 Not Modified.
func (e *Envelope) IsUseCached() bool { return IsUseCachedStatus(e.Status) }

// IsClientError reports membership in the recognized 4xx class.
func (e *Envelope) IsClientError() bool { return IsClientErrorStatus(e.Status) }

// IsExceedsRateLimit reports a 425 or 429.
func (e *Envelope) IsExceedsRateLimit() bool { return IsRateLimitStatus(e.Status) }

// IsError reports whether the envelope carries a classified failure.
func (e *Envelope) IsError() bool { return e.Err != nil }

// RedirectURL returns the Location header when the envelope is a
// redirect, else the empty string.
func (e *Envelope) RedirectURL() string {
	if !e.IsRedirect() {
		return ""
	}
	return e.Header.Get("Location")
}

// RetryAfter parses the Retry-After header, accepting both the
// delta-seconds and the HTTP-date form. Zero when absent or unparseable.
func (e *Envelope) RetryAfter() time.Duration {
	raw := e.Header.Get("Retry-After")
	if raw == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(raw); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// RateLimitGroup returns the X-RateLimit-Group header value.
func (e *Envelope) RateLimitGroup() string {
	return e.Header.Get(ratelimit.HeaderGroup)
}

// RateLimitLimit returns the raw X-RateLimit-Limit header string.
func (e *Envelope) RateLimitLimit() string {
	return e.Header.Get(ratelimit.HeaderLimit)
}

// RateLimitRemaining parses X-RateLimit-Remaining, -1 when absent.
func (e *Envelope) RateLimitRemaining() int {
	raw := e.Header.Get(ratelimit.HeaderRemaining)
	if raw == "" {
		return -1
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return -1
	}
	return n
}

// RateLimitReset parses the advisory X-RateLimit-Reset hint in seconds,
// zero when absent.
func (e *Envelope) RateLimitReset() time.Duration {
	raw := e.Header.Get(ratelimit.HeaderReset)
	if raw == "" {
		return 0
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
