package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
)

// Delegate is the pluggable transport contract: issue the request
// operation and return a normalized envelope. The error return is for
// infrastructure failures only (DNS, TLS, cancellation); classified HTTP
// failures ride inside the envelope.
type Delegate interface {
	Send(ctx context.Context, method Method, rawURL string, cfg *Config, body any) (*Envelope, error)
}

// Downloader is implemented by delegates with a native streaming
// download. The facade forwards to it instead of its own GET-and-pipe
// path.
type Downloader interface {
	Download(ctx context.Context, rawURL string, cfg *Config, outputDir, filename string) (string, error)
}

// Uploader is implemented by delegates with a native upload. The facade
// forwards to it instead of multipart POST.
type Uploader interface {
	Upload(ctx context.Context, rawURL string, cfg *Config, body any) (*Envelope, error)
}

// delegateTable routes (verb, content type) to a delegate, falling back
// to the default delegate when no entry matches. This keeps transport
// selection a table lookup, never a type inspection.
type delegateTable struct {
	byVerb   map[Method]map[string]Delegate
	fallback Delegate
}

func newDelegateTable(fallback Delegate) *delegateTable {
	return &delegateTable{
		byVerb:   make(map[Method]map[string]Delegate),
		fallback: fallback,
	}
}

// register binds a delegate for one (verb, content type) pair. An empty
// content type binds the verb's wildcard entry.
func (t *delegateTable) register(method Method, contentType string, d Delegate) {
	ct := normalizeContentType(contentType)
	if t.byVerb[method] == nil {
		t.byVerb[method] = make(map[string]Delegate)
	}
	t.byVerb[method][ct] = d
}

// lookup resolves the delegate for a verb and content type: the exact
// pair first, then the verb's wildcard, then the default.
func (t *delegateTable) lookup(method Method, contentType string) Delegate {
	if m := t.byVerb[method]; m != nil {
		if d, ok := m[normalizeContentType(contentType)]; ok {
			return d
		}
		if d, ok := m[""]; ok {
			return d
		}
	}
	return t.fallback
}

// normalizeContentType lowercases and strips media type parameters, so
// "multipart/form-data; boundary=x" matches "multipart/form-data".
func normalizeContentType(ct string) string {
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}

// resolveBody turns the caller's body value into a replayable byte slice
// plus the content type it implies (empty when the value implies none).
//
// Pass-through values: strings, byte slices, readers and form values.
// Numbers are stringified. Deferred producers (func() (any, error)) are
// evaluated first. Anything else is JSON-encoded.
func resolveBody(body any, cfg *Config) ([]byte, string, error) {
	switch v := body.(type) {
	case nil:
		return nil, "", nil
	case []byte:
		return v, "", nil
	case string:
		return []byte(v), "", nil
	case json.RawMessage:
		return v, "application/json", nil
	case url.Values:
		return []byte(v.Encode()), "application/x-www-form-urlencoded", nil
	case io.Reader:
		limited := io.LimitReader(v, cfg.BodyLengthLimit()+1)
		data, err := io.ReadAll(limited)
		if err != nil {
			return nil, "", newError(KindTransport, 0, "", err)
		}
		if int64(len(data)) > cfg.BodyLengthLimit() {
			return nil, "", newError(KindConfig, 0, "", fmt.Errorf("request body exceeds %d bytes", cfg.BodyLengthLimit()))
		}
		return data, "", nil
	case int:
		return []byte(strconv.Itoa(v)), "", nil
	case int64:
		return []byte(strconv.FormatInt(v, 10)), "", nil
	case float64:
		return []byte(strconv.FormatFloat(v, 'f', -1, 64)), "", nil
	case func() (any, error):
		inner, err := v()
		if err != nil {
			return nil, "", newError(KindConfig, 0, "", err)
		}
		return resolveBody(inner, cfg)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, "", newError(KindConfig, 0, "", err)
		}
		return data, "application/json", nil
	}
}

// resolveURL combines the configured base URL with the request target.
// Absolute targets are honored when no base is set, when the config
// allows them, or when they point at the base's host; any other absolute
// target is rejected with a config error. Relative targets are resolved
// against the base.
func resolveURL(cfg *Config, rawURL string) (string, error) {
	if rawURL == "" {
		rawURL = cfg.URL
	}
	if rawURL == "" {
		return "", newError(KindConfig, 0, "", fmt.Errorf("no request URL"))
	}

	target, err := url.Parse(rawURL)
	if err != nil {
		return "", newError(KindConfig, 0, rawURL, err)
	}

	if cfg.BaseURL == "" {
		return target.String(), nil
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return "", newError(KindConfig, 0, cfg.BaseURL, err)
	}

	if target.IsAbs() {
		if cfg.AllowAbsoluteURLs || target.Host == base.Host {
			return target.String(), nil
		}
		return "", newError(KindConfig, 0, rawURL, fmt.Errorf("absolute URLs not allowed"))
	}

	return base.ResolveReference(target).String(), nil
}

// bodyReader hands out fresh readers over a resolved body, one per
// dispatch attempt.
func bodyReader(data []byte) io.Reader {
	if data == nil {
		return nil
	}
	return bytes.NewReader(data)
}
