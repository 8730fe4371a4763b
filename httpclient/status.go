package httpclient

import (
	"net/http"
	"time"
)

// Status code classes used for response classification. The sets are
// closed; anything outside them falls through to the coarse 4xx/5xx
// bands.
var (
	okStatuses = map[int]bool{
		http.StatusOK:        true,
		http.StatusCreated:   true,
		http.StatusAccepted:  true,
		http.StatusNoContent: true,
	}

	redirectStatuses = map[int]bool{
		http.StatusMovedPermanently:  true,
		http.StatusFound:             true,
		http.StatusSeeOther:          true,
		http.StatusTemporaryRedirect: true,
		http.StatusPermanentRedirect: true,
	}

	clientErrorStatuses = map[int]bool{
		http.StatusBadRequest:                   true,
		http.StatusNotAcceptable:                true,
		http.StatusLengthRequired:               true,
		http.StatusPreconditionFailed:           true,
		http.StatusRequestEntityTooLarge:        true,
		http.StatusRequestURITooLong:            true,
		http.StatusUnsupportedMediaType:         true,
		http.StatusRequestedRangeNotSatisfiable: true,
		http.StatusExpectationFailed:            true,
		http.StatusMisdirectedRequest:           true,
		http.StatusUnprocessableEntity:          true,
		http.StatusRequestHeaderFieldsTooLarge:  true,
	}

	rateLimitStatuses = map[int]bool{
		http.StatusTooEarly:        true, // 425
		http.StatusTooManyRequests: true, // 429
	}

	retryEligibleStatuses = map[int]bool{
		http.StatusRequestTimeout:      true, // 408
		http.StatusTooEarly:            true, // 425
		http.StatusTooManyRequests:     true, // 429
		http.StatusInternalServerError: true, // 500
		http.StatusBadGateway:          true, // 502
		http.StatusServiceUnavailable:  true, // 503
		http.StatusGatewayTimeout:      true, // 504
	}
)

// IsOKStatus reports membership in the ok class {200, 201, 202, 204}.
func IsOKStatus(code int) bool { return okStatuses[code] }

// IsRedirectStatus reports membership in the redirect class.
func IsRedirectStatus(code int) bool { return redirectStatuses[code] }

// IsUseCachedStatus reports whether the response means "use your cache".
func IsUseCachedStatus(code int) bool { return code == http.StatusNotModified }

// IsClientErrorStatus reports membership in the recognized 4xx class.
func IsClientErrorStatus(code int) bool { return clientErrorStatuses[code] }

// IsRateLimitStatus reports whether the status signals an exceeded quota.
func IsRateLimitStatus(code int) bool { return rateLimitStatuses[code] }

// IsRetryEligibleStatus reports whether the status triggers an automatic
// sleep-and-retry.
func IsRetryEligibleStatus(code int) bool { return retryEligibleStatuses[code] }

// DefaultRetryDelay is the minimum sleep before retrying a retry-eligible
// status, keyed by status code. The effective sleep is the larger of this
// and the response's Retry-After value.
var DefaultRetryDelay = map[int]time.Duration{
	http.StatusRequestTimeout:      time.Second,
	http.StatusTooEarly:            2 * time.Second,
	http.StatusTooManyRequests:     2 * time.Second,
	http.StatusInternalServerError: 3 * time.Second,
	http.StatusBadGateway:          3 * time.Second,
	http.StatusServiceUnavailable:  5 * time.Second,
	http.StatusGatewayTimeout:      5 * time.Second,
}

// retryDelayFor returns the default delay for a status, falling back to
// one second for statuses outside the table.
func retryDelayFor(code int) time.Duration {
	if d, ok := DefaultRetryDelay[code]; ok {
		return d
	}
	return time.Second
}

// statusText resolves a human-readable status line, deriving it from the
// standard status table when the wire carried none.
func statusText(code int, wire string) string {
	if wire != "" {
		return wire
	}
	if t := http.StatusText(code); t != "" {
		return t
	}
	return "Unknown Status"
}
