// Package httpclient provides a rate-limit-aware HTTP client for
// third-party APIs that express their quotas as multi-window leaky
// buckets and advertise remaining budget through response headers.
//
// Callers issue ordinary request operations; the client transparently
// schedules, delays, queues, retries and follows redirects so that the
// server's advertised quotas are never exceeded and transient failures
// are absorbed without caller involvement.
//
// # Quick Start
//
//	client := httpclient.NewRateLimited(
//	    httpclient.WithServiceName("crm-sync"),
//	)
//
//	env, err := client.Get(ctx, "https://api.example.com/api/contacts/123", nil)
//	if err != nil {
//	    return err
//	}
//	if env.IsOK() {
//	    var contact Contact
//	    _ = env.JSON(&contact)
//	}
//
// # Layers
//
// The package is built from independently usable layers:
//
//   - Config / APIConfig: clamped, mergeable request configuration.
//   - Delegate: the pluggable transport contract. FetchDelegate is the
//     default implementation wrapping net/http with the retry / redirect
//     state machine; delegates are selected per (verb, content type).
//   - Envelope: the normalized response every delegate returns, with
//     cached body accessors and classification predicates.
//   - Client: the facade. Verb operations, download (streaming to file),
//     upload (multipart), plus a token-bucket failsafe and simple
//     throttle for endpoints with no quota group.
//   - RateLimitedClient: the orchestrator. Maps each URL to a quota
//     group (package ratelimit), waits out the advertised budget or
//     queues the request on a bounded priority queue, and feeds response
//     headers back into the quota engine after every dispatch.
//
// # Error Model
//
// Methods return (*Envelope, error). The error return carries only
// infrastructure failures (DNS, TLS, cancellation, exhausted queues);
// classified HTTP failures ride inside the envelope and are also
// available as a typed *Error via Envelope.Err.
package httpclient
