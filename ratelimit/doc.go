// Package ratelimit implements multi-window "leaky bucket" quota tracking
// for HTTP APIs that advertise their limits through response headers.
//
// A remote API typically expresses its quota as a burst limit plus several
// "N requests per T seconds" windows, and reports consumption through
// X-RateLimit-* response headers. This package models that shape directly:
//
//   - An Interval is a named window duration (burst, second, minute, hour, day).
//   - A Window is the live state of one (group, interval) pair: how many
//     requests the server allows per interval, how many have been made, and
//     when the window resets.
//   - Limits aggregates all windows for one quota group and answers the only
//     question callers care about: "how long must I wait before the next send?"
//   - Engine is the per-client registry of groups, updated in place from
//     response headers after every dispatch.
//   - GroupMapper derives the quota group governing a URL.
//   - Throttle is a reduced single-window failsafe for endpoints that never
//     declare their quotas.
//
// # Quick Start
//
//	engine := ratelimit.NewEngine(ratelimit.DefaultAllowances())
//
//	limits := engine.Group("contacts")
//	if d := limits.Delay(); d > 0 {
//	    time.Sleep(d)
//	}
//	limits.Increment()
//	// ... dispatch, then feed the response headers back:
//	engine.UpdateFromHeaders("contacts", resp.Header)
//
// All state is in-memory and per-process; nothing is persisted.
package ratelimit
