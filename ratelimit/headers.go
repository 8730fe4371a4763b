package ratelimit

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Response header names recognized by the quota engine. Lookup through
// http.Header is case-insensitive.
const (
	// HeaderGroup names the quota group the response's limits apply to.
	HeaderGroup = "X-RateLimit-Group"
	// HeaderLimit carries the declared allowances, e.g.
	// "10 10;w=1,250;w=60,15000;w=3600,360000;w=86400".
	HeaderLimit = "X-RateLimit-Limit"
	// HeaderRemaining is the server's advisory remaining-budget count.
	HeaderRemaining = "X-RateLimit-Remaining"
	// HeaderReset is the server's advisory seconds-until-reset hint.
	HeaderReset = "X-RateLimit-Reset"
)

// LimitSpec is the parsed form of an X-RateLimit-Limit header value: a
// burst allowance plus per-window allowances keyed by interval.
type LimitSpec struct {
	// Burst is the leading integer of the header, the short-window
	// allowance. Zero when the header had no leading integer.
	Burst int

	// Windows holds the "v;w=s" pairs keyed by the interval whose
	// duration is s seconds. Unknown window lengths land on
	// IntervalBurst, overriding the leading burst value.
	Windows map[Interval]int
}

var (
	limitHeadRe = regexp.MustCompile(`^(\d+)(?:\s+|$)`)
	limitPairRe = regexp.MustCompile(`(\d+);w=(\d+)`)
)

// ParseLimitHeader parses the X-RateLimit-Limit wire form
//
//	<burst> <v1>;w=<s1>,<v2>;w=<s2>,...
//
// The leading integer is optional. Each v;w=s pair updates the window
// whose interval lasts s seconds; unrecognized window lengths resolve to
// the burst interval. Returns ok=false when the value contains neither a
// leading burst nor any pair.
func ParseLimitHeader(value string) (LimitSpec, bool) {
	value = strings.TrimSpace(value)
	spec := LimitSpec{Windows: make(map[Interval]int)}
	ok := false

	if m := limitHeadRe.FindStringSubmatch(value); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			spec.Burst = n
			ok = true
		}
	}

	for _, m := range limitPairRe.FindAllStringSubmatch(value, -1) {
		v, errV := strconv.Atoi(m[1])
		s, errS := strconv.Atoi(m[2])
		if errV != nil || errS != nil {
			continue
		}
		spec.Windows[IntervalFromWindow(s)] = v
		ok = true
	}

	return spec, ok
}

// String re-emits the spec in wire form. Windows are emitted in ascending
// duration order so the output is deterministic; for windows with a
// recognized w= length, parsing the result yields the same burst and
// (value, window) set. A Windows entry on IntervalBurst is not emitted.
func (s LimitSpec) String() string {
	var b strings.Builder
	if s.Burst > 0 {
		b.WriteString(strconv.Itoa(s.Burst))
	}

	keys := make([]Interval, 0, len(s.Windows))
	for iv := range s.Windows {
		keys = append(keys, iv)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	first := true
	for _, iv := range keys {
		if iv == IntervalBurst {
			// The burst window has no w= notation; only the head Burst
			// value is written.
			continue
		}
		if first {
			if b.Len() > 0 {
				b.WriteByte(' ')
			}
			first = false
		} else {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(s.Windows[iv]))
		b.WriteString(";w=")
		b.WriteString(strconv.Itoa(iv.WindowSeconds()))
	}

	return b.String()
}

// Allowance returns the spec's allowance for the interval: the explicit
// window value when present, the head burst for IntervalBurst otherwise.
func (s LimitSpec) Allowance(iv Interval) (int, bool) {
	if v, ok := s.Windows[iv]; ok {
		return v, true
	}
	if iv == IntervalBurst && s.Burst > 0 {
		return s.Burst, true
	}
	return 0, false
}
