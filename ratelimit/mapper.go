package ratelimit

import (
	"net/url"
	"regexp"
	"strings"
)

// DefaultAPIPath is the path segment that anchors group extraction when no
// other anchor is configured: the group candidate is the segment that
// immediately follows the last (case-insensitive) occurrence of this
// segment in the URL path.
const DefaultAPIPath = "api"

// RegexRule associates a compiled pattern with the group it maps to.
// Rules are evaluated in the order they were registered.
type RegexRule struct {
	Pattern *regexp.Regexp
	Group   string
}

// GroupMapper deterministically reduces a URL to the quota group that
// governs it. Mappers are immutable after construction; derive combined
// mappers with Merge.
//
// Resolution order for a URL:
//
//  1. The literal map, keyed by the candidate segment (exact match first,
//     then lowercase).
//  2. The regex rules in registration order, matched against the candidate
//     and then against every path segment.
//  3. The candidate segment itself, else the full path, else the raw URL.
//
// The candidate segment is the one following the last occurrence of the
// configured API path anchor; when the anchor does not occur, the first
// non-empty path segment.
type GroupMapper struct {
	apiPath  string
	literals map[string]string
	rules    []RegexRule
}

// MapperOption configures a GroupMapper under construction.
type MapperOption func(*GroupMapper)

// WithAPIPath overrides the anchor segment (default "api").
func WithAPIPath(segment string) MapperOption {
	return func(m *GroupMapper) {
		if segment != "" {
			m.apiPath = segment
		}
	}
}

// WithLiteral maps an exact candidate segment to a group.
func WithLiteral(segment, group string) MapperOption {
	return func(m *GroupMapper) {
		m.literals[segment] = group
	}
}

// WithLiterals copies a whole literal map.
func WithLiterals(literals map[string]string) MapperOption {
	return func(m *GroupMapper) {
		for k, v := range literals {
			m.literals[k] = v
		}
	}
}

// WithRegex appends a regex rule. Rules added first match first.
func WithRegex(pattern *regexp.Regexp, group string) MapperOption {
	return func(m *GroupMapper) {
		m.rules = append(m.rules, RegexRule{Pattern: pattern, Group: group})
	}
}

// NewGroupMapper builds an immutable mapper.
func NewGroupMapper(opts ...MapperOption) *GroupMapper {
	m := &GroupMapper{
		apiPath:  DefaultAPIPath,
		literals: make(map[string]string),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Merge returns a new mapper combining the receiver with other, with
// other's literals and rules taking precedence. The receiver's anchor is
// kept unless other configured a non-default one.
func (m *GroupMapper) Merge(other *GroupMapper) *GroupMapper {
	if other == nil {
		return m
	}

	out := &GroupMapper{
		apiPath:  m.apiPath,
		literals: make(map[string]string, len(m.literals)+len(other.literals)),
	}
	if other.apiPath != DefaultAPIPath {
		out.apiPath = other.apiPath
	}
	for k, v := range m.literals {
		out.literals[k] = v
	}
	for k, v := range other.literals {
		out.literals[k] = v
	}
	out.rules = append(out.rules, other.rules...)
	out.rules = append(out.rules, m.rules...)
	return out
}

// MapURL resolves the quota group for a raw URL. Equal normalized URLs
// always yield equal group names.
func (m *GroupMapper) MapURL(rawURL string) string {
	path := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		path = u.EscapedPath()
	} else {
		// Strip fragment and query by hand when parsing fails.
		if i := strings.IndexAny(path, "?#"); i >= 0 {
			path = path[:i]
		}
	}

	segments := splitPath(path)
	candidate := m.candidate(segments)

	if candidate != "" {
		if g, ok := m.literals[candidate]; ok {
			return g
		}
		if g, ok := m.literals[strings.ToLower(candidate)]; ok {
			return g
		}
	}

	for _, rule := range m.rules {
		if candidate != "" && rule.Pattern.MatchString(candidate) {
			return rule.Group
		}
		for _, seg := range segments {
			if rule.Pattern.MatchString(seg) {
				return rule.Group
			}
		}
	}

	if candidate != "" {
		return candidate
	}
	if path != "" {
		return path
	}
	return rawURL
}

// candidate picks the segment following the last anchor occurrence, or
// the first segment when the anchor is absent.
func (m *GroupMapper) candidate(segments []string) string {
	anchor := strings.ToLower(m.apiPath)
	for i := len(segments) - 1; i >= 0; i-- {
		if strings.ToLower(segments[i]) == anchor {
			if i+1 < len(segments) {
				return segments[i+1]
			}
			return ""
		}
	}
	if len(segments) > 0 {
		return segments[0]
	}
	return ""
}

func splitPath(path string) []string {
	parts := strings.Split(path, "/")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
