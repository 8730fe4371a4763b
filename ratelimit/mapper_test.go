package ratelimit

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGroupMapperMapURL(t *testing.T) {
	mapper := NewGroupMapper(
		WithLiteral("contacts", "Contacts"),
		WithLiteral("orders", "Orders"),
		WithRegex(regexp.MustCompile(`^v\d+$`), "Versioned"),
	)

	tests := []struct {
		name string
		url  string
		want string
	}{
		{
			name: "given literal match after api anchor, then mapped group wins",
			url:  "https://api.example.com/api/contacts/123",
			want: "Contacts",
		},
		{
			name: "given lowercase literal lookup, then mixed case still maps",
			url:  "https://api.example.com/api/Contacts/123",
			want: "Contacts",
		},
		{
			name: "given last anchor occurrence, then later segment wins",
			url:  "https://example.com/api/v2/tenant/api/orders/9",
			want: "Orders",
		},
		{
			name: "given regex match on candidate, then rule group wins",
			url:  "https://example.com/api/v3/things",
			want: "Versioned",
		},
		{
			name: "given no mapping, then candidate segment is the group",
			url:  "https://example.com/api/widgets/7",
			want: "widgets",
		},
		{
			name: "given no anchor, then first segment is the candidate",
			url:  "https://example.com/contacts/123",
			want: "Contacts",
		},
		{
			name: "given query and fragment, then they never affect mapping",
			url:  "https://api.example.com/api/contacts/123?page=2#top",
			want: "Contacts",
		},
		{
			name: "given anchor as final segment, then path is the fallback",
			url:  "https://example.com/api",
			want: "/api",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, mapper.MapURL(tt.url))
		})
	}
}

func TestGroupMapperDeterministic(t *testing.T) {
	mapper := NewGroupMapper(WithLiteral("contacts", "Contacts"))

	url := "https://api.example.com/api/contacts/123"
	first := mapper.MapURL(url)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, mapper.MapURL(url))
	}
}

func TestGroupMapperRegexOrder(t *testing.T) {
	mapper := NewGroupMapper(
		WithRegex(regexp.MustCompile(`contact`), "First"),
		WithRegex(regexp.MustCompile(`contacts`), "Second"),
	)

	// Insertion order decides when both patterns match.
	assert.Equal(t, "First", mapper.MapURL("https://x.test/api/contacts/1"))
}

func TestGroupMapperMerge(t *testing.T) {
	base := NewGroupMapper(
		WithLiteral("contacts", "Old"),
		WithLiteral("orders", "Orders"),
	)
	newer := NewGroupMapper(
		WithLiteral("contacts", "New"),
	)

	merged := base.Merge(newer)

	// The newer mapper's entries win; unrelated entries survive.
	assert.Equal(t, "New", merged.MapURL("https://x.test/api/contacts/1"))
	assert.Equal(t, "Orders", merged.MapURL("https://x.test/api/orders/1"))

	// Originals are untouched.
	assert.Equal(t, "Old", base.MapURL("https://x.test/api/contacts/1"))

	// Merging nil is the identity.
	assert.Same(t, base, base.Merge(nil))
}

func TestGroupMapperCustomAnchor(t *testing.T) {
	mapper := NewGroupMapper(WithAPIPath("rest"))

	assert.Equal(t, "contacts", mapper.MapURL("https://x.test/rest/contacts/5"))
}
