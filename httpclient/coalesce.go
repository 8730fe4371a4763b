package httpclient

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// coalesceKey builds the deduplication key for identical in-flight
// requests: SHA-256 over the method, the normalized URL with sorted query
// parameters, and the body hash.
func coalesceKey(method, rawURL string, body []byte) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return hashString(method + rawURL + string(body))
	}

	query := parsed.Query()
	params := make([]string, 0, len(query))
	for key, values := range query {
		sort.Strings(values)
		for _, v := range values {
			params = append(params, key+"="+v)
		}
	}
	sort.Strings(params)

	parts := []string{
		method,
		parsed.Scheme + "://" + parsed.Host + parsed.EscapedPath(),
		strings.Join(params, "&"),
	}
	if len(body) > 0 {
		sum := sha256.Sum256(body)
		parts = append(parts, hex.EncodeToString(sum[:]))
	}

	return hashString(strings.Join(parts, "|"))
}

func hashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
