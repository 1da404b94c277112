package cache

import (
	"strings"
)

// Key identifies a cached response by method and full URL.
type Key struct {
	// Method is the HTTP method (only GET responses are cached today,
	// but the key carries the method so other methods stay distinct).
	Method string

	// URL is the absolute request URL including the query string.
	URL string
}

// String generates a deterministic cache key string.
// Format: rolling:METHOD:url
//
// Example:
//
//	rolling:GET:https://example.com/data?page=2
func (k Key) String() string {
	return strings.Join([]string{"rolling", strings.ToUpper(k.Method), k.URL}, ":")
}
