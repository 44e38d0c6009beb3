package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// keyPrefix tags every key so entries from different tools never collide
// in a shared store.
const keyPrefix = "readwise"

// CacheKey identifies one page request of a pagination walk.
type CacheKey struct {
	// Endpoint is the API path (e.g., "/api/v3/list/")
	Endpoint string

	// QueryParams are the request parameters (e.g., {"pageCursor": "01h..."})
	QueryParams url.Values
}

// String generates a canonical cache key string.
// Parameter names are sorted and values are query-escaped, so the key does
// not depend on map order or on separator characters inside cursors.
// Format: readwise:endpoint:name1=val1:name2=val2
//
// Example:
//
//	readwise:api/v3/list:pageCursor=01h9x
func (k CacheKey) String() string {
	parts := []string{keyPrefix}

	endpoint := strings.Trim(k.Endpoint, "/")
	if endpoint != "" {
		parts = append(parts, endpoint)
	}

	if len(k.QueryParams) > 0 {
		names := make([]string, 0, len(k.QueryParams))
		for name := range k.QueryParams {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			for _, value := range k.QueryParams[name] {
				parts = append(parts, fmt.Sprintf("%s=%s", url.QueryEscape(name), url.QueryEscape(value)))
			}
		}
	}

	return strings.Join(parts, ":")
}
