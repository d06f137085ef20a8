package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Key identifies a cached page. Keys are deterministic: the same endpoint and
// parameters always produce the same string regardless of parameter order.
type Key struct {
	// Endpoint is the API endpoint path (e.g. "/api/fireballs").
	Endpoint string

	// Params are the request's query parameters, pagination included, since a
	// page at offset 24 is a different cached object than the page at 0.
	Params url.Values
}

// String renders the key.
// Format: cosmic:endpoint:param1=val1:param2=val2
func (k Key) String() string {
	parts := []string{"cosmic"}

	endpoint := strings.Trim(k.Endpoint, "/")
	if endpoint != "" {
		parts = append(parts, endpoint)
	}

	if len(k.Params) > 0 {
		keys := make([]string, 0, len(k.Params))
		for key := range k.Params {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, key := range keys {
			parts = append(parts, fmt.Sprintf("%s=%s", key, strings.Join(k.Params[key], ",")))
		}
	}

	return strings.Join(parts, ":")
}
