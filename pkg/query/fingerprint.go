// Package query derives deterministic fingerprints from list-endpoint filter
// parameters. A fingerprint binds a pagination cursor to the exact filter set
// that produced it, so a cursor replayed under different filters can be
// detected and rejected instead of silently reinterpreted.
package query

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// paginationKeys are excluded from fingerprinting: they describe position
// within a result set, not the result set itself.
var paginationKeys = map[string]bool{
	"page":   true,
	"limit":  true,
	"cursor": true,
}

// Fingerprint hashes a normalized filter-parameter set.
//
// Pagination-only keys are dropped, values are canonicalized, and the
// remaining key=value pairs are sorted lexicographically before hashing, so
// two semantically equal filter sets produce identical output regardless of
// parameter order. The hash is 64-bit xxhash rendered as 16 hex characters.
func Fingerprint(params map[string]string) string {
	pairs := make([]string, 0, len(params))
	for key, value := range params {
		if paginationKeys[key] {
			continue
		}
		pairs = append(pairs, key+"="+canonicalize(value))
	}
	sort.Strings(pairs)

	return fmt.Sprintf("%016x", xxhash.Sum64String(strings.Join(pairs, "&")))
}

// FingerprintValues is Fingerprint for url.Values. Repeated keys contribute
// all of their values in their given order, joined into one canonical value.
func FingerprintValues(values url.Values) string {
	params := make(map[string]string, len(values))
	for key, vs := range values {
		switch len(vs) {
		case 0:
			params[key] = ""
		case 1:
			params[key] = vs[0]
		default:
			params[key] = strings.Join(vs, ",")
		}
	}
	return Fingerprint(params)
}

// canonicalize normalizes one filter value. Whitespace padding and boolean
// casing never change filter semantics, so they never change the hash.
func canonicalize(value string) string {
	v := strings.TrimSpace(value)
	switch strings.ToLower(v) {
	case "true":
		return "true"
	case "false":
		return "false"
	}
	return v
}
