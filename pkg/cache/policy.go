// Package cache provides the cache-lifetime policy for API responses and a
// Redis-backed read-through store for rendered browse pages.
package cache

import (
	"fmt"
	"time"
)

// Resource identifies a cacheable resource class. Each class carries its own
// base TTL reflecting how quickly the underlying dataset moves.
type Resource string

const (
	ResourceFireballBrowse  Resource = "fireball_browse"
	ResourceFireballDetail  Resource = "fireball_detail"
	ResourceSmallBodyBrowse Resource = "smallbody_browse"
	ResourceExoplanetBrowse Resource = "exoplanet_browse"
	ResourceAPOD            Resource = "apod"
	ResourceSitemap         Resource = "sitemap"
)

// EmptyTTL caps the lifetime of legitimately empty results. An empty page is
// never cached as long as a populated one, so a "no results" response stops
// being served soon after upstream data catches up.
const EmptyTTL = 60 * time.Second

// baseTTLs are the per-class cache lifetimes for populated results.
var baseTTLs = map[Resource]time.Duration{
	ResourceFireballBrowse:  5 * time.Minute,
	ResourceFireballDetail:  time.Hour,
	ResourceSmallBodyBrowse: 15 * time.Minute,
	ResourceExoplanetBrowse: time.Hour,
	ResourceAPOD:            6 * time.Hour,
	ResourceSitemap:         24 * time.Hour,
}

// defaultTTL applies to resource classes without an explicit entry.
const defaultTTL = 5 * time.Minute

// TTL returns the cache lifetime for a resource class and result emptiness.
// Pure function of its inputs.
func TTL(resource Resource, empty bool) time.Duration {
	ttl, ok := baseTTLs[resource]
	if !ok {
		ttl = defaultTTL
	}
	if empty && ttl > EmptyTTL {
		return EmptyTTL
	}
	return ttl
}

// ControlHeader renders a TTL as a Cache-Control header value.
func ControlHeader(ttl time.Duration) string {
	secs := int(ttl.Seconds())
	if secs < 0 {
		secs = 0
	}
	return fmt.Sprintf("public, max-age=%d, s-maxage=%d", secs, secs)
}
