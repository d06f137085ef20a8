// Package ratelimit implements per-client, per-endpoint-class admission control
// using fixed-window counters held in process memory. Counters are created
// lazily, reset when their window elapses, and are never persisted across
// restarts.
package ratelimit

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for admission decisions.
var (
	rateLimitChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cosmic_rate_limit_checks_total",
		Help: "Total rate limit checks by endpoint class and outcome",
	}, []string{"class", "outcome"})
)

// Class is a rate-limit budget category reflecting relative request cost.
type Class string

const (
	// ClassDetail covers single-object fetches (cheap, generous budget).
	ClassDetail Class = "detail"

	// ClassBrowse covers list queries (moderate budget).
	ClassBrowse Class = "browse"

	// ClassSitemap covers multi-page crawls of an upstream source. A single
	// sitemap request fans out into many upstream calls, so the budget is tight.
	ClassSitemap Class = "sitemap"
)

// Budget is the admission budget for one endpoint class.
type Budget struct {
	// Limit is the number of requests allowed per window.
	Limit int

	// Window is the fixed window duration.
	Window time.Duration
}

// DefaultBudgets returns the per-class budgets used in production.
func DefaultBudgets() map[Class]Budget {
	return map[Class]Budget{
		ClassDetail:  {Limit: 300, Window: time.Minute},
		ClassBrowse:  {Limit: 60, Window: time.Minute},
		ClassSitemap: {Limit: 10, Window: time.Hour},
	}
}

// Result is the outcome of one admission check.
type Result struct {
	// Allowed reports whether the request may proceed.
	Allowed bool

	// Limit is the configured budget for the request's class.
	Limit int

	// Remaining is the budget left in the current window after this check.
	Remaining int

	// ResetAt is when the current window ends and the counter resets.
	ResetAt time.Time
}

// bucket tracks one (clientID, class) counter within its window.
type bucket struct {
	count       int
	windowStart time.Time
}

type bucketKey struct {
	clientID string
	class    Class
}

// Limiter is a process-lifetime keyed counter store with
// increment-or-reject semantics. Safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	budgets map[Class]Budget
	buckets map[bucketKey]*bucket

	// now is overridable in tests.
	now func() time.Time
}

// New creates a limiter with the given per-class budgets.
// Pass DefaultBudgets() for the production configuration.
func New(budgets map[Class]Budget) *Limiter {
	if len(budgets) == 0 {
		budgets = DefaultBudgets()
	}
	return &Limiter{
		budgets: budgets,
		buckets: make(map[bucketKey]*bucket),
		now:     time.Now,
	}
}

// Check performs an admission check for one request.
//
// Exceeding the budget is a normal Allowed=false result, never an error; the
// counter is not incremented past the limit, so rejected requests do not
// extend the client's lockout. Unknown classes fall back to the browse budget.
func (l *Limiter) Check(clientID string, class Class) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	budget, ok := l.budgets[class]
	if !ok {
		budget = l.budgets[ClassBrowse]
	}
	if budget.Limit <= 0 || budget.Window <= 0 {
		budget = Budget{Limit: 60, Window: time.Minute}
	}

	now := l.now()
	key := bucketKey{clientID: clientID, class: class}

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{windowStart: now}
		l.buckets[key] = b
	}

	// Reset an elapsed window before evaluating.
	if now.Sub(b.windowStart) >= budget.Window {
		b.count = 0
		b.windowStart = now
	}

	resetAt := b.windowStart.Add(budget.Window)

	if b.count >= budget.Limit {
		rateLimitChecksTotal.WithLabelValues(string(class), "rejected").Inc()
		return Result{
			Allowed:   false,
			Limit:     budget.Limit,
			Remaining: 0,
			ResetAt:   resetAt,
		}
	}

	b.count++
	rateLimitChecksTotal.WithLabelValues(string(class), "allowed").Inc()

	return Result{
		Allowed:   true,
		Limit:     budget.Limit,
		Remaining: budget.Limit - b.count,
		ResetAt:   resetAt,
	}
}
