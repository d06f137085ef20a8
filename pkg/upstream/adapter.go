// Package upstream defines the data-adapter contract shared by every list and
// detail endpoint, and the error taxonomy that turns adapter failures into
// HTTP responses.
package upstream

import "context"

// Item is one row of upstream data. Adapters return loosely typed rows; shape
// validation happens at the adapter boundary, not here.
type Item = map[string]any

// Query is the resolved request an adapter receives.
type Query struct {
	// Offset is the absolute starting position within the result set.
	Offset int

	// Limit is the page size, already clamped by the pagination resolver.
	Limit int

	// Sort is the sort field identifier.
	Sort string

	// Order is "asc" or "desc".
	Order string

	// Filters are the endpoint-specific filter parameters.
	Filters map[string]string
}

// Page is one page of results from an adapter.
type Page struct {
	// Items are the rows for this page.
	Items []Item

	// Total is the total number of matching rows upstream, or -1 when the
	// source does not report one.
	Total int

	// HasMore reports whether rows exist beyond this page.
	HasMore bool
}

// Adapter is the contract every upstream data source implements.
//
// Adapters either return a page of items or an error constructed through this
// package's error types; the pipeline never inspects raw upstream failures
// directly. Calls must honor ctx cancellation so an abandoned client request
// stops consuming upstream quota.
type Adapter interface {
	// Browse returns one page of the source's listing for the query.
	Browse(ctx context.Context, q Query) (*Page, error)

	// Lookup fetches a single object by identifier.
	Lookup(ctx context.Context, id string) (Item, error)
}
