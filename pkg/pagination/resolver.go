// Package pagination resolves raw list-request parameters into a single
// effective pagination intent, and crawls multi-page upstream sources for
// sitemap generation.
package pagination

import (
	"fmt"
	"strconv"

	"github.com/alderon07/cosmic-index-sub001/pkg/cursor"
)

// Mode is how a request addresses its position in the result set.
type Mode string

const (
	// ModeOffset pages by page number.
	ModeOffset Mode = "offset"

	// ModeCursor resumes from an opaque token. Internally this still drives
	// offset-capable adapters; the opacity is the client contract, not the
	// storage mechanism.
	ModeCursor Mode = "cursor"
)

// RawQuery carries the pagination inputs exactly as received.
type RawQuery struct {
	Page   string
	Limit  string
	Cursor string
}

// Spec is the endpoint-side context a request resolves against.
type Spec struct {
	// Sort and Order are the endpoint's effective sort for this request.
	Sort  string
	Order string

	// Fingerprint is the filter fingerprint of this request, used to check
	// that a presented cursor was minted under the same filters.
	Fingerprint string

	// DefaultLimit applies when the client sends none.
	DefaultLimit int

	// MaxLimit is the fixed per-endpoint ceiling. Client limits are clamped,
	// never honored above it.
	MaxLimit int
}

// Request is the resolved pagination intent.
type Request struct {
	Mode        Mode
	Page        int
	Offset      int
	Limit       int
	Sort        string
	Order       string
	Fingerprint string
}

// Error codes for resolution failures.
const (
	CodeValidation    = "VALIDATION_ERROR"
	CodeInvalidCursor = "INVALID_CURSOR"
)

// ResolveError is a client error produced during resolution. It maps to a 400
// with field-level detail; cursor failures carry the specific mismatch reason.
type ResolveError struct {
	Code    string
	Field   string
	Message string
	Reason  cursor.Reason
}

// Error implements the error interface.
func (e *ResolveError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s (%s): %s", e.Code, e.Reason, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Resolve turns raw query parameters into a pagination request.
//
// page and cursor are mutually exclusive: both present is a client error,
// never a silent precedence rule. A presented cursor must decode and validate
// against the request's current sort, order, and filter fingerprint.
func Resolve(raw RawQuery, spec Spec) (Request, error) {
	limit, err := resolveLimit(raw.Limit, spec)
	if err != nil {
		return Request{}, err
	}

	if raw.Page != "" && raw.Cursor != "" {
		return Request{}, &ResolveError{
			Code:    CodeValidation,
			Field:   "page",
			Message: "page and cursor are mutually exclusive; send one or the other",
		}
	}

	if raw.Cursor != "" {
		rec := cursor.Decode(raw.Cursor)
		v := cursor.Validate(rec, spec.Sort, spec.Order, spec.Fingerprint)
		if !v.Valid {
			return Request{}, &ResolveError{
				Code:    CodeInvalidCursor,
				Field:   "cursor",
				Message: cursorReasonMessage(v.Reason),
				Reason:  v.Reason,
			}
		}

		offset, ok := rec.OffsetValue()
		if !ok {
			return Request{}, &ResolveError{
				Code:    CodeInvalidCursor,
				Field:   "cursor",
				Message: cursorReasonMessage(cursor.ReasonMalformed),
				Reason:  cursor.ReasonMalformed,
			}
		}

		return Request{
			Mode:        ModeCursor,
			Offset:      offset,
			Limit:       limit,
			Sort:        spec.Sort,
			Order:       spec.Order,
			Fingerprint: spec.Fingerprint,
		}, nil
	}

	page := 1
	if raw.Page != "" {
		page, err = strconv.Atoi(raw.Page)
		if err != nil || page < 1 {
			return Request{}, &ResolveError{
				Code:    CodeValidation,
				Field:   "page",
				Message: "page must be an integer >= 1",
			}
		}
	}

	return Request{
		Mode:        ModeOffset,
		Page:        page,
		Offset:      (page - 1) * limit,
		Limit:       limit,
		Sort:        spec.Sort,
		Order:       spec.Order,
		Fingerprint: spec.Fingerprint,
	}, nil
}

// resolveLimit parses and clamps the limit to [1, MaxLimit].
func resolveLimit(raw string, spec Spec) (int, error) {
	limit := spec.DefaultLimit
	if raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return 0, &ResolveError{
				Code:    CodeValidation,
				Field:   "limit",
				Message: "limit must be an integer",
			}
		}
		limit = parsed
	}

	if limit < 1 {
		limit = 1
	}
	if spec.MaxLimit > 0 && limit > spec.MaxLimit {
		limit = spec.MaxLimit
	}
	return limit, nil
}

// NextCursor mints the resume token for the page following req. The token
// embeds the request's own sort, order, and filter fingerprint, so a client
// chaining nextCursor values transparently survives everything except an
// actual filter change.
func NextCursor(req Request, nextOffset int) (string, error) {
	return cursor.Encode(cursor.Record{
		CV:          cursor.Version,
		Sort:        req.Sort,
		Order:       req.Order,
		Fingerprint: req.Fingerprint,
		Values:      []any{int64(nextOffset)},
		Direction:   cursor.DirectionNext,
	})
}

func cursorReasonMessage(r cursor.Reason) string {
	switch r {
	case cursor.ReasonMalformed:
		return "cursor is malformed"
	case cursor.ReasonVersionMismatch:
		return "cursor was minted under an older format version; restart from page 1"
	case cursor.ReasonSortMismatch:
		return "cursor was minted under a different sort; restart from page 1"
	case cursor.ReasonOrderMismatch:
		return "cursor was minted under a different sort order; restart from page 1"
	case cursor.ReasonFilterMismatch:
		return "cursor is stale because filters changed; restart from page 1"
	default:
		return "cursor is invalid"
	}
}
