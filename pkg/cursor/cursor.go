// Package cursor implements the opaque pagination resume token.
//
// A cursor binds a resume position to the exact (sort, order, filter
// fingerprint) triple that minted it. The wire format is base64 over a
// versioned JSON record, but that layout is internal: clients receive an
// opaque string and only this package's encode/decode pair may interpret it.
package cursor

import (
	"bytes"
	"encoding/base64"

	"github.com/goccy/go-json"
)

// Version is the current cursor format version. Records carrying any other
// version fail validation outright; there is no forward-compatible parsing.
const Version = 1

// DirectionNext marks a forward-paging cursor. Backward traversal is not
// supported.
const DirectionNext = "n"

// Sort orders accepted inside a cursor.
const (
	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// Record is the decoded form of a cursor.
type Record struct {
	// CV is the cursor format version.
	CV int `json:"cv"`

	// Sort is the sort field identifier the cursor was minted under.
	Sort string `json:"s"`

	// Order is the sort order, "asc" or "desc".
	Order string `json:"o"`

	// Fingerprint is the filter fingerprint of the originating query.
	Fingerprint string `json:"f"`

	// Values is the ordered resume position, e.g. [offset] or
	// [lastValue, lastID] for keyset-style resumption. Numeric values are
	// normalized to int64 where integral.
	Values []any `json:"v"`

	// Direction is the paging direction marker ("n" for next).
	Direction string `json:"d"`
}

// Reason explains why a cursor failed validation.
type Reason string

const (
	ReasonMalformed       Reason = "MALFORMED"
	ReasonVersionMismatch Reason = "VERSION_MISMATCH"
	ReasonSortMismatch    Reason = "SORT_MISMATCH"
	ReasonOrderMismatch   Reason = "ORDER_MISMATCH"
	ReasonFilterMismatch  Reason = "FILTER_MISMATCH"
)

// Validation is the result of checking a decoded cursor against the triple of
// the request presenting it.
type Validation struct {
	Valid  bool
	Reason Reason
}

// Encode serializes a record into its opaque wire form.
func Encode(rec Record) (string, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// Decode parses an opaque cursor string.
//
// Returns nil for anything structurally malformed: bad base64, bad JSON, a
// missing sort field, an unrecognized order or direction, or an empty resume
// position. There is never a best-effort partial parse. Version checking is
// left to Validate so a stale-version cursor can be rejected with a precise
// reason.
func Decode(s string) *Record {
	if s == "" {
		return nil
	}

	data, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	dec.DisallowUnknownFields()

	var rec Record
	if err := dec.Decode(&rec); err != nil {
		return nil
	}

	if rec.Sort == "" {
		return nil
	}
	if rec.Order != OrderAsc && rec.Order != OrderDesc {
		return nil
	}
	if rec.Direction != DirectionNext {
		return nil
	}
	if len(rec.Values) == 0 {
		return nil
	}

	normalizeValues(rec.Values)

	return &rec
}

// Validate checks a decoded cursor against the sort, order, and filter
// fingerprint of the request presenting it. A nil record (failed decode) is
// MALFORMED; everything else is checked in version, sort, order, filter order
// so the caller can report the most specific mismatch.
func Validate(rec *Record, expectedSort, expectedOrder, expectedFingerprint string) Validation {
	if rec == nil {
		return Validation{Valid: false, Reason: ReasonMalformed}
	}
	if rec.CV != Version {
		return Validation{Valid: false, Reason: ReasonVersionMismatch}
	}
	if rec.Sort != expectedSort {
		return Validation{Valid: false, Reason: ReasonSortMismatch}
	}
	if rec.Order != expectedOrder {
		return Validation{Valid: false, Reason: ReasonOrderMismatch}
	}
	if rec.Fingerprint != expectedFingerprint {
		return Validation{Valid: false, Reason: ReasonFilterMismatch}
	}
	return Validation{Valid: true}
}

// normalizeValues rewrites json.Number entries so that integral numbers come
// back as int64 and everything else as float64, keeping encode/decode
// round-trips stable.
func normalizeValues(values []any) {
	for i, v := range values {
		num, ok := v.(json.Number)
		if !ok {
			continue
		}
		if n, err := num.Int64(); err == nil {
			values[i] = n
			continue
		}
		if f, err := num.Float64(); err == nil {
			values[i] = f
		}
	}
}

// OffsetValue extracts an integer resume offset from the record's first
// value. Returns false when the cursor does not carry a usable offset.
func (r *Record) OffsetValue() (int, bool) {
	if r == nil || len(r.Values) == 0 {
		return 0, false
	}
	switch v := r.Values[0].(type) {
	case int64:
		if v < 0 {
			return 0, false
		}
		return int(v), true
	case float64:
		if v < 0 || v != float64(int64(v)) {
			return 0, false
		}
		return int(v), true
	default:
		return 0, false
	}
}
