package upstream

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

// timeoutError implements net.Error for classifier tests.
type timeoutError struct{}

func (timeoutError) Error() string   { return "dial tcp: i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{
			name: "nil error",
			err:  nil,
			want: KindUnknown,
		},
		{
			name: "typed failure",
			err:  Failure(502, "bad response", nil),
			want: KindUpstreamFailure,
		},
		{
			name: "typed mismatch",
			err:  Mismatch("fields array missing", nil),
			want: KindContractMismatch,
		},
		{
			name: "wrapped typed error",
			err:  fmt.Errorf("fireball browse: %w", Failure(503, "unavailable", nil)),
			want: KindUpstreamFailure,
		},
		{
			name: "context cancelled",
			err:  context.Canceled,
			want: KindCancelled,
		},
		{
			name: "wrapped cancellation",
			err:  fmt.Errorf("do request: %w", context.Canceled),
			want: KindCancelled,
		},
		{
			name: "cancellation wins over typed wrapper",
			err:  Failure(0, "aborted mid-flight", context.Canceled),
			want: KindCancelled,
		},
		{
			name: "deadline exceeded",
			err:  fmt.Errorf("get page: %w", context.DeadlineExceeded),
			want: KindUpstreamFailure,
		},
		{
			name: "net.Error",
			err:  timeoutError{},
			want: KindUpstreamFailure,
		},
		{
			name: "timeout by message",
			err:  errors.New("request timed out after 15s"),
			want: KindUpstreamFailure,
		},
		{
			name: "connection reset by message",
			err:  errors.New("read: connection reset by peer"),
			want: KindUpstreamFailure,
		},
		{
			name: "json decode by message",
			err:  errors.New("json: cannot unmarshal string into Go value of type int"),
			want: KindContractMismatch,
		},
		{
			name: "invalid character by message",
			err:  errors.New("invalid character '<' looking for beginning of value"),
			want: KindContractMismatch,
		},
		{
			name: "uncategorized",
			err:  errors.New("something odd happened"),
			want: KindUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify() = %s, want %s", got, tt.want)
			}
		})
	}
}

// TestClassify_Total feeds an assortment of error values through the
// classifier and requires each to land in exactly one of the four kinds.
func TestClassify_Total(t *testing.T) {
	inputs := []error{
		nil,
		errors.New(""),
		errors.New("x"),
		fmt.Errorf("wrap: %w", errors.New("inner")),
		Failure(500, "", nil),
		Mismatch("", nil),
		&Error{Kind: Kind("bogus")},
		context.Canceled,
		context.DeadlineExceeded,
		timeoutError{},
	}

	known := map[Kind]bool{
		KindUpstreamFailure:  true,
		KindContractMismatch: true,
		KindCancelled:        true,
		KindUnknown:          true,
	}

	for i, err := range inputs {
		if kind := Classify(err); !known[kind] {
			t.Errorf("input %d: Classify() = %q, outside taxonomy", i, kind)
		}
	}
}

func TestError_ErrorAndUnwrap(t *testing.T) {
	inner := errors.New("boom")
	err := Failure(503, "fireball api unavailable", inner)

	if msg := err.Error(); msg == "" {
		t.Error("Error() returned empty message")
	}
	if !errors.Is(err, inner) {
		t.Error("errors.Is failed to reach wrapped error")
	}

	bare := Mismatch("bad shape", nil)
	if msg := bare.Error(); msg == "" {
		t.Error("Error() returned empty message for nil inner error")
	}
}
