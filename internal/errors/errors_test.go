package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestError_Format(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "without cause",
			err:  New(CodeNotFound, "restaurant 7 does not exist"),
			want: "[NOT_FOUND] restaurant 7 does not exist",
		},
		{
			name: "with cause",
			err:  Wrap(CodeNetwork, "GET restaurants", fmt.Errorf("connection refused")),
			want: "[NETWORK_ERROR] GET restaurants: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIs_MatchesByCode(t *testing.T) {
	err := fmt.Errorf("lookup: %w", New(CodeNotFound, "restaurant 3 does not exist"))

	if !stderrors.Is(err, ErrNotFound) {
		t.Error("errors.Is(err, ErrNotFound) = false, want true")
	}
	if stderrors.Is(err, ErrStoreUnavailable) {
		t.Error("errors.Is(err, ErrStoreUnavailable) = true, want false")
	}
	if !Is(err, CodeNotFound) {
		t.Error("Is(err, CodeNotFound) = false, want true")
	}
}

func TestIs_NestedCodes(t *testing.T) {
	inner := New(CodeNetwork, "PUT favorite")
	outer := Wrap(CodeStoreUnavailable, "queue favorite", inner)

	if !Is(outer, CodeNetwork) {
		t.Error("Is(outer, CodeNetwork) = false, want true")
	}
	if got := CodeOf(outer); got != CodeStoreUnavailable {
		t.Errorf("CodeOf() = %s, want %s", got, CodeStoreUnavailable)
	}
	if got := CodeOf(fmt.Errorf("plain")); got != CodeInternal {
		t.Errorf("CodeOf(plain) = %s, want %s", got, CodeInternal)
	}
	if Is(nil, CodeNetwork) {
		t.Error("Is(nil) = true, want false")
	}
}
