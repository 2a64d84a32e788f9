package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

type selfClassified struct{ kind Kind }

func (s selfClassified) Error() string   { return "self classified" }
func (s selfClassified) ErrorKind() Kind { return s.kind }

func TestKindOf(t *testing.T) {
	sentinel := New(KindNotFound, "SHOT_NOT_FOUND", "shot not found")

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"validation", Validation("bad %s", "field"), KindValidation},
		{"wrapped sentinel", fmt.Errorf("load: %w", sentinel), KindNotFound},
		{"self classified", fmt.Errorf("call: %w", selfClassified{KindNonRetryable}), KindNonRetryable},
		{"deadline", fmt.Errorf("poll: %w", context.DeadlineExceeded), KindTransient},
		{"plain", errors.New("boom"), KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSentinelIs(t *testing.T) {
	sentinel := New(KindNotFound, "X", "x missing")
	wrapped := fmt.Errorf("context: %w", sentinel)
	if !errors.Is(wrapped, sentinel) {
		t.Fatal("errors.Is should match wrapped sentinel")
	}
	if CodeOf(wrapped) != "X" {
		t.Errorf("CodeOf() = %q, want X", CodeOf(wrapped))
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindNotFound, http.StatusNotFound},
		{KindValidation, http.StatusBadRequest},
		{KindConflict, http.StatusConflict},
		{KindTransient, http.StatusServiceUnavailable},
		{KindNonRetryable, http.StatusBadGateway},
		{KindInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := HTTPStatus(tt.kind); got != tt.want {
			t.Errorf("HTTPStatus(%s) = %d, want %d", tt.kind, got, tt.want)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(selfClassified{KindTransient}) {
		t.Error("transient error should be retryable")
	}
	if IsRetryable(Validation("nope")) {
		t.Error("validation error should not be retryable")
	}
}
