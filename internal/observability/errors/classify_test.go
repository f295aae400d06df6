package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	apperrors "github.com/interop/jobgather/internal/errors"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "app error code", err: fmt.Errorf("wrap: %w", apperrors.Conflict("lost race")), want: "conflict"},
		{name: "deadline", err: fmt.Errorf("poll: %w", context.DeadlineExceeded), want: "timeout"},
		{name: "canceled", err: context.Canceled, want: "canceled"},
		{name: "innermost type", err: fmt.Errorf("dial: %w", &net.DNSError{Err: "no such host"}), want: "net_dnserror"},
		{name: "plain", err: errors.New("boom"), want: "errors_errorstring"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Classify(tt.err); got != tt.want {
				t.Fatalf("Classify() = %q, want %q", got, tt.want)
			}
		})
	}
}
