package common

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "rate limit",
			err:  fmt.Errorf("reading sheet: %w", ErrRateLimit),
			want: true,
		},
		{
			name: "deadline exceeded",
			err:  context.DeadlineExceeded,
			want: true,
		},
		{
			name: "retryable wrapper",
			err:  &RetryableError{Err: errors.New("503"), Retryable: true},
			want: true,
		},
		{
			name: "non-retryable wrapper",
			err:  &RetryableError{Err: errors.New("400"), Retryable: false},
			want: false,
		},
		{
			name: "plain error",
			err:  errors.New("boom"),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestUserError(t *testing.T) {
	t.Run("message only", func(t *testing.T) {
		err := NewUserError("no sheet id", nil)
		assert.Equal(t, "no sheet id", err.Error())
	})

	t.Run("wraps cause", func(t *testing.T) {
		cause := errors.New("range missing")
		err := NewUserError("sheet misconfigured", cause)
		assert.Equal(t, "sheet misconfigured: range missing", err.Error())
		assert.ErrorIs(t, err, cause)
	})
}
