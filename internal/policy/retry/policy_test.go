package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShouldRetry(t *testing.T) {
	t.Parallel()

	p := New(Config{MaxRetries: 2, BaseDelay: time.Millisecond})
	transient := errors.New("Service Unavailable")

	tests := []struct {
		name    string
		status  int
		err     error
		attempt int
		want    bool
	}{
		{"503 first attempt", 503, transient, 1, true},
		{"429 second attempt", 429, transient, 2, true},
		{"retries exhausted", 503, transient, 3, false},
		{"404 not retryable", 404, errors.New("Not Found"), 1, false},
		{"network error", 0, errors.New("connection refused"), 1, true},
		{"canceled", 0, context.Canceled, 1, false},
		{"deadline wrapped", 0, fmt.Errorf("visit: %w", context.DeadlineExceeded), 1, false},
		{"no error no status", 0, nil, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, p.ShouldRetry(tt.status, tt.err, tt.attempt))
		})
	}
}

func TestBackoffWithoutJitterDoublesAndCaps(t *testing.T) {
	t.Parallel()

	p := New(Config{MaxRetries: 5, BaseDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond})
	assert.Equal(t, 100*time.Millisecond, p.Backoff(1))
	assert.Equal(t, 200*time.Millisecond, p.Backoff(2))
	assert.Equal(t, 300*time.Millisecond, p.Backoff(3))
	assert.Equal(t, 300*time.Millisecond, p.Backoff(8))
	assert.Equal(t, 100*time.Millisecond, p.Backoff(0))
}

func TestBackoffJitterStaysInUpperHalf(t *testing.T) {
	t.Parallel()

	p := New(Config{MaxRetries: 3, BaseDelay: 200 * time.Millisecond, Jitter: true})
	for i := 0; i < 50; i++ {
		d := p.Backoff(1)
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.LessOrEqual(t, d, 200*time.Millisecond)
	}
}

func TestDefaults(t *testing.T) {
	t.Parallel()

	p := NewDefault()
	assert.Equal(t, 4, p.MaxAttempts())
	for _, code := range DefaultStatuses {
		assert.True(t, p.Retryable(code), code)
	}
	assert.False(t, p.Retryable(400))

	custom := New(Config{MaxRetries: -1, RetryStatuses: []int{418}})
	assert.Equal(t, 1, custom.MaxAttempts())
	assert.True(t, custom.Retryable(418))
	assert.False(t, custom.Retryable(503))
}
