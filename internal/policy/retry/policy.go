// Package retry decides when a failed upstream request is retried and how
// long to wait before the next attempt.
package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"math"
	"math/big"
	"time"
)

// DefaultStatuses are the transient HTTP statuses retried by default.
var DefaultStatuses = []int{429, 500, 502, 503, 504}

// Config captures the tunables of a Policy.
type Config struct {
	MaxRetries    int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	RetryStatuses []int
	Jitter        bool
}

// Policy implements exponential backoff over a set of retryable statuses.
type Policy struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	statuses   map[int]struct{}
	jitter     bool
}

// New builds a policy from cfg, filling zero values with defaults.
func New(cfg Config) *Policy {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 500 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 10 * time.Second
	}
	if len(cfg.RetryStatuses) == 0 {
		cfg.RetryStatuses = DefaultStatuses
	}
	statuses := make(map[int]struct{}, len(cfg.RetryStatuses))
	for _, code := range cfg.RetryStatuses {
		statuses[code] = struct{}{}
	}
	return &Policy{
		maxRetries: cfg.MaxRetries,
		baseDelay:  cfg.BaseDelay,
		maxDelay:   cfg.MaxDelay,
		statuses:   statuses,
		jitter:     cfg.Jitter,
	}
}

// NewDefault mirrors the classic three retries with a 0.5s backoff factor.
func NewDefault() *Policy {
	return New(Config{MaxRetries: 3, Jitter: true})
}

// MaxAttempts returns the total number of attempts including the first.
func (p *Policy) MaxAttempts() int {
	return p.maxRetries + 1
}

// Retryable reports whether status is in the transient set.
func (p *Policy) Retryable(status int) bool {
	_, ok := p.statuses[status]
	return ok
}

// ShouldRetry decides whether attempt (1-based, already made) is followed by
// another one. status is 0 when no response was received.
func (p *Policy) ShouldRetry(status int, err error, attempt int) bool {
	if attempt > p.maxRetries {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if status > 0 {
		return p.Retryable(status)
	}
	return err != nil
}

// Backoff returns the wait before retry number attempt (1-based).
func (p *Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(p.baseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	if !p.jitter {
		return time.Duration(delay)
	}
	return time.Duration(delay/2) + randomJitter(time.Duration(delay)/2)
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
