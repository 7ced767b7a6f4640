package queue

import (
	"math/rand"
	"time"
)

// RetryManager manages retry logic for failed tasks
type RetryManager struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	retryable  func(error) bool
}

type RetryOption func(*RetryManager)

// WithRetryable replaces the default classifier, which retries every error.
func WithRetryable(fn func(error) bool) RetryOption {
	return func(r *RetryManager) {
		r.retryable = fn
	}
}

func NewRetryManager(maxRetries int, baseDelay time.Duration, opts ...RetryOption) *RetryManager {
	if baseDelay <= 0 {
		baseDelay = defaultBaseDelay
	}
	r := &RetryManager{
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxDelay:   baseDelay * 16, // Maximum 16x base delay
		retryable:  func(err error) bool { return err != nil },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ShouldRetry determines if a task should be retried and returns the delay
func (r *RetryManager) ShouldRetry(task *Task, err error) (bool, time.Duration) {
	limit := task.MaxRetries
	if limit <= 0 {
		limit = r.maxRetries
	}
	if task.Attempts >= limit {
		return false, 0
	}
	if err == nil || !r.retryable(err) {
		return false, 0
	}
	return true, r.calculateBackoff(task.Attempts)
}

// calculateBackoff: base * 2^(attempt-1) with ±25% jitter, capped at maxDelay
func (r *RetryManager) calculateBackoff(attempt int) time.Duration {
	if attempt <= 0 {
		return r.baseDelay
	}

	backoff := r.baseDelay * time.Duration(1<<(attempt-1))
	if backoff > r.maxDelay || backoff <= 0 {
		backoff = r.maxDelay
	}

	if quarter := int64(backoff / 4); quarter > 0 {
		jitter := time.Duration(rand.Int63n(quarter))
		if rand.Intn(2) == 0 {
			backoff += jitter
		} else {
			backoff -= jitter
		}
	}

	if backoff > r.maxDelay {
		backoff = r.maxDelay
	}
	return backoff
}
