package queue

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errPermanent = errors.New("permanent")

func TestRetryManager_ShouldRetry(t *testing.T) {
	rm := NewRetryManager(3, 100*time.Millisecond, WithRetryable(func(err error) bool {
		return !errors.Is(err, errPermanent)
	}))

	tests := []struct {
		name     string
		task     *Task
		err      error
		expected bool
	}{
		{"first failure", &Task{Attempts: 1, MaxRetries: 3}, errors.New("timeout"), true},
		{"attempts exhausted", &Task{Attempts: 3, MaxRetries: 3}, errors.New("timeout"), false},
		{"non retryable", &Task{Attempts: 1, MaxRetries: 3}, errPermanent, false},
		{"nil error", &Task{Attempts: 1, MaxRetries: 3}, nil, false},
		{"falls back to manager limit", &Task{Attempts: 2}, errors.New("timeout"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			retry, delay := rm.ShouldRetry(tt.task, tt.err)
			assert.Equal(t, tt.expected, retry)
			if retry {
				assert.Greater(t, delay, time.Duration(0))
			}
		})
	}
}

func TestRetryManager_BackoffIsCapped(t *testing.T) {
	rm := NewRetryManager(50, 10*time.Millisecond)

	for attempt := 1; attempt < 40; attempt++ {
		d := rm.calculateBackoff(attempt)
		assert.LessOrEqual(t, d, 160*time.Millisecond)
		assert.Greater(t, d, time.Duration(0))
	}
}

func TestTask_Validate(t *testing.T) {
	assert.NoError(t, (&Task{ID: "t-1", Type: TaskTypeSettleBooking}).Validate())
	assert.Error(t, (&Task{Type: TaskTypeSettleBooking}).Validate())
	assert.Error(t, (&Task{ID: "t-1", Type: "expire_booking"}).Validate())
}

func TestTask_Delayed(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	assert.True(t, (&Task{ExecuteAt: now.Add(time.Minute)}).Delayed(now))
	assert.False(t, (&Task{ExecuteAt: now}).Delayed(now))
	assert.False(t, (&Task{ExecuteAt: now.Add(-time.Hour)}).Delayed(now))
}

func TestTask_GetString(t *testing.T) {
	task := &Task{Data: map[string]interface{}{
		"booking_id": "b-1",
		"count":      float64(4),
	}}

	assert.Equal(t, "b-1", task.GetString("booking_id"))
	assert.Equal(t, "", task.GetString("missing"))
	assert.Equal(t, "", task.GetString("count"))
	assert.Equal(t, "", (&Task{}).GetString("booking_id"))
}
