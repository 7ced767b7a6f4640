package queue

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Queue is a delayed task queue
type Queue interface {
	Publish(ctx context.Context, task *Task) error
	Subscribe(ctx context.Context, handler func(context.Context, *Task) error) error
	Close() error
}

type TaskType string

// TaskTypeSettleBooking closes a booking once its tour date has passed.
const TaskTypeSettleBooking TaskType = "settle_booking"

func (t TaskType) Known() bool {
	return t == TaskTypeSettleBooking
}

// Task is one unit of work. Data round-trips through JSON, so numbers come
// back as float64.
type Task struct {
	ID         string                 `json:"id"`
	Type       TaskType               `json:"type"`
	Data       map[string]interface{} `json:"data"`
	ExecuteAt  time.Time              `json:"execute_at"`
	CreatedAt  time.Time              `json:"created_at"`
	Attempts   int                    `json:"attempts"`
	MaxRetries int                    `json:"max_retries"`
}

func (t *Task) Validate() error {
	if t.ID == "" {
		return errors.New("task ID is required")
	}
	if !t.Type.Known() {
		return fmt.Errorf("unknown task type %q", t.Type)
	}
	return nil
}

// Delayed reports whether the task must wait in the delayed set.
func (t *Task) Delayed(now time.Time) bool {
	return t.ExecuteAt.After(now)
}

func (t *Task) GetString(key string) string {
	str, _ := t.Data[key].(string)
	return str
}
