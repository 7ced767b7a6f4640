package worker

import (
	"context"

	"github.com/ds124wfegd/tourbooker/pkg/queue"
	"github.com/sirupsen/logrus"
)

// DeadLetters is the part of the DLQ used for recovery.
type DeadLetters interface {
	GetFailedTasks(ctx context.Context, limit int) ([]*queue.FailedTask, error)
	RequeueFailedTask(ctx context.Context, taskID string) error
}

var _ DeadLetters = (*queue.DefaultDLQHandler)(nil)

// RequeueSettlements puts dead-lettered settle_booking tasks back on the
// queue. Settling is idempotent, so a task that already went through is a no-op.
func RequeueSettlements(ctx context.Context, dlq DeadLetters, limit int) (int, error) {
	failed, err := dlq.GetFailedTasks(ctx, limit)
	if err != nil {
		return 0, err
	}

	requeued := 0
	for _, ft := range failed {
		if ft.Task == nil || ft.Task.Type != queue.TaskTypeSettleBooking {
			continue
		}
		if ft.Task.GetString("booking_id") == "" {
			continue
		}
		if err := dlq.RequeueFailedTask(ctx, ft.Task.ID); err != nil {
			logrus.WithError(err).WithField("task_id", ft.Task.ID).Warn("Failed to requeue settlement task")
			continue
		}
		requeued++
	}
	return requeued, nil
}
