package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/ds124wfegd/tourbooker/internal/entity"
	"github.com/ds124wfegd/tourbooker/pkg/queue"
	"github.com/sirupsen/logrus"
)

// TaskHandler dispatches queue tasks to the booking service.
type TaskHandler struct {
	settler Settler
}

func NewTaskHandler(settler Settler) *TaskHandler {
	return &TaskHandler{settler: settler}
}

func (h *TaskHandler) HandleTask(ctx context.Context, task *queue.Task) error {
	logrus.WithFields(logrus.Fields{
		"task_id":   task.ID,
		"task_type": task.Type,
		"attempt":   task.Attempts,
	}).Debug("Handling task")

	switch task.Type {
	case queue.TaskTypeSettleBooking:
		return h.handleSettleBooking(ctx, task)
	default:
		return fmt.Errorf("unknown task type: %s", task.Type)
	}
}

func (h *TaskHandler) handleSettleBooking(ctx context.Context, task *queue.Task) error {
	bookingID := task.GetString("booking_id")
	if bookingID == "" {
		return entity.InvalidRequest("task %s has no booking_id", task.ID)
	}

	err := h.settler.SettleBooking(ctx, bookingID)
	if errors.Is(err, entity.ErrBookingNotFound) {
		logrus.WithField("booking_id", bookingID).Warn("Settlement task for missing booking dropped")
		return nil
	}
	return err
}
