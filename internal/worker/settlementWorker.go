package worker

import (
	"context"
	"time"

	"github.com/ds124wfegd/tourbooker/internal/service"

	"github.com/sirupsen/logrus"
)

// Settler is the part of the booking service the workers need.
type Settler interface {
	SettleBooking(ctx context.Context, id string) error
	SettlePastBookings(ctx context.Context, batchSize int) (int, error)
}

var _ Settler = service.BookingService(nil)

// SettlementWorker periodically settles bookings whose date has passed. It
// catches whatever the per-booking queue tasks missed.
type SettlementWorker struct {
	settler   Settler
	interval  time.Duration
	batchSize int
}

func NewSettlementWorker(settler Settler, interval time.Duration, batchSize int) *SettlementWorker {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &SettlementWorker{
		settler:   settler,
		interval:  interval,
		batchSize: batchSize,
	}
}

// Start runs one sweep immediately, then one per interval until ctx ends.
func (w *SettlementWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	logrus.WithField("interval", w.interval.String()).Info("Settlement worker started")
	w.Sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			logrus.Info("Settlement worker stopped")
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep settles due bookings batch by batch until a batch comes back short.
func (w *SettlementWorker) Sweep(ctx context.Context) int {
	total := 0
	for {
		if ctx.Err() != nil {
			return total
		}

		n, err := w.settler.SettlePastBookings(ctx, w.batchSize)
		total += n
		if err != nil {
			logrus.WithError(err).Error("Failed to settle past bookings")
			return total
		}
		if n < w.batchSize {
			break
		}
	}

	if total > 0 {
		logrus.WithField("settled", total).Info("Settlement sweep completed")
	}
	return total
}
