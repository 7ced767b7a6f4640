package service

import (
	"context"
	"time"

	"github.com/ds124wfegd/tourbooker/internal/entity"
	"github.com/ds124wfegd/tourbooker/pkg/kafka"
	"github.com/sirupsen/logrus"
)

const (
	EventBookingCreated       = "booking.created"
	EventBookingStatusChanged = "booking.status_changed"
)

// BookingEvent is the message published on every ledger change.
type BookingEvent struct {
	Type           string               `json:"type"`
	BookingID      string               `json:"booking_id"`
	GuideID        string               `json:"guide_id"`
	AttractionID   string               `json:"attraction_id"`
	CustomerID     string               `json:"customer_id"`
	Date           entity.Date          `json:"date"`
	PartySize      int                  `json:"party_size"`
	Status         entity.BookingStatus `json:"status"`
	PreviousStatus entity.BookingStatus `json:"previous_status,omitempty"`
	OccurredAt     time.Time            `json:"occurred_at"`
}

func newBookingEvent(eventType string, b *entity.Booking, previous entity.BookingStatus, at time.Time) *BookingEvent {
	return &BookingEvent{
		Type:           eventType,
		BookingID:      b.ID,
		GuideID:        b.GuideID,
		AttractionID:   b.AttractionID,
		CustomerID:     b.CustomerID,
		Date:           b.Date,
		PartySize:      b.PartySize,
		Status:         b.Status,
		PreviousStatus: previous,
		OccurredAt:     at.UTC(),
	}
}

// EventPublisher delivers booking events. Delivery is best effort.
type EventPublisher interface {
	PublishBookingEvent(ctx context.Context, event *BookingEvent) error
}

// KafkaEventPublisher keys messages by booking id so one booking's events
// stay ordered on a partition.
type KafkaEventPublisher struct {
	producer kafka.Producer
}

func NewKafkaEventPublisher(producer kafka.Producer) *KafkaEventPublisher {
	return &KafkaEventPublisher{producer: producer}
}

func (p *KafkaEventPublisher) PublishBookingEvent(ctx context.Context, event *BookingEvent) error {
	return p.producer.SendMessage(ctx, event.BookingID, event)
}

func publishEvent(ctx context.Context, events EventPublisher, event *BookingEvent) {
	if events == nil {
		return
	}
	if err := events.PublishBookingEvent(ctx, event); err != nil {
		logrus.WithFields(logrus.Fields{
			"booking_id": event.BookingID,
			"event":      event.Type,
		}).WithError(err).Warn("Failed to publish booking event")
	}
}
