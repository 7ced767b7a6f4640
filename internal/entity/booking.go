package entity

import (
	"time"
)

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
	BookingStatusCompleted BookingStatus = "completed"
)

func ParseBookingStatus(s string) (BookingStatus, error) {
	status := BookingStatus(s)
	if !status.Valid() {
		return "", InvalidRequest("invalid status %q, must be one of: pending, confirmed, cancelled, completed", s)
	}
	return status, nil
}

func (s BookingStatus) Valid() bool {
	switch s {
	case BookingStatusPending, BookingStatusConfirmed, BookingStatusCancelled, BookingStatusCompleted:
		return true
	}
	return false
}

// HoldsCapacity is the single place deciding which bookings consume a guide's slots.
func (s BookingStatus) HoldsCapacity() bool {
	return s == BookingStatusPending || s == BookingStatusConfirmed
}

func (s BookingStatus) IsTerminal() bool {
	return s == BookingStatusCancelled || s == BookingStatusCompleted
}

// CapacityStatuses lists the statuses for which HoldsCapacity is true.
func CapacityStatuses() []BookingStatus {
	return []BookingStatus{BookingStatusPending, BookingStatusConfirmed}
}

type Booking struct {
	ID           string        `json:"id" db:"id"`
	AttractionID string        `json:"attraction_id" db:"attraction_id"`
	GuideID      string        `json:"guide_id" db:"guide_id"`
	CustomerID   string        `json:"customer_id" db:"customer_id"`
	CustomerName string        `json:"customer_name" db:"customer_name"`
	Email        string        `json:"email" db:"email"`
	Date         Date          `json:"date" db:"date"`
	PartySize    int           `json:"party_size" db:"party_size"`
	Status       BookingStatus `json:"status" db:"status"`
	CreatedAt    time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at" db:"updated_at"`
}

// SlotKey identifies the capacity unit a booking draws from.
func (b *Booking) SlotKey() SlotKey {
	return SlotKey{GuideID: b.GuideID, Date: b.Date}
}

// CheckTransition validates moving the booking to next on behalf of role.
//
//	pending   -> confirmed (guide) | cancelled (guide, traveller)
//	confirmed -> completed (guide) | cancelled (traveller)
//	cancelled, completed are terminal
//
// RoleSystem may only settle: confirmed -> completed, pending -> cancelled.
func (b *Booking) CheckTransition(next BookingStatus, role Role) error {
	if next == BookingStatusCancelled {
		switch b.Status {
		case BookingStatusCancelled:
			return ErrAlreadyCancelled
		case BookingStatusCompleted:
			return ErrCannotCancelCompleted
		case BookingStatusPending:
			return nil
		case BookingStatusConfirmed:
			if role == RoleTraveller {
				return nil
			}
		}
		return ErrInvalidStatusTransition
	}

	switch {
	case b.Status == BookingStatusPending && next == BookingStatusConfirmed && role == RoleGuide:
		return nil
	case b.Status == BookingStatusConfirmed && next == BookingStatusCompleted && role != RoleTraveller:
		return nil
	}
	return ErrInvalidStatusTransition
}

// BookingFilter narrows ledger listings. Empty fields match everything.
type BookingFilter struct {
	Status     BookingStatus
	Date       Date
	GuideID    string
	CustomerID string
}

// BookingDetails is a booking enriched with display data.
type BookingDetails struct {
	Booking
	Attraction *Attraction   `json:"attraction"`
	Guide      *GuideSummary `json:"guide"`
}
