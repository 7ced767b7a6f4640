package service

import (
	"context"
	"time"

	"github.com/ds124wfegd/tourbooker/internal/entity"
)

// AvailabilityService answers capacity questions and lets guides publish slots.
type AvailabilityService interface {
	// RemainingCapacity never fails for an unknown guide: it reports 0.
	RemainingCapacity(ctx context.Context, guideID string, date entity.Date) (int, error)
	GetSlotAvailability(ctx context.Context, guideID string, date entity.Date) (*entity.AvailabilityStatus, error)
	GetGuideAvailability(ctx context.Context, guideID string) (*entity.GuideAvailability, error)
	PublishSlot(ctx context.Context, actor entity.Actor, req *PublishSlotRequest) (*entity.AvailabilityStatus, error)
}

// BookingService is the admission controller plus the booking lifecycle.
type BookingService interface {
	SubmitBooking(ctx context.Context, actor entity.Actor, req *SubmitBookingRequest) (*entity.BookingDetails, error)
	GetBooking(ctx context.Context, actor entity.Actor, id string) (*entity.BookingDetails, error)
	ListBookings(ctx context.Context, actor entity.Actor, req *ListBookingsRequest) ([]*entity.BookingDetails, error)

	// Guide actions
	UpdateBookingStatus(ctx context.Context, actor entity.Actor, id string, status string) (*entity.BookingDetails, error)
	ConfirmBooking(ctx context.Context, actor entity.Actor, id string) (*entity.BookingDetails, error)
	CompleteBooking(ctx context.Context, actor entity.Actor, id string) (*entity.BookingDetails, error)

	// Traveller action
	CancelBooking(ctx context.Context, actor entity.Actor, id string) (*entity.BookingDetails, error)

	// Housekeeping
	SettleBooking(ctx context.Context, id string) error
	SettlePastBookings(ctx context.Context, batchSize int) (int, error)
}

// ItineraryService enforces non-overlapping itineraries per traveller.
type ItineraryService interface {
	CheckOverlap(ctx context.Context, userID string, req *CheckOverlapRequest) (bool, error)
	CreateItinerary(ctx context.Context, actor entity.Actor, req *CreateItineraryRequest) (*entity.ItineraryDetails, error)
	UpdateItinerary(ctx context.Context, actor entity.Actor, id string, req *UpdateItineraryRequest) (*entity.ItineraryDetails, error)
	GetItinerary(ctx context.Context, actor entity.Actor, id string) (*entity.ItineraryDetails, error)
	ListItineraries(ctx context.Context, actor entity.Actor) ([]*entity.Itinerary, error)
	DeleteItinerary(ctx context.Context, actor entity.Actor, id string) error
	AddAttractions(ctx context.Context, actor entity.Actor, id string, attractionIDs []string) (*entity.ItineraryDetails, int, error)
	RemoveAttractions(ctx context.Context, actor entity.Actor, id string, attractionIDs []string) (*entity.ItineraryDetails, int, error)
}

// Config holds the booking policies.
type Config struct {
	// AllowLateCancellation lets a traveller cancel a confirmed booking
	// after its date has passed.
	AllowLateCancellation bool
	// SettleLagDays is how many days after its date a booking is settled.
	SettleLagDays int
	MaxPartySize  int
	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

func (c Config) withDefaults() Config {
	if c.SettleLagDays < 1 {
		c.SettleLagDays = 1
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

func (c Config) today() entity.Date {
	return entity.DateOf(c.Now())
}

// PublishSlotRequest sets a guide's total capacity for one date.
type PublishSlotRequest struct {
	Date       string `json:"date" validate:"required"`
	TotalSlots *int   `json:"total_slots" validate:"required,min=0,max=2147483647"`
}

type SubmitBookingRequest struct {
	AttractionID string `json:"attraction_id" validate:"required"`
	GuideID      string `json:"guide_id" validate:"required"`
	Date         string `json:"date" validate:"required"`
	PartySize    int    `json:"party_size"`
}

type ListBookingsRequest struct {
	Status     string `form:"status"`
	Date       string `form:"date"`
	GuideID    string `form:"guide_id"`
	CustomerID string `form:"customer_id"`
}

type CheckOverlapRequest struct {
	StartDate string `form:"start_date" validate:"required"`
	EndDate   string `form:"end_date" validate:"required"`
	ExcludeID string `form:"exclude_id"`
}

type CreateItineraryRequest struct {
	Title         string                 `json:"title" validate:"required,max=255"`
	StartDate     string                 `json:"start_date"`
	EndDate       string                 `json:"end_date"`
	Notes         string                 `json:"notes"`
	Items         []entity.ItineraryItem `json:"items" validate:"dive"`
	AttractionIDs []string               `json:"attraction_ids" validate:"dive,required"`
	Source        entity.ItinerarySource `json:"source" validate:"omitempty,oneof=manual ai"`
}

// UpdateItineraryRequest is a partial update: nil fields keep their value,
// an empty date string clears that date.
type UpdateItineraryRequest struct {
	Title         *string                 `json:"title" validate:"omitempty,min=1,max=255"`
	StartDate     *string                 `json:"start_date"`
	EndDate       *string                 `json:"end_date"`
	Notes         *string                 `json:"notes"`
	Items         *[]entity.ItineraryItem `json:"items" validate:"omitempty,dive"`
	AttractionIDs *[]string               `json:"attraction_ids" validate:"omitempty,dive,required"`
}
