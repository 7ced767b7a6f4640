package database

import (
	"context"

	"github.com/ds124wfegd/tourbooker/internal/entity"
)

// AttractionRepository is the read side of the attraction catalog.
// Create exists for seeding; the catalog is owned elsewhere.
type AttractionRepository interface {
	Create(ctx context.Context, attraction *entity.Attraction) error
	GetByID(ctx context.Context, id string) (*entity.Attraction, error)
	GetByIDs(ctx context.Context, ids []string) ([]*entity.Attraction, error)
}

// GuideRepository is the read side of the guide directory.
type GuideRepository interface {
	Create(ctx context.Context, guide *entity.Guide) error
	GetByID(ctx context.Context, id string) (*entity.Guide, error)
	GetByUserID(ctx context.Context, userID string) (*entity.Guide, error)
}

// AvailabilityRepository is the capacity store: one slot per guide and date.
type AvailabilityRepository interface {
	// GetSlot returns nil without error when nothing was published for key.
	GetSlot(ctx context.Context, key entity.SlotKey) (*entity.AvailabilitySlot, error)
	ListSlots(ctx context.Context, guideID string) ([]*entity.AvailabilitySlot, error)
	// UpsertSlot overwrites the slot. It fails with ErrCapacityBelowBooked
	// when TotalSlots is lower than the capacity held right now.
	UpsertSlot(ctx context.Context, slot *entity.AvailabilitySlot) error
}

// BookingRepository is the booking ledger.
type BookingRepository interface {
	// CreateWithinCapacity re-reads the slot and its held bookings and inserts
	// the booking in the same atomic step, or returns *entity.CapacityError.
	CreateWithinCapacity(ctx context.Context, booking *entity.Booking) error
	GetByID(ctx context.Context, id string) (*entity.Booking, error)
	List(ctx context.Context, filter entity.BookingFilter) ([]*entity.Booking, error)
	// ListBySlot returns every booking of the slot, whatever its status.
	ListBySlot(ctx context.Context, key entity.SlotKey) ([]*entity.Booking, error)
	// UpdateStatus moves a booking from -> to. ErrConcurrentUpdate if the
	// stored status is no longer from.
	UpdateStatus(ctx context.Context, id string, from, to entity.BookingStatus) (*entity.Booking, error)
	// ListUnsettled returns capacity-holding bookings dated before the given day.
	ListUnsettled(ctx context.Context, before entity.Date, limit int) ([]*entity.Booking, error)
}

// ItineraryRepository stores traveller itineraries.
type ItineraryRepository interface {
	GetByID(ctx context.Context, id string) (*entity.Itinerary, error)
	ListByUser(ctx context.Context, userID string) ([]*entity.Itinerary, error)
	// CreateGuarded and UpdateGuarded re-check the per-user overlap invariant
	// and write in one atomic step, or return ErrDateRangeConflict.
	CreateGuarded(ctx context.Context, itinerary *entity.Itinerary) error
	UpdateGuarded(ctx context.Context, itinerary *entity.Itinerary) error
	Delete(ctx context.Context, id string) error
}

// Store bundles every repository backed by one storage engine.
type Store struct {
	Attractions  AttractionRepository
	Guides       GuideRepository
	Availability AvailabilityRepository
	Bookings     BookingRepository
	Itineraries  ItineraryRepository
}
