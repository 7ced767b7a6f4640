// Package memory keeps every repository in process memory behind one
// mutex. It backs tests and the storage.driver=memory mode.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ds124wfegd/tourbooker/internal/database"
	"github.com/ds124wfegd/tourbooker/internal/entity"
)

type DB struct {
	mu          sync.RWMutex
	attractions map[string]*entity.Attraction
	guides      map[string]*entity.Guide
	slots       map[entity.SlotKey]*entity.AvailabilitySlot
	bookings    map[string]*entity.Booking
	itineraries map[string]*entity.Itinerary

	// FailWith, when set, is returned by every operation. Tests use it to
	// simulate an unavailable store.
	FailWith error
}

func New() *DB {
	return &DB{
		attractions: make(map[string]*entity.Attraction),
		guides:      make(map[string]*entity.Guide),
		slots:       make(map[entity.SlotKey]*entity.AvailabilitySlot),
		bookings:    make(map[string]*entity.Booking),
		itineraries: make(map[string]*entity.Itinerary),
	}
}

// NewStore returns a Store whose repositories share one fresh DB.
func NewStore() (*database.Store, *DB) {
	db := New()
	return db.Store(), db
}

func (db *DB) Store() *database.Store {
	return &database.Store{
		Attractions:  attractionRepository{db},
		Guides:       guideRepository{db},
		Availability: availabilityRepository{db},
		Bookings:     bookingRepository{db},
		Itineraries:  itineraryRepository{db},
	}
}

func (db *DB) fail(op string) error {
	if db.FailWith != nil {
		return entity.StoreError(op, db.FailWith)
	}
	return nil
}

// Attractions

type attractionRepository struct{ db *DB }

func (r attractionRepository) Create(_ context.Context, a *entity.Attraction) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.fail("insert attraction"); err != nil {
		return err
	}

	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	r.db.attractions[a.ID] = copyAttraction(a)
	return nil
}

func (r attractionRepository) GetByID(_ context.Context, id string) (*entity.Attraction, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	if err := r.db.fail("get attraction"); err != nil {
		return nil, err
	}

	a, ok := r.db.attractions[id]
	if !ok {
		return nil, entity.ErrAttractionNotFound
	}
	return copyAttraction(a), nil
}

func (r attractionRepository) GetByIDs(_ context.Context, ids []string) ([]*entity.Attraction, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	if err := r.db.fail("get attractions"); err != nil {
		return nil, err
	}

	var out []*entity.Attraction
	for _, id := range ids {
		if a, ok := r.db.attractions[id]; ok {
			out = append(out, copyAttraction(a))
		}
	}
	return out, nil
}

// Guides

type guideRepository struct{ db *DB }

func (r guideRepository) Create(_ context.Context, g *entity.Guide) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.fail("insert guide"); err != nil {
		return err
	}

	now := time.Now().UTC()
	g.CreatedAt, g.UpdatedAt = now, now
	c := *g
	r.db.guides[g.ID] = &c
	return nil
}

func (r guideRepository) GetByID(_ context.Context, id string) (*entity.Guide, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	if err := r.db.fail("get guide"); err != nil {
		return nil, err
	}

	g, ok := r.db.guides[id]
	if !ok {
		return nil, entity.ErrGuideNotFound
	}
	c := *g
	return &c, nil
}

func (r guideRepository) GetByUserID(_ context.Context, userID string) (*entity.Guide, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	if err := r.db.fail("get guide"); err != nil {
		return nil, err
	}

	for _, g := range r.db.guides {
		if g.UserID == userID {
			c := *g
			return &c, nil
		}
	}
	return nil, entity.ErrGuideNotFound
}

// Availability

type availabilityRepository struct{ db *DB }

func (r availabilityRepository) GetSlot(_ context.Context, key entity.SlotKey) (*entity.AvailabilitySlot, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	if err := r.db.fail("get availability slot"); err != nil {
		return nil, err
	}

	s, ok := r.db.slots[key]
	if !ok {
		return nil, nil
	}
	c := *s
	return &c, nil
}

func (r availabilityRepository) ListSlots(_ context.Context, guideID string) ([]*entity.AvailabilitySlot, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	if err := r.db.fail("list availability slots"); err != nil {
		return nil, err
	}

	var out []*entity.AvailabilitySlot
	for k, s := range r.db.slots {
		if k.GuideID == guideID {
			c := *s
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (r availabilityRepository) UpsertSlot(_ context.Context, slot *entity.AvailabilitySlot) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.fail("upsert availability slot"); err != nil {
		return err
	}

	if slot.TotalSlots < entity.HeldCapacity(r.db.bookingsFor(slot.Key())) {
		return entity.ErrCapacityBelowBooked
	}

	slot.UpdatedAt = time.Now().UTC()
	c := *slot
	r.db.slots[slot.Key()] = &c
	return nil
}

// Bookings

type bookingRepository struct{ db *DB }

// bookingsFor must be called with mu held.
func (db *DB) bookingsFor(key entity.SlotKey) []*entity.Booking {
	var out []*entity.Booking
	for _, b := range db.bookings {
		if b.SlotKey() == key {
			out = append(out, b)
		}
	}
	return out
}

func (r bookingRepository) CreateWithinCapacity(_ context.Context, b *entity.Booking) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.fail("insert booking"); err != nil {
		return err
	}

	total := 0
	if s, ok := r.db.slots[b.SlotKey()]; ok {
		total = s.TotalSlots
	}
	remaining := entity.RemainingCapacity(total, r.db.bookingsFor(b.SlotKey()))
	if remaining < b.PartySize {
		return &entity.CapacityError{Remaining: remaining, Requested: b.PartySize}
	}

	now := time.Now().UTC()
	b.CreatedAt, b.UpdatedAt = now, now
	c := *b
	r.db.bookings[b.ID] = &c
	return nil
}

func (r bookingRepository) GetByID(_ context.Context, id string) (*entity.Booking, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	if err := r.db.fail("get booking"); err != nil {
		return nil, err
	}

	b, ok := r.db.bookings[id]
	if !ok {
		return nil, entity.ErrBookingNotFound
	}
	c := *b
	return &c, nil
}

func (r bookingRepository) List(_ context.Context, f entity.BookingFilter) ([]*entity.Booking, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	if err := r.db.fail("list bookings"); err != nil {
		return nil, err
	}

	var out []*entity.Booking
	for _, b := range r.db.bookings {
		if f.Status != "" && b.Status != f.Status {
			continue
		}
		if !f.Date.IsZero() && !b.Date.Equal(f.Date) {
			continue
		}
		if f.GuideID != "" && b.GuideID != f.GuideID {
			continue
		}
		if f.CustomerID != "" && b.CustomerID != f.CustomerID {
			continue
		}
		c := *b
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r bookingRepository) ListBySlot(_ context.Context, key entity.SlotKey) ([]*entity.Booking, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	if err := r.db.fail("list slot bookings"); err != nil {
		return nil, err
	}

	var out []*entity.Booking
	for _, b := range r.db.bookingsFor(key) {
		c := *b
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r bookingRepository) UpdateStatus(_ context.Context, id string, from, to entity.BookingStatus) (*entity.Booking, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.fail("update booking status"); err != nil {
		return nil, err
	}

	b, ok := r.db.bookings[id]
	if !ok {
		return nil, entity.ErrBookingNotFound
	}
	if b.Status != from {
		return nil, entity.ErrConcurrentUpdate
	}
	b.Status = to
	b.UpdatedAt = time.Now().UTC()
	c := *b
	return &c, nil
}

func (r bookingRepository) ListUnsettled(_ context.Context, before entity.Date, limit int) ([]*entity.Booking, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	if err := r.db.fail("list unsettled bookings"); err != nil {
		return nil, err
	}

	var out []*entity.Booking
	for _, b := range r.db.bookings {
		if b.Status.HoldsCapacity() && b.Date.Before(before) {
			c := *b
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Itineraries

type itineraryRepository struct{ db *DB }

func (r itineraryRepository) GetByID(_ context.Context, id string) (*entity.Itinerary, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	if err := r.db.fail("get itinerary"); err != nil {
		return nil, err
	}

	it, ok := r.db.itineraries[id]
	if !ok {
		return nil, entity.ErrItineraryNotFound
	}
	return copyItinerary(it), nil
}

func (r itineraryRepository) ListByUser(_ context.Context, userID string) ([]*entity.Itinerary, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	if err := r.db.fail("list itineraries"); err != nil {
		return nil, err
	}

	out := r.db.itinerariesOf(userID)
	for i, it := range out {
		out[i] = copyItinerary(it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (db *DB) itinerariesOf(userID string) []*entity.Itinerary {
	var out []*entity.Itinerary
	for _, it := range db.itineraries {
		if it.UserID == userID {
			out = append(out, it)
		}
	}
	return out
}

func (r itineraryRepository) CreateGuarded(_ context.Context, it *entity.Itinerary) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.fail("insert itinerary"); err != nil {
		return err
	}

	if err := r.db.checkOverlap(it); err != nil {
		return err
	}
	r.db.itineraries[it.ID] = copyItinerary(it)
	return nil
}

func (r itineraryRepository) UpdateGuarded(_ context.Context, it *entity.Itinerary) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.fail("update itinerary"); err != nil {
		return err
	}

	if _, ok := r.db.itineraries[it.ID]; !ok {
		return entity.ErrItineraryNotFound
	}
	if err := r.db.checkOverlap(it); err != nil {
		return err
	}
	r.db.itineraries[it.ID] = copyItinerary(it)
	return nil
}

func (db *DB) checkOverlap(it *entity.Itinerary) error {
	rng, ok := it.DateRange()
	if !ok {
		return nil
	}
	if entity.FindOverlap(rng, db.itinerariesOf(it.UserID), it.ID) != nil {
		return entity.ErrDateRangeConflict
	}
	return nil
}

func (r itineraryRepository) Delete(_ context.Context, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.fail("delete itinerary"); err != nil {
		return err
	}

	if _, ok := r.db.itineraries[id]; !ok {
		return entity.ErrItineraryNotFound
	}
	delete(r.db.itineraries, id)
	return nil
}

func copyAttraction(a *entity.Attraction) *entity.Attraction {
	c := *a
	c.Tags = append([]string(nil), a.Tags...)
	c.Availability = append([]entity.Date(nil), a.Availability...)
	return &c
}

func copyItinerary(it *entity.Itinerary) *entity.Itinerary {
	c := *it
	if it.StartDate != nil {
		d := *it.StartDate
		c.StartDate = &d
	}
	if it.EndDate != nil {
		d := *it.EndDate
		c.EndDate = &d
	}
	c.Items = append([]entity.ItineraryItem(nil), it.Items...)
	c.AttractionIDs = append([]string(nil), it.AttractionIDs...)
	return &c
}
