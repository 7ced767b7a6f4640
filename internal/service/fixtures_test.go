package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ds124wfegd/tourbooker/internal/database"
	"github.com/ds124wfegd/tourbooker/internal/database/memory"
	"github.com/ds124wfegd/tourbooker/internal/entity"
	"github.com/stretchr/testify/require"
)

var (
	travellerA = entity.Actor{UserID: "user-a", Name: "Alice", Email: "alice@example.com", Role: entity.RoleTraveller}
	travellerB = entity.Actor{UserID: "user-b", Name: "Bob", Email: "bob@example.com", Role: entity.RoleTraveller}
	guideActor = entity.Actor{UserID: "guide-user-1", Name: "Gina", Role: entity.RoleGuide}
	otherGuide = entity.Actor{UserID: "guide-user-2", Name: "Gus", Role: entity.RoleGuide}
)

type recordingEvents struct {
	mu     sync.Mutex
	events []*BookingEvent
}

func (r *recordingEvents) PublishBookingEvent(_ context.Context, e *BookingEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingEvents) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type recordingQueue struct {
	mu    sync.Mutex
	tasks []*Task
}

func (r *recordingQueue) Publish(_ context.Context, t *Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, t)
	return nil
}

type fixture struct {
	store        *database.Store
	db           *memory.DB
	events       *recordingEvents
	queue        *recordingQueue
	now          time.Time
	availability AvailabilityService
	bookings     BookingService
	itineraries  ItineraryService
}

// newFixture seeds two guides:
//
//	g-1 (guide-user-1): a-1 any date, a-2 only on 2024-06-01
//	g-2 (guide-user-2): a-3
func newFixture(t *testing.T, mutate ...func(*Config)) *fixture {
	t.Helper()

	store, db := memory.NewStore()
	f := &fixture{
		store:  store,
		db:     db,
		events: &recordingEvents{},
		queue:  &recordingQueue{},
		now:    time.Date(2024, time.May, 20, 10, 0, 0, 0, time.UTC),
	}

	cfg := Config{SettleLagDays: 1, MaxPartySize: 50, Now: func() time.Time { return f.now }}
	for _, m := range mutate {
		m(&cfg)
	}

	ctx := context.Background()
	require.NoError(t, store.Guides.Create(ctx, &entity.Guide{ID: "g-1", UserID: "guide-user-1", Name: "Gina", Languages: []string{"en"}}))
	require.NoError(t, store.Guides.Create(ctx, &entity.Guide{ID: "g-2", UserID: "guide-user-2", Name: "Gus"}))
	require.NoError(t, store.Attractions.Create(ctx, &entity.Attraction{ID: "a-1", GuideID: "g-1", Name: "Old Town Walk"}))
	require.NoError(t, store.Attractions.Create(ctx, &entity.Attraction{
		ID: "a-2", GuideID: "g-1", Name: "Sunrise Hike",
		Availability: []entity.Date{entity.NewDate(2024, time.June, 1)},
	}))
	require.NoError(t, store.Attractions.Create(ctx, &entity.Attraction{ID: "a-3", GuideID: "g-2", Name: "Harbour Tour"}))

	locker := NewKeyedMutex()
	f.availability = NewAvailabilityService(store, locker)
	f.bookings = NewBookingService(store, locker, f.queue, f.events, cfg)
	f.itineraries = NewItineraryService(store, locker, cfg)
	return f
}

func (f *fixture) publish(t *testing.T, date string, total int) {
	t.Helper()
	_, err := f.availability.PublishSlot(context.Background(), guideActor, &PublishSlotRequest{Date: date, TotalSlots: &total})
	require.NoError(t, err)
}

func (f *fixture) book(actor entity.Actor, date string, party int) (*entity.BookingDetails, error) {
	return f.bookings.SubmitBooking(context.Background(), actor, &SubmitBookingRequest{
		AttractionID: "a-1",
		GuideID:      "g-1",
		Date:         date,
		PartySize:    party,
	})
}

func (f *fixture) remaining(t *testing.T, date string) int {
	t.Helper()
	d, err := entity.ParseDate(date)
	require.NoError(t, err)
	n, err := f.availability.RemainingCapacity(context.Background(), "g-1", d)
	require.NoError(t, err)
	return n
}
