package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ds124wfegd/tourbooker/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitBooking_ConcurrentRequestsNeverOverbook(t *testing.T) {
	f := newFixture(t)
	f.publish(t, "2024-06-01", 5)

	const requests = 25
	var (
		wg       sync.WaitGroup
		admitted atomic.Int32
		rejected atomic.Int32
		start    = make(chan struct{})
	)
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			actor := entity.Actor{UserID: fmt.Sprintf("user-%d", i), Role: entity.RoleTraveller}
			<-start
			_, err := f.book(actor, "2024-06-01", 1)
			switch {
			case err == nil:
				admitted.Add(1)
			case errors.Is(err, entity.ErrInsufficientCapacity):
				rejected.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	assert.EqualValues(t, 5, admitted.Load())
	assert.EqualValues(t, requests-5, rejected.Load())
	assert.Equal(t, 0, f.remaining(t, "2024-06-01"))
}

func TestSubmitBooking_EndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.publish(t, "2024-06-01", 3)

	a, err := f.book(travellerA, "2024-06-01", 2)
	require.NoError(t, err)
	assert.Equal(t, entity.BookingStatusPending, a.Status)
	assert.Equal(t, "Old Town Walk", a.Attraction.Name)
	assert.Equal(t, "Gina", a.Guide.Name)
	assert.Equal(t, "alice@example.com", a.Email)

	_, err = f.book(travellerB, "2024-06-01", 2)
	var capErr *entity.CapacityError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, 1, capErr.Remaining)
	assert.Equal(t, 2, capErr.Requested)

	b, err := f.book(travellerB, "2024-06-01", 1)
	require.NoError(t, err)
	assert.Equal(t, entity.BookingStatusPending, b.Status)

	confirmed, err := f.bookings.ConfirmBooking(ctx, guideActor, a.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.BookingStatusConfirmed, confirmed.Status)
	assert.Equal(t, 0, f.remaining(t, "2024-06-01"))

	cancelled, err := f.bookings.CancelBooking(ctx, travellerA, a.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.BookingStatusCancelled, cancelled.Status)
	assert.Equal(t, 2, f.remaining(t, "2024-06-01"))

	assert.Equal(t, []string{
		EventBookingCreated,
		EventBookingCreated,
		EventBookingStatusChanged,
		EventBookingStatusChanged,
	}, f.events.types())
}

func TestSubmitBooking_ZeroCapacityWithoutSlot(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, 0, f.remaining(t, "2024-07-01"))

	_, err := f.book(travellerA, "2024-07-01", 1)
	var capErr *entity.CapacityError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, 0, capErr.Remaining)
	assert.Equal(t, 1, capErr.Requested)
}

func TestRemainingCapacity_UnknownGuideIsZero(t *testing.T) {
	f := newFixture(t)

	n, err := f.availability.RemainingCapacity(context.Background(), "nobody", entity.NewDate(2024, time.June, 1))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSubmitBooking_ValidationOrder(t *testing.T) {
	f := newFixture(t)
	f.publish(t, "2024-06-02", 10)

	tests := []struct {
		name  string
		actor entity.Actor
		req   SubmitBookingRequest
		want  error
	}{
		{
			name:  "non positive party size wins over everything",
			actor: travellerA,
			req:   SubmitBookingRequest{AttractionID: "missing", GuideID: "missing", Date: "2024-06-02", PartySize: 0},
			want:  entity.ErrInvalidRequest,
		},
		{
			name:  "missing field",
			actor: travellerA,
			req:   SubmitBookingRequest{GuideID: "g-1", Date: "2024-06-02", PartySize: 1},
			want:  entity.ErrInvalidRequest,
		},
		{
			name:  "malformed date",
			actor: travellerA,
			req:   SubmitBookingRequest{AttractionID: "a-1", GuideID: "g-1", Date: "02/06/2024", PartySize: 1},
			want:  entity.ErrInvalidRequest,
		},
		{
			name:  "attraction before guide",
			actor: travellerA,
			req:   SubmitBookingRequest{AttractionID: "missing", GuideID: "missing", Date: "2024-06-02", PartySize: 1},
			want:  entity.ErrAttractionNotFound,
		},
		{
			name:  "guide not found",
			actor: travellerA,
			req:   SubmitBookingRequest{AttractionID: "a-1", GuideID: "missing", Date: "2024-06-02", PartySize: 1},
			want:  entity.ErrGuideNotFound,
		},
		{
			name:  "attraction of another guide",
			actor: travellerA,
			req:   SubmitBookingRequest{AttractionID: "a-3", GuideID: "g-1", Date: "2024-06-02", PartySize: 1},
			want:  entity.ErrAttractionGuideMismatch,
		},
		{
			name:  "date not offered",
			actor: travellerA,
			req:   SubmitBookingRequest{AttractionID: "a-2", GuideID: "g-1", Date: "2024-06-02", PartySize: 1},
			want:  entity.ErrDateNotOfferedByAttraction,
		},
		{
			name:  "guides cannot book",
			actor: guideActor,
			req:   SubmitBookingRequest{AttractionID: "a-1", GuideID: "g-1", Date: "2024-06-02", PartySize: 1},
			want:  entity.ErrAccessDenied,
		},
		{
			name:  "party size above limit",
			actor: travellerA,
			req:   SubmitBookingRequest{AttractionID: "a-1", GuideID: "g-1", Date: "2024-06-02", PartySize: 51},
			want:  entity.ErrInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			_, err := f.bookings.SubmitBooking(context.Background(), tt.actor, &req)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	assert.Equal(t, 10, f.remaining(t, "2024-06-02"))
}

func TestSubmitBooking_PartySizeBoundWithoutConfiguredCap(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.MaxPartySize = 0 })
	f.publish(t, "2024-06-02", 10)

	tests := []struct {
		name      string
		partySize int
		want      error
	}{
		{name: "beyond integer column", partySize: math.MaxInt32 + 1, want: entity.ErrInvalidRequest},
		{name: "large but storable", partySize: 100, want: entity.ErrInsufficientCapacity},
		{name: "fits", partySize: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.book(travellerA, "2024-06-02", tt.partySize)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
			assert.False(t, entity.IsRetryable(err))
		})
	}
}

func TestSubmitBooking_AcceptsTimestampDate(t *testing.T) {
	f := newFixture(t)
	f.publish(t, "2024-06-01", 2)

	b, err := f.book(travellerA, "2024-06-01T15:30:00.000Z", 1)
	require.NoError(t, err)
	assert.Equal(t, "2024-06-01", b.Date.String())
	assert.Equal(t, 1, f.remaining(t, "2024-06-01"))
}

func TestSubmitBooking_SchedulesSettlement(t *testing.T) {
	f := newFixture(t)
	f.publish(t, "2024-06-01", 2)

	b, err := f.book(travellerA, "2024-06-01", 1)
	require.NoError(t, err)

	require.Len(t, f.queue.tasks, 1)
	task := f.queue.tasks[0]
	assert.Equal(t, TaskTypeSettleBooking, task.Type)
	assert.Equal(t, b.ID, task.Data["booking_id"])
	assert.Equal(t, time.Date(2024, time.June, 2, 0, 0, 0, 0, time.UTC), task.ExecuteAt)
}

func TestCancelBooking_Monotonic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.publish(t, "2024-06-01", 4)

	b, err := f.book(travellerA, "2024-06-01", 3)
	require.NoError(t, err)
	assert.Equal(t, 1, f.remaining(t, "2024-06-01"))

	_, err = f.bookings.CancelBooking(ctx, travellerA, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, f.remaining(t, "2024-06-01"))

	_, err = f.bookings.CancelBooking(ctx, travellerA, b.ID)
	assert.ErrorIs(t, err, entity.ErrAlreadyCancelled)
	assert.Equal(t, 4, f.remaining(t, "2024-06-01"))
}

func TestCancelBooking_Rules(t *testing.T) {
	ctx := context.Background()

	t.Run("only the owner", func(t *testing.T) {
		f := newFixture(t)
		f.publish(t, "2024-06-01", 4)
		b, err := f.book(travellerA, "2024-06-01", 1)
		require.NoError(t, err)

		_, err = f.bookings.CancelBooking(ctx, travellerB, b.ID)
		assert.ErrorIs(t, err, entity.ErrAccessDenied)
		_, err = f.bookings.CancelBooking(ctx, guideActor, b.ID)
		assert.ErrorIs(t, err, entity.ErrAccessDenied)
	})

	t.Run("completed cannot be cancelled", func(t *testing.T) {
		f := newFixture(t)
		f.publish(t, "2024-06-01", 4)
		b, err := f.book(travellerA, "2024-06-01", 1)
		require.NoError(t, err)
		_, err = f.bookings.ConfirmBooking(ctx, guideActor, b.ID)
		require.NoError(t, err)
		_, err = f.bookings.CompleteBooking(ctx, guideActor, b.ID)
		require.NoError(t, err)

		_, err = f.bookings.CancelBooking(ctx, travellerA, b.ID)
		assert.ErrorIs(t, err, entity.ErrCannotCancelCompleted)
	})

	t.Run("confirmed booking after its date", func(t *testing.T) {
		f := newFixture(t)
		f.publish(t, "2024-06-01", 4)
		b, err := f.book(travellerA, "2024-06-01", 1)
		require.NoError(t, err)
		_, err = f.bookings.ConfirmBooking(ctx, guideActor, b.ID)
		require.NoError(t, err)

		f.now = time.Date(2024, time.June, 1, 23, 0, 0, 0, time.UTC)
		_, err = f.bookings.CancelBooking(ctx, travellerA, b.ID)
		require.NoError(t, err, "the tour day itself is still cancellable")
	})

	t.Run("late cancellation closed", func(t *testing.T) {
		f := newFixture(t)
		f.publish(t, "2024-06-01", 4)
		b, err := f.book(travellerA, "2024-06-01", 1)
		require.NoError(t, err)
		_, err = f.bookings.ConfirmBooking(ctx, guideActor, b.ID)
		require.NoError(t, err)

		f.now = time.Date(2024, time.June, 2, 8, 0, 0, 0, time.UTC)
		_, err = f.bookings.CancelBooking(ctx, travellerA, b.ID)
		assert.ErrorIs(t, err, entity.ErrCancellationWindowClosed)
		assert.ErrorIs(t, err, entity.ErrConflict)
	})

	t.Run("late pending cancellation allowed", func(t *testing.T) {
		f := newFixture(t)
		f.publish(t, "2024-06-01", 4)
		b, err := f.book(travellerA, "2024-06-01", 1)
		require.NoError(t, err)

		f.now = time.Date(2024, time.June, 2, 8, 0, 0, 0, time.UTC)
		_, err = f.bookings.CancelBooking(ctx, travellerA, b.ID)
		assert.NoError(t, err)
	})

	t.Run("late cancellation allowed by config", func(t *testing.T) {
		f := newFixture(t, func(c *Config) { c.AllowLateCancellation = true })
		f.publish(t, "2024-06-01", 4)
		b, err := f.book(travellerA, "2024-06-01", 1)
		require.NoError(t, err)
		_, err = f.bookings.ConfirmBooking(ctx, guideActor, b.ID)
		require.NoError(t, err)

		f.now = time.Date(2024, time.June, 5, 8, 0, 0, 0, time.UTC)
		_, err = f.bookings.CancelBooking(ctx, travellerA, b.ID)
		assert.NoError(t, err)
	})
}

func TestUpdateBookingStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.publish(t, "2024-06-01", 4)
	b, err := f.book(travellerA, "2024-06-01", 1)
	require.NoError(t, err)

	_, err = f.bookings.UpdateBookingStatus(ctx, guideActor, b.ID, "")
	assert.ErrorIs(t, err, entity.ErrInvalidRequest)

	_, err = f.bookings.UpdateBookingStatus(ctx, guideActor, b.ID, "archived")
	assert.ErrorIs(t, err, entity.ErrInvalidRequest)

	_, err = f.bookings.UpdateBookingStatus(ctx, otherGuide, b.ID, "confirmed")
	assert.ErrorIs(t, err, entity.ErrAccessDenied)

	_, err = f.bookings.UpdateBookingStatus(ctx, travellerA, b.ID, "confirmed")
	assert.ErrorIs(t, err, entity.ErrAccessDenied)

	_, err = f.bookings.UpdateBookingStatus(ctx, guideActor, b.ID, "completed")
	assert.ErrorIs(t, err, entity.ErrInvalidStatusTransition)

	_, err = f.bookings.UpdateBookingStatus(ctx, guideActor, "missing", "confirmed")
	assert.ErrorIs(t, err, entity.ErrBookingNotFound)

	updated, err := f.bookings.UpdateBookingStatus(ctx, guideActor, b.ID, "confirmed")
	require.NoError(t, err)
	assert.Equal(t, entity.BookingStatusConfirmed, updated.Status)

	// a guide cannot cancel once confirmed
	_, err = f.bookings.UpdateBookingStatus(ctx, guideActor, b.ID, "cancelled")
	assert.ErrorIs(t, err, entity.ErrInvalidStatusTransition)
}

func TestGetAndListBookings_Ownership(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.publish(t, "2024-06-01", 10)

	a, err := f.book(travellerA, "2024-06-01", 1)
	require.NoError(t, err)
	_, err = f.book(travellerB, "2024-06-01", 2)
	require.NoError(t, err)

	_, err = f.bookings.GetBooking(ctx, travellerB, a.ID)
	assert.ErrorIs(t, err, entity.ErrAccessDenied)
	_, err = f.bookings.GetBooking(ctx, otherGuide, a.ID)
	assert.ErrorIs(t, err, entity.ErrAccessDenied)

	got, err := f.bookings.GetBooking(ctx, guideActor, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	own, err := f.bookings.ListBookings(ctx, travellerA, &ListBookingsRequest{GuideID: "g-2"})
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, a.ID, own[0].ID)

	all, err := f.bookings.ListBookings(ctx, guideActor, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	filtered, err := f.bookings.ListBookings(ctx, guideActor, &ListBookingsRequest{CustomerID: travellerB.UserID, Status: "pending", Date: "2024-06-01"})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, 2, filtered[0].PartySize)
	assert.NotNil(t, filtered[0].Attraction)

	none, err := f.bookings.ListBookings(ctx, otherGuide, nil)
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = f.bookings.ListBookings(ctx, travellerA, &ListBookingsRequest{Status: "bogus"})
	assert.ErrorIs(t, err, entity.ErrInvalidRequest)
}

func TestSettlePastBookings(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.publish(t, "2024-06-01", 10)
	f.publish(t, "2024-06-10", 10)

	confirmed, err := f.book(travellerA, "2024-06-01", 1)
	require.NoError(t, err)
	_, err = f.bookings.ConfirmBooking(ctx, guideActor, confirmed.ID)
	require.NoError(t, err)
	pending, err := f.book(travellerB, "2024-06-01", 1)
	require.NoError(t, err)
	future, err := f.book(travellerB, "2024-06-10", 1)
	require.NoError(t, err)

	f.now = time.Date(2024, time.June, 1, 20, 0, 0, 0, time.UTC)
	n, err := f.bookings.SettlePastBookings(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "nothing is due on the tour day")

	f.now = time.Date(2024, time.June, 2, 0, 30, 0, 0, time.UTC)
	n, err = f.bookings.SettlePastBookings(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	system := entity.Actor{Role: entity.RoleSystem}
	got, err := f.bookings.GetBooking(ctx, system, confirmed.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.BookingStatusCompleted, got.Status)

	got, err = f.bookings.GetBooking(ctx, system, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.BookingStatusCancelled, got.Status)

	got, err = f.bookings.GetBooking(ctx, system, future.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.BookingStatusPending, got.Status)

	// settling again is a no-op
	require.NoError(t, f.bookings.SettleBooking(ctx, confirmed.ID))
	n, err = f.bookings.SettlePastBookings(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSubmitBooking_StoreUnavailable(t *testing.T) {
	f := newFixture(t)
	f.publish(t, "2024-06-01", 3)
	f.db.FailWith = errors.New("i/o timeout")

	_, err := f.book(travellerA, "2024-06-01", 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, entity.ErrStoreUnavailable)
	assert.True(t, entity.IsRetryable(err))

	f.db.FailWith = nil
	assert.Equal(t, 3, f.remaining(t, "2024-06-01"))
}

type failingLocker struct{}

func (failingLocker) Lock(context.Context, string) (func(), error) {
	return nil, errors.New("redis: connection refused")
}

func TestSubmitBooking_LockFailureIsRetryable(t *testing.T) {
	f := newFixture(t)
	f.publish(t, "2024-06-01", 3)
	svc := NewBookingService(f.store, failingLocker{}, nil, nil, Config{})

	_, err := svc.SubmitBooking(context.Background(), travellerA, &SubmitBookingRequest{
		AttractionID: "a-1", GuideID: "g-1", Date: "2024-06-01", PartySize: 1,
	})
	assert.True(t, entity.IsRetryable(err))
}
