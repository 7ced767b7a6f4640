package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/ds124wfegd/tourbooker/internal/database"
	"github.com/ds124wfegd/tourbooker/internal/entity"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type bookingService struct {
	attractions database.AttractionRepository
	guides      database.GuideRepository
	bookings    database.BookingRepository
	locker      Locker
	queue       TaskPublisher
	events      EventPublisher
	cfg         Config
}

// NewBookingService wires the admission controller. locker must be the same
// instance given to the availability service; queue and events may be nil.
func NewBookingService(
	store *database.Store,
	locker Locker,
	queue TaskPublisher,
	events EventPublisher,
	cfg Config,
) BookingService {
	if locker == nil {
		locker = NewKeyedMutex()
	}
	return &bookingService{
		attractions: store.Attractions,
		guides:      store.Guides,
		bookings:    store.Bookings,
		locker:      locker,
		queue:       queue,
		events:      events,
		cfg:         cfg.withDefaults(),
	}
}

// partySizeLimit is the configured cap, or the widest value a slot column holds.
func (s *bookingService) partySizeLimit() int {
	if s.cfg.MaxPartySize > 0 {
		return s.cfg.MaxPartySize
	}
	return math.MaxInt32
}

// SubmitBooking validates the request and admits it against the slot's
// remaining capacity. Capacity is re-checked and the booking written in one
// step of the store while this process also holds the slot lock.
func (s *bookingService) SubmitBooking(ctx context.Context, actor entity.Actor, req *SubmitBookingRequest) (*entity.BookingDetails, error) {
	if !actor.IsTraveller() {
		return nil, entity.ErrAccessDenied
	}
	if req.PartySize <= 0 {
		return nil, entity.InvalidRequest("party size must be greater than 0")
	}
	if limit := s.partySizeLimit(); req.PartySize > limit {
		return nil, entity.InvalidRequest("party size must not exceed %d", limit)
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	date, err := entity.ParseDate(req.Date)
	if err != nil {
		return nil, err
	}

	attraction, err := s.attractions.GetByID(ctx, req.AttractionID)
	if err != nil {
		return nil, err
	}
	guide, err := s.guides.GetByID(ctx, req.GuideID)
	if err != nil {
		return nil, err
	}
	if attraction.GuideID != guide.ID {
		return nil, entity.ErrAttractionGuideMismatch
	}
	if !attraction.OffersDate(date) {
		return nil, entity.ErrDateNotOfferedByAttraction
	}

	booking := &entity.Booking{
		ID:           uuid.NewString(),
		AttractionID: attraction.ID,
		GuideID:      guide.ID,
		CustomerID:   actor.UserID,
		CustomerName: actor.Name,
		Email:        actor.Email,
		Date:         date,
		PartySize:    req.PartySize,
		Status:       entity.BookingStatusPending,
	}

	if err := s.admit(ctx, booking); err != nil {
		return nil, err
	}

	s.scheduleSettlement(ctx, booking)
	publishEvent(ctx, s.events, newBookingEvent(EventBookingCreated, booking, "", s.cfg.Now()))

	return &entity.BookingDetails{
		Booking:    *booking,
		Attraction: attraction,
		Guide:      guide.Summary(),
	}, nil
}

func (s *bookingService) admit(ctx context.Context, booking *entity.Booking) error {
	key := booking.SlotKey()
	log := logrus.WithFields(logrus.Fields{
		"guide_id":   key.GuideID,
		"date":       key.Date.String(),
		"party_size": booking.PartySize,
	})

	unlock, err := s.locker.Lock(ctx, slotLockKey(key))
	if err != nil {
		return entity.StoreError("lock slot", err)
	}
	defer unlock()

	err = s.bookings.CreateWithinCapacity(ctx, booking)
	var capErr *entity.CapacityError
	switch {
	case errors.As(err, &capErr):
		log.WithField("remaining", capErr.Remaining).Info("Booking rejected: insufficient capacity")
		return err
	case err != nil:
		log.WithError(err).Error("Booking admission failed")
		return err
	}

	log.WithField("booking_id", booking.ID).Info("Booking admitted")
	return nil
}

func (s *bookingService) settleAt(date entity.Date) time.Time {
	return date.AddDays(s.cfg.SettleLagDays).Time()
}

// settleCutoff: bookings dated strictly before it are due for settlement.
func (s *bookingService) settleCutoff() entity.Date {
	return s.cfg.today().AddDays(1 - s.cfg.SettleLagDays)
}

func (s *bookingService) scheduleSettlement(ctx context.Context, booking *entity.Booking) {
	if s.queue == nil {
		return
	}

	task := &Task{
		ID:   fmt.Sprintf("%s_%s", TaskTypeSettleBooking, booking.ID),
		Type: TaskTypeSettleBooking,
		Data: map[string]interface{}{
			"booking_id": booking.ID,
		},
		ExecuteAt:  s.settleAt(booking.Date),
		MaxRetries: 3,
	}
	if err := s.queue.Publish(ctx, task); err != nil {
		// the sweep worker settles it later
		logrus.WithError(err).WithField("booking_id", booking.ID).Warn("Failed to schedule settlement task")
	}
}

func (s *bookingService) GetBooking(ctx context.Context, actor entity.Actor, id string) (*entity.BookingDetails, error) {
	booking, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeView(ctx, actor, booking); err != nil {
		return nil, err
	}
	return s.details(ctx, booking)
}

func (s *bookingService) authorizeView(ctx context.Context, actor entity.Actor, booking *entity.Booking) error {
	switch actor.Role {
	case entity.RoleTraveller:
		if booking.CustomerID != actor.UserID {
			return entity.ErrAccessDenied
		}
		return nil
	case entity.RoleGuide:
		return s.authorizeGuide(ctx, actor, booking)
	case entity.RoleSystem:
		return nil
	}
	return entity.ErrAccessDenied
}

// authorizeGuide checks that actor is the guide the booking was made with.
func (s *bookingService) authorizeGuide(ctx context.Context, actor entity.Actor, booking *entity.Booking) error {
	if !actor.IsGuide() {
		return entity.ErrAccessDenied
	}
	guide, err := s.guides.GetByUserID(ctx, actor.UserID)
	if errors.Is(err, entity.ErrGuideNotFound) {
		return entity.ErrAccessDenied
	}
	if err != nil {
		return err
	}
	if guide.ID != booking.GuideID {
		return entity.ErrAccessDenied
	}
	return nil
}

func (s *bookingService) ListBookings(ctx context.Context, actor entity.Actor, req *ListBookingsRequest) ([]*entity.BookingDetails, error) {
	if req == nil {
		req = &ListBookingsRequest{}
	}

	var filter entity.BookingFilter
	if req.Status != "" {
		status, err := entity.ParseBookingStatus(req.Status)
		if err != nil {
			return nil, err
		}
		filter.Status = status
	}
	if req.Date != "" {
		date, err := entity.ParseDate(req.Date)
		if err != nil {
			return nil, err
		}
		filter.Date = date
	}

	switch actor.Role {
	case entity.RoleTraveller:
		filter.CustomerID = actor.UserID
	case entity.RoleGuide:
		guide, err := s.guides.GetByUserID(ctx, actor.UserID)
		if errors.Is(err, entity.ErrGuideNotFound) {
			return []*entity.BookingDetails{}, nil
		}
		if err != nil {
			return nil, err
		}
		filter.GuideID = guide.ID
		filter.CustomerID = req.CustomerID
	case entity.RoleSystem:
		filter.GuideID = req.GuideID
		filter.CustomerID = req.CustomerID
	default:
		return nil, entity.ErrAccessDenied
	}

	bookings, err := s.bookings.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return s.detailsList(ctx, bookings)
}

func (s *bookingService) UpdateBookingStatus(ctx context.Context, actor entity.Actor, id string, status string) (*entity.BookingDetails, error) {
	if status == "" {
		return nil, entity.InvalidRequest("status is required")
	}
	next, err := entity.ParseBookingStatus(status)
	if err != nil {
		return nil, err
	}
	if !actor.IsGuide() {
		return nil, entity.ErrAccessDenied
	}

	booking, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeGuide(ctx, actor, booking); err != nil {
		return nil, err
	}

	updated, err := s.transition(ctx, booking, next, entity.RoleGuide)
	if err != nil {
		return nil, err
	}
	return s.details(ctx, updated)
}

func (s *bookingService) ConfirmBooking(ctx context.Context, actor entity.Actor, id string) (*entity.BookingDetails, error) {
	return s.UpdateBookingStatus(ctx, actor, id, string(entity.BookingStatusConfirmed))
}

func (s *bookingService) CompleteBooking(ctx context.Context, actor entity.Actor, id string) (*entity.BookingDetails, error) {
	return s.UpdateBookingStatus(ctx, actor, id, string(entity.BookingStatusCompleted))
}

// CancelBooking is the traveller's cancellation of their own booking.
func (s *bookingService) CancelBooking(ctx context.Context, actor entity.Actor, id string) (*entity.BookingDetails, error) {
	if !actor.IsTraveller() {
		return nil, entity.ErrAccessDenied
	}

	booking, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if booking.CustomerID != actor.UserID {
		return nil, entity.ErrAccessDenied
	}

	if err := booking.CheckTransition(entity.BookingStatusCancelled, entity.RoleTraveller); err != nil {
		return nil, err
	}
	if booking.Status == entity.BookingStatusConfirmed &&
		!s.cfg.AllowLateCancellation &&
		booking.Date.Before(s.cfg.today()) {
		return nil, entity.ErrCancellationWindowClosed
	}

	updated, err := s.transition(ctx, booking, entity.BookingStatusCancelled, entity.RoleTraveller)
	if err != nil {
		return nil, err
	}
	return s.details(ctx, updated)
}

// transition writes the status change as a compare-and-set on the status
// the checks were made against.
func (s *bookingService) transition(ctx context.Context, booking *entity.Booking, next entity.BookingStatus, role entity.Role) (*entity.Booking, error) {
	if err := booking.CheckTransition(next, role); err != nil {
		return nil, err
	}

	previous := booking.Status
	updated, err := s.bookings.UpdateStatus(ctx, booking.ID, previous, next)
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"booking_id": updated.ID,
		"from":       previous,
		"to":         updated.Status,
		"role":       role,
	}).Info("Booking status changed")

	publishEvent(ctx, s.events, newBookingEvent(EventBookingStatusChanged, updated, previous, s.cfg.Now()))
	return updated, nil
}

// SettleBooking closes one past booking: confirmed becomes completed,
// pending becomes cancelled. Already settled or not yet due is a no-op.
func (s *bookingService) SettleBooking(ctx context.Context, id string) error {
	booking, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return err
	}
	_, err = s.settle(ctx, booking)
	return err
}

func (s *bookingService) settle(ctx context.Context, booking *entity.Booking) (bool, error) {
	if !booking.Status.HoldsCapacity() || !booking.Date.Before(s.settleCutoff()) {
		return false, nil
	}

	next := entity.BookingStatusCancelled
	if booking.Status == entity.BookingStatusConfirmed {
		next = entity.BookingStatusCompleted
	}

	_, err := s.transition(ctx, booking, next, entity.RoleSystem)
	if errors.Is(err, entity.ErrConcurrentUpdate) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// SettlePastBookings settles up to batchSize due bookings and reports how many changed.
func (s *bookingService) SettlePastBookings(ctx context.Context, batchSize int) (int, error) {
	due, err := s.bookings.ListUnsettled(ctx, s.settleCutoff(), batchSize)
	if err != nil {
		return 0, err
	}

	settled := 0
	for _, booking := range due {
		if err := ctx.Err(); err != nil {
			return settled, err
		}
		ok, err := s.settle(ctx, booking)
		if err != nil {
			logrus.WithError(err).WithField("booking_id", booking.ID).Error("Failed to settle booking")
			continue
		}
		if ok {
			settled++
		}
	}
	return settled, nil
}

func (s *bookingService) details(ctx context.Context, booking *entity.Booking) (*entity.BookingDetails, error) {
	list, err := s.detailsList(ctx, []*entity.Booking{booking})
	if err != nil {
		return nil, err
	}
	return list[0], nil
}

// detailsList attaches attraction and guide data. Missing catalog entries
// leave the field nil rather than failing the read.
func (s *bookingService) detailsList(ctx context.Context, bookings []*entity.Booking) ([]*entity.BookingDetails, error) {
	ids := make([]string, 0, len(bookings))
	for _, b := range bookings {
		ids = append(ids, b.AttractionID)
	}
	attractions, err := s.attractions.GetByIDs(ctx, dedupe(ids))
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*entity.Attraction, len(attractions))
	for _, a := range attractions {
		byID[a.ID] = a
	}

	guides := make(map[string]*entity.GuideSummary)
	out := make([]*entity.BookingDetails, 0, len(bookings))
	for _, b := range bookings {
		summary, ok := guides[b.GuideID]
		if !ok {
			guide, err := s.guides.GetByID(ctx, b.GuideID)
			switch {
			case errors.Is(err, entity.ErrGuideNotFound):
			case err != nil:
				return nil, err
			default:
				summary = guide.Summary()
			}
			guides[b.GuideID] = summary
		}

		out = append(out, &entity.BookingDetails{
			Booking:    *b,
			Attraction: byID[b.AttractionID],
			Guide:      summary,
		})
	}
	return out, nil
}
