package service

import (
	"context"

	"github.com/ds124wfegd/tourbooker/internal/database"
	"github.com/ds124wfegd/tourbooker/internal/entity"
	"github.com/sirupsen/logrus"
)

type availabilityService struct {
	guides       database.GuideRepository
	availability database.AvailabilityRepository
	bookings     database.BookingRepository
	locker       Locker
}

func NewAvailabilityService(store *database.Store, locker Locker) AvailabilityService {
	if locker == nil {
		locker = NewKeyedMutex()
	}
	return &availabilityService{
		guides:       store.Guides,
		availability: store.Availability,
		bookings:     store.Bookings,
		locker:       locker,
	}
}

func (s *availabilityService) RemainingCapacity(ctx context.Context, guideID string, date entity.Date) (int, error) {
	status, err := s.slotStatus(ctx, entity.SlotKey{GuideID: guideID, Date: date})
	if err != nil {
		return 0, err
	}
	return status.AvailableSlots, nil
}

func (s *availabilityService) slotStatus(ctx context.Context, key entity.SlotKey) (*entity.AvailabilityStatus, error) {
	slot, err := s.availability.GetSlot(ctx, key)
	if err != nil {
		return nil, err
	}
	held, err := s.bookings.ListBySlot(ctx, key)
	if err != nil {
		return nil, err
	}
	status := entity.NewAvailabilityStatus(key, slot, held)
	return &status, nil
}

func (s *availabilityService) GetSlotAvailability(ctx context.Context, guideID string, date entity.Date) (*entity.AvailabilityStatus, error) {
	if _, err := s.guides.GetByID(ctx, guideID); err != nil {
		return nil, err
	}
	return s.slotStatus(ctx, entity.SlotKey{GuideID: guideID, Date: date})
}

func (s *availabilityService) GetGuideAvailability(ctx context.Context, guideID string) (*entity.GuideAvailability, error) {
	guide, err := s.guides.GetByID(ctx, guideID)
	if err != nil {
		return nil, err
	}

	slots, err := s.availability.ListSlots(ctx, guideID)
	if err != nil {
		return nil, err
	}

	out := &entity.GuideAvailability{
		GuideID:      guide.ID,
		GuideName:    guide.Name,
		Availability: make([]entity.AvailabilityStatus, 0, len(slots)),
	}
	for _, slot := range slots {
		held, err := s.bookings.ListBySlot(ctx, slot.Key())
		if err != nil {
			return nil, err
		}
		out.Availability = append(out.Availability, entity.NewAvailabilityStatus(slot.Key(), slot, held))
	}
	return out, nil
}

// PublishSlot overwrites the acting guide's capacity for one date.
func (s *availabilityService) PublishSlot(ctx context.Context, actor entity.Actor, req *PublishSlotRequest) (*entity.AvailabilityStatus, error) {
	if !actor.IsGuide() {
		return nil, entity.ErrAccessDenied
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	date, err := entity.ParseDate(req.Date)
	if err != nil {
		return nil, err
	}

	guide, err := s.guides.GetByUserID(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}

	key := entity.SlotKey{GuideID: guide.ID, Date: date}
	unlock, err := s.locker.Lock(ctx, slotLockKey(key))
	if err != nil {
		return nil, entity.StoreError("lock slot", err)
	}
	defer unlock()

	slot := &entity.AvailabilitySlot{GuideID: guide.ID, Date: date, TotalSlots: *req.TotalSlots}
	if err := s.availability.UpsertSlot(ctx, slot); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"guide_id":    guide.ID,
		"date":        date.String(),
		"total_slots": slot.TotalSlots,
	}).Info("Availability slot published")

	return s.slotStatus(ctx, key)
}
