package service

import (
	"context"
	"time"

	"github.com/ds124wfegd/tourbooker/internal/database"
	"github.com/ds124wfegd/tourbooker/internal/entity"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type itineraryService struct {
	itineraries database.ItineraryRepository
	attractions database.AttractionRepository
	locker      Locker
	now         func() time.Time
}

func NewItineraryService(store *database.Store, locker Locker, cfg Config) ItineraryService {
	if locker == nil {
		locker = NewKeyedMutex()
	}
	cfg = cfg.withDefaults()
	return &itineraryService{
		itineraries: store.Itineraries,
		attractions: store.Attractions,
		locker:      locker,
		now:         cfg.Now,
	}
}

func parseRange(start, end string) (entity.DateRange, error) {
	s, err := entity.ParseDate(start)
	if err != nil {
		return entity.DateRange{}, err
	}
	e, err := entity.ParseDate(end)
	if err != nil {
		return entity.DateRange{}, err
	}
	r := entity.DateRange{Start: s, End: e}
	if !r.Valid() {
		return entity.DateRange{}, entity.InvalidRequest("start date must be before or equal to end date")
	}
	return r, nil
}

// CheckOverlap reports whether [start, end] touches any other dated
// itinerary of userID. Bounds are inclusive.
func (s *itineraryService) CheckOverlap(ctx context.Context, userID string, req *CheckOverlapRequest) (bool, error) {
	if err := validateRequest(req); err != nil {
		return false, err
	}
	rng, err := parseRange(req.StartDate, req.EndDate)
	if err != nil {
		return false, err
	}

	existing, err := s.itineraries.ListByUser(ctx, userID)
	if err != nil {
		return false, err
	}
	return entity.FindOverlap(rng, existing, req.ExcludeID) != nil, nil
}

func checkDates(it *entity.Itinerary) error {
	if it.StartDate == nil || it.EndDate == nil {
		return nil
	}
	if it.StartDate.After(*it.EndDate) {
		return entity.InvalidRequest("start date must be before or equal to end date")
	}
	return nil
}

func (s *itineraryService) CreateItinerary(ctx context.Context, actor entity.Actor, req *CreateItineraryRequest) (*entity.ItineraryDetails, error) {
	if actor.UserID == "" {
		return nil, entity.ErrAccessDenied
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	start, err := parseOptionalDate(req.StartDate)
	if err != nil {
		return nil, err
	}
	end, err := parseOptionalDate(req.EndDate)
	if err != nil {
		return nil, err
	}

	attractionIDs := dedupe(req.AttractionIDs)
	attractions, err := s.resolveAttractions(ctx, attractionIDs)
	if err != nil {
		return nil, err
	}

	source := req.Source
	if source == "" {
		source = entity.ItinerarySourceManual
	}
	items := req.Items
	if items == nil {
		items = []entity.ItineraryItem{}
	}

	now := s.now().UTC()
	it := &entity.Itinerary{
		ID:            uuid.NewString(),
		UserID:        actor.UserID,
		TravelerName:  actor.Name,
		Title:         req.Title,
		StartDate:     start,
		EndDate:       end,
		Items:         items,
		AttractionIDs: attractionIDs,
		Notes:         req.Notes,
		Source:        source,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := checkDates(it); err != nil {
		return nil, err
	}

	unlock, err := s.lockUser(ctx, it.UserID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := guarded(ctx, it, s.itineraries.CreateGuarded); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"itinerary_id": it.ID,
		"user_id":      it.UserID,
		"source":       it.Source,
	}).Info("Itinerary created")

	return &entity.ItineraryDetails{Itinerary: *it, Attractions: attractions}, nil
}

func (s *itineraryService) lockUser(ctx context.Context, userID string) (func(), error) {
	unlock, err := s.locker.Lock(ctx, itineraryLockKey(userID))
	if err != nil {
		return nil, entity.StoreError("lock itineraries", err)
	}
	return unlock, nil
}

// guarded runs write and logs a rejected range. The caller holds the
// traveller lock; the store re-checks overlap in the same atomic step.
func guarded(ctx context.Context, it *entity.Itinerary, write func(context.Context, *entity.Itinerary) error) error {
	if err := write(ctx, it); err != nil {
		if rng, ok := it.DateRange(); ok {
			logrus.WithFields(logrus.Fields{
				"user_id": it.UserID,
				"start":   rng.Start.String(),
				"end":     rng.End.String(),
			}).WithError(err).Info("Itinerary write rejected")
		}
		return err
	}
	return nil
}

// resolveAttractions fails with ErrAttractionNotFound unless every id exists.
func (s *itineraryService) resolveAttractions(ctx context.Context, ids []string) ([]*entity.Attraction, error) {
	if len(ids) == 0 {
		return []*entity.Attraction{}, nil
	}
	attractions, err := s.attractions.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(attractions) != len(ids) {
		return nil, entity.ErrAttractionNotFound
	}
	return attractions, nil
}

func (s *itineraryService) owned(ctx context.Context, actor entity.Actor, id string) (*entity.Itinerary, error) {
	it, err := s.itineraries.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if it.UserID != actor.UserID {
		return nil, entity.ErrAccessDenied
	}
	return it, nil
}

// UpdateItinerary merges req into the stored itinerary. Dates are resolved
// against stored values first, so a one-sided change is still guarded.
// The traveller lock spans read, merge and write.
func (s *itineraryService) UpdateItinerary(ctx context.Context, actor entity.Actor, id string, req *UpdateItineraryRequest) (*entity.ItineraryDetails, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	unlock, err := s.lockUser(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	it, err := s.owned(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		it.Title = *req.Title
	}
	if req.Notes != nil {
		it.Notes = *req.Notes
	}
	if req.Items != nil {
		it.Items = *req.Items
	}
	if req.StartDate != nil {
		if it.StartDate, err = parseOptionalDate(*req.StartDate); err != nil {
			return nil, err
		}
	}
	if req.EndDate != nil {
		if it.EndDate, err = parseOptionalDate(*req.EndDate); err != nil {
			return nil, err
		}
	}
	if err := checkDates(it); err != nil {
		return nil, err
	}
	if req.AttractionIDs != nil {
		it.AttractionIDs = dedupe(*req.AttractionIDs)
		if _, err := s.resolveAttractions(ctx, it.AttractionIDs); err != nil {
			return nil, err
		}
	}

	it.UpdatedAt = s.now().UTC()
	if err := guarded(ctx, it, s.itineraries.UpdateGuarded); err != nil {
		return nil, err
	}
	return s.details(ctx, it)
}

func (s *itineraryService) GetItinerary(ctx context.Context, actor entity.Actor, id string) (*entity.ItineraryDetails, error) {
	it, err := s.owned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	return s.details(ctx, it)
}

func (s *itineraryService) ListItineraries(ctx context.Context, actor entity.Actor) ([]*entity.Itinerary, error) {
	return s.itineraries.ListByUser(ctx, actor.UserID)
}

func (s *itineraryService) DeleteItinerary(ctx context.Context, actor entity.Actor, id string) error {
	unlock, err := s.lockUser(ctx, actor.UserID)
	if err != nil {
		return err
	}
	defer unlock()

	if _, err := s.owned(ctx, actor, id); err != nil {
		return err
	}
	return s.itineraries.Delete(ctx, id)
}

func (s *itineraryService) AddAttractions(ctx context.Context, actor entity.Actor, id string, attractionIDs []string) (*entity.ItineraryDetails, int, error) {
	return s.editAttractions(ctx, actor, id, attractionIDs, true)
}

func (s *itineraryService) RemoveAttractions(ctx context.Context, actor entity.Actor, id string, attractionIDs []string) (*entity.ItineraryDetails, int, error) {
	return s.editAttractions(ctx, actor, id, attractionIDs, false)
}

func (s *itineraryService) editAttractions(ctx context.Context, actor entity.Actor, id string, attractionIDs []string, add bool) (*entity.ItineraryDetails, int, error) {
	if len(attractionIDs) == 0 {
		return nil, 0, entity.InvalidRequest("attraction_ids array is required")
	}

	unlock, err := s.lockUser(ctx, actor.UserID)
	if err != nil {
		return nil, 0, err
	}
	defer unlock()

	it, err := s.owned(ctx, actor, id)
	if err != nil {
		return nil, 0, err
	}

	var changed int
	if add {
		if _, err := s.resolveAttractions(ctx, dedupe(attractionIDs)); err != nil {
			return nil, 0, err
		}
		changed = it.AddAttractions(attractionIDs)
	} else {
		changed = it.RemoveAttractions(attractionIDs)
	}

	if changed > 0 {
		it.UpdatedAt = s.now().UTC()
		if err := guarded(ctx, it, s.itineraries.UpdateGuarded); err != nil {
			return nil, 0, err
		}
	}

	details, err := s.details(ctx, it)
	if err != nil {
		return nil, 0, err
	}
	return details, changed, nil
}

func (s *itineraryService) details(ctx context.Context, it *entity.Itinerary) (*entity.ItineraryDetails, error) {
	attractions := []*entity.Attraction{}
	if len(it.AttractionIDs) > 0 {
		found, err := s.attractions.GetByIDs(ctx, it.AttractionIDs)
		if err != nil {
			return nil, err
		}
		attractions = found
	}
	return &entity.ItineraryDetails{Itinerary: *it, Attractions: attractions}, nil
}
