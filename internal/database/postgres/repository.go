package repository

import (
	"github.com/ds124wfegd/tourbooker/internal/database"
	"github.com/ds124wfegd/tourbooker/internal/entity"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// NewStore wires every postgres repository on one connection pool.
func NewStore(db *sqlx.DB) *database.Store {
	return &database.Store{
		Attractions:  NewAttractionRepository(db),
		Guides:       NewGuideRepository(db),
		Availability: NewAvailabilityRepository(db),
		Bookings:     NewBookingRepository(db),
		Itineraries:  NewItineraryRepository(db),
	}
}

func capacityStatuses() interface{} {
	statuses := entity.CapacityStatuses()
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return pq.Array(out)
}

func datesToStrings(dates []entity.Date) pq.StringArray {
	out := make(pq.StringArray, 0, len(dates))
	for _, d := range dates {
		out = append(out, d.String())
	}
	return out
}

func stringsToDates(values []string) ([]entity.Date, error) {
	out := make([]entity.Date, 0, len(values))
	for _, v := range values {
		d, err := entity.ParseDate(v)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}
