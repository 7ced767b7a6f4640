package entity

import (
	"time"
)

// Attraction is read-only catalog data as far as booking is concerned.
type Attraction struct {
	ID           string    `json:"id"`
	GuideID      string    `json:"guide_id"`
	Name         string    `json:"name"`
	Location     string    `json:"location"`
	Description  string    `json:"description"`
	Category     string    `json:"category"`
	Duration     string    `json:"duration"`
	Price        float64   `json:"price"`
	Rating       float64   `json:"rating"`
	Tags         []string  `json:"tags"`
	Image        string    `json:"image"`
	Availability []Date    `json:"availability"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// OffersDate reports whether the attraction runs on d.
// An attraction without an explicit date list runs on any date.
func (a *Attraction) OffersDate(d Date) bool {
	if len(a.Availability) == 0 {
		return true
	}
	for _, offered := range a.Availability {
		if offered.Equal(d) {
			return true
		}
	}
	return false
}
