package entity

import "time"

type ItinerarySource string

const (
	ItinerarySourceManual ItinerarySource = "manual"
	ItinerarySourceAI     ItinerarySource = "ai"
)

type ItineraryItem struct {
	Day        string   `json:"day" validate:"required"`
	Activities []string `json:"activities"`
}

type Itinerary struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	TravelerName  string          `json:"traveler_name"`
	Title         string          `json:"title"`
	StartDate     *Date           `json:"start_date"`
	EndDate       *Date           `json:"end_date"`
	Items         []ItineraryItem `json:"items"`
	AttractionIDs []string        `json:"attraction_ids"`
	Notes         string          `json:"notes"`
	Source        ItinerarySource `json:"source"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// DateRange returns the itinerary's dates when both ends are set.
func (it *Itinerary) DateRange() (DateRange, bool) {
	if it.StartDate == nil || it.EndDate == nil || it.StartDate.IsZero() || it.EndDate.IsZero() {
		return DateRange{}, false
	}
	return DateRange{Start: *it.StartDate, End: *it.EndDate}, true
}

// AddAttractions appends ids not yet linked and returns how many were new.
func (it *Itinerary) AddAttractions(ids []string) int {
	seen := make(map[string]struct{}, len(it.AttractionIDs))
	for _, id := range it.AttractionIDs {
		seen[id] = struct{}{}
	}
	added := 0
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		it.AttractionIDs = append(it.AttractionIDs, id)
		added++
	}
	return added
}

// RemoveAttractions drops the given ids and returns how many were linked.
func (it *Itinerary) RemoveAttractions(ids []string) int {
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	kept := it.AttractionIDs[:0]
	removed := 0
	for _, id := range it.AttractionIDs {
		if _, ok := drop[id]; ok {
			removed++
			continue
		}
		kept = append(kept, id)
	}
	it.AttractionIDs = kept
	return removed
}

// ItineraryDetails is an itinerary with its linked attractions resolved.
type ItineraryDetails struct {
	Itinerary
	Attractions []*Attraction `json:"attractions"`
}
