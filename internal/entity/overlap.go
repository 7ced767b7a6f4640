package entity

// DateRange is an inclusive [Start, End] span of calendar days.
type DateRange struct {
	Start Date
	End   Date
}

func (r DateRange) Valid() bool {
	return !r.Start.IsZero() && !r.End.IsZero() && !r.Start.After(r.End)
}

// Overlaps uses inclusive bounds: a trip ending on day X conflicts with
// one starting on day X.
func (r DateRange) Overlaps(o DateRange) bool {
	return !r.Start.After(o.End) && !o.Start.After(r.End)
}

// FindOverlap returns the first dated itinerary other than excludeID whose
// range overlaps candidate, or nil. Undated itineraries never conflict.
func FindOverlap(candidate DateRange, existing []*Itinerary, excludeID string) *Itinerary {
	for _, it := range existing {
		if excludeID != "" && it.ID == excludeID {
			continue
		}
		r, ok := it.DateRange()
		if !ok {
			continue
		}
		if candidate.Overlaps(r) {
			return it
		}
	}
	return nil
}
