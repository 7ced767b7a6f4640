package entity

import "time"

type Guide struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Languages []string  `json:"languages"`
	Rating    float64   `json:"rating"`
	Bio       string    `json:"bio"`
	Expertise []string  `json:"expertise"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GuideSummary is the public part of a guide attached to bookings.
type GuideSummary struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Languages []string `json:"languages"`
	Rating    float64  `json:"rating"`
	Bio       string   `json:"bio"`
	Expertise []string `json:"expertise"`
}

func (g *Guide) Summary() *GuideSummary {
	if g == nil {
		return nil
	}
	return &GuideSummary{
		ID:        g.ID,
		Name:      g.Name,
		Languages: g.Languages,
		Rating:    g.Rating,
		Bio:       g.Bio,
		Expertise: g.Expertise,
	}
}

// SlotKey addresses one guide-date capacity unit.
type SlotKey struct {
	GuideID string
	Date    Date
}

func (k SlotKey) String() string {
	return k.GuideID + "/" + k.Date.String()
}

// AvailabilitySlot is the total capacity a guide published for a date.
// There is at most one per SlotKey; edits overwrite TotalSlots.
type AvailabilitySlot struct {
	GuideID    string    `json:"guide_id" db:"guide_id"`
	Date       Date      `json:"date" db:"date"`
	TotalSlots int       `json:"total_slots" db:"total_slots"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

func (s *AvailabilitySlot) Key() SlotKey {
	return SlotKey{GuideID: s.GuideID, Date: s.Date}
}
