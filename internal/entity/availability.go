package entity

// HeldCapacity sums party sizes of the bookings that still hold slots.
func HeldCapacity(bookings []*Booking) int {
	held := 0
	for _, b := range bookings {
		if b.Status.HoldsCapacity() {
			held += b.PartySize
		}
	}
	return held
}

// RemainingCapacity is max(0, totalSlots - held). It never goes negative,
// even when a slot was lowered under an old ledger.
func RemainingCapacity(totalSlots int, bookings []*Booking) int {
	return max(0, totalSlots-HeldCapacity(bookings))
}

// AvailabilityStatus describes one guide-date slot as seen by travellers.
type AvailabilityStatus struct {
	GuideID        string `json:"guide_id"`
	Date           Date   `json:"date"`
	TotalSlots     int    `json:"total_slots"`
	BookedSlots    int    `json:"booked_slots"`
	AvailableSlots int    `json:"available_slots"`
	IsAvailable    bool   `json:"is_available"`
}

// NewAvailabilityStatus evaluates a slot against the ledger entries for the same key.
// A nil slot means nothing was published: zero capacity.
func NewAvailabilityStatus(key SlotKey, slot *AvailabilitySlot, bookings []*Booking) AvailabilityStatus {
	total := 0
	if slot != nil {
		total = slot.TotalSlots
	}
	remaining := RemainingCapacity(total, bookings)
	return AvailabilityStatus{
		GuideID:        key.GuideID,
		Date:           key.Date,
		TotalSlots:     total,
		BookedSlots:    HeldCapacity(bookings),
		AvailableSlots: remaining,
		IsAvailable:    remaining > 0,
	}
}

// GuideAvailability is the per-date overview for one guide.
type GuideAvailability struct {
	GuideID      string               `json:"guide_id"`
	GuideName    string               `json:"guide_name"`
	Availability []AvailabilityStatus `json:"availability"`
}
