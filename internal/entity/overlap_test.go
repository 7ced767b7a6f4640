package entity

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDate(t *testing.T, s string) Date {
	t.Helper()
	d, err := ParseDate(s)
	require.NoError(t, err)
	return d
}

func TestDateRangeOverlaps(t *testing.T) {
	tests := []struct {
		name string
		a, b [2]string
		want bool
	}{
		{"shared boundary day counts", [2]string{"2024-01-10", "2024-01-15"}, [2]string{"2024-01-15", "2024-01-20"}, true},
		{"adjacent days do not overlap", [2]string{"2024-01-01", "2024-01-05"}, [2]string{"2024-01-06", "2024-01-10"}, false},
		{"contained", [2]string{"2024-03-01", "2024-03-31"}, [2]string{"2024-03-10", "2024-03-12"}, true},
		{"identical", [2]string{"2024-03-01", "2024-03-02"}, [2]string{"2024-03-01", "2024-03-02"}, true},
		{"single day ranges", [2]string{"2024-03-01", "2024-03-01"}, [2]string{"2024-03-02", "2024-03-02"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := DateRange{Start: mustDate(t, tt.a[0]), End: mustDate(t, tt.a[1])}
			b := DateRange{Start: mustDate(t, tt.b[0]), End: mustDate(t, tt.b[1])}
			assert.Equal(t, tt.want, a.Overlaps(b))
			assert.Equal(t, tt.want, b.Overlaps(a))
		})
	}
}

func TestFindOverlap(t *testing.T) {
	start, end := mustDate(t, "2024-01-15"), mustDate(t, "2024-01-20")
	existing := []*Itinerary{
		{ID: "undated", Title: "someday"},
		{ID: "half", StartDate: &start},
		{ID: "x", StartDate: &start, EndDate: &end},
	}
	candidate := DateRange{Start: mustDate(t, "2024-01-10"), End: mustDate(t, "2024-01-15")}

	hit := FindOverlap(candidate, existing, "")
	require.NotNil(t, hit)
	assert.Equal(t, "x", hit.ID)

	assert.Nil(t, FindOverlap(candidate, existing, "x"))
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-06-01T10:30:00Z")
	require.NoError(t, err)
	assert.Equal(t, "2024-06-01", d.String())

	_, err = ParseDate("06/01/2024")
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestDateJSON(t *testing.T) {
	var payload struct {
		Start *Date `json:"start"`
		End   Date  `json:"end"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"start":null,"end":"2024-02-29"}`), &payload))
	assert.Nil(t, payload.Start)
	assert.Equal(t, NewDate(2024, 2, 29), payload.End)

	out, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"start":null,"end":"2024-02-29"}`, string(out))
}

func TestItineraryAttractions(t *testing.T) {
	it := &Itinerary{AttractionIDs: []string{"a"}}
	assert.Equal(t, 2, it.AddAttractions([]string{"a", "b", "c", "b"}))
	assert.Equal(t, []string{"a", "b", "c"}, it.AttractionIDs)
	assert.Equal(t, 2, it.RemoveAttractions([]string{"a", "c", "zzz"}))
	assert.Equal(t, []string{"b"}, it.AttractionIDs)
}
