package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ds124wfegd/tourbooker/internal/database/memory"
	"github.com/ds124wfegd/tourbooker/internal/entity"
	"github.com/ds124wfegd/tourbooker/internal/service"
	"github.com/ds124wfegd/tourbooker/internal/transport/middleware"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

var (
	traveller = entity.Actor{UserID: "user-a", Name: "Alice", Email: "alice@example.com", Role: entity.RoleTraveller}
	guide     = entity.Actor{UserID: "guide-user-1", Name: "Gina", Role: entity.RoleGuide}
)

type apiResponse struct {
	Success        bool            `json:"success"`
	Error          string          `json:"error"`
	Data           json.RawMessage `json:"data"`
	Meta           map[string]any  `json:"meta"`
	AvailableSlots *int            `json:"available_slots"`
	RequestedSlots *int            `json:"requested_slots"`
}

type testServer struct {
	router *gin.Engine
	db     *memory.DB
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, db := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, store.Guides.Create(ctx, &entity.Guide{ID: "g-1", UserID: "guide-user-1", Name: "Gina"}))
	require.NoError(t, store.Attractions.Create(ctx, &entity.Attraction{ID: "a-1", GuideID: "g-1", Name: "Old Town Walk"}))
	require.NoError(t, store.Attractions.Create(ctx, &entity.Attraction{ID: "a-2", GuideID: "g-1", Name: "Castle Tour"}))

	now := time.Date(2024, time.May, 20, 10, 0, 0, 0, time.UTC)
	cfg := service.Config{SettleLagDays: 1, MaxPartySize: 20, Now: func() time.Time { return now }}

	locker := service.NewKeyedMutex()
	availability := service.NewAvailabilityService(store, locker)
	bookings := service.NewBookingService(store, locker, nil, nil, cfg)
	itineraries := service.NewItineraryService(store, locker, cfg)

	router := InitRoutes(Handlers{
		Booking:   NewBookingHandler(bookings, availability),
		Guide:     NewGuideHandler(availability),
		Itinerary: NewItineraryHandler(itineraries),
	}, RouterConfig{JWTSecret: testSecret, RequestTimeout: 5 * time.Second})

	return &testServer{router: router, db: db}
}

func (s *testServer) do(t *testing.T, as *entity.Actor, method, path string, body interface{}) (int, apiResponse) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if as != nil {
		token, err := middleware.IssueToken(testSecret, *as, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var resp apiResponse
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	}
	return rec.Code, resp
}

func (s *testServer) publish(t *testing.T, date string, total int) {
	t.Helper()
	code, resp := s.do(t, &guide, http.MethodPatch, "/api/v1/guides/availability", gin.H{"date": date, "total_slots": total})
	require.Equal(t, http.StatusOK, code, resp.Error)
}

func bookingBody(date string, party int) gin.H {
	return gin.H{"attraction_id": "a-1", "guide_id": "g-1", "date": date, "party_size": party}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestHealthIncludesBackendStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := InitRoutes(Handlers{
		Booking:   &BookingHandler{},
		Guide:     &GuideHandler{},
		Itinerary: &ItineraryHandler{},
	}, RouterConfig{
		AppVersion: "1.2.3",
		Status: func(context.Context) map[string]interface{} {
			return map[string]interface{}{"queue": gin.H{"main_queue": 2}}
		},
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "1.2.3", body["version"])
	assert.Equal(t, map[string]interface{}{"main_queue": float64(2)}, body["queue"])
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t)

	code, _ := s.do(t, nil, http.MethodPost, "/api/v1/bookings", bookingBody("2024-06-10", 1))
	assert.Equal(t, http.StatusUnauthorized, code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/bookings", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	forged, err := middleware.IssueToken("other-secret", traveller, time.Hour)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/api/v1/bookings", nil)
	req.Header.Set("Authorization", "Bearer "+forged)
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBookingFlow(t *testing.T) {
	s := newTestServer(t)
	s.publish(t, "2024-06-10", 3)

	code, resp := s.do(t, &traveller, http.MethodPost, "/api/v1/bookings", bookingBody("2024-06-10", 2))
	require.Equal(t, http.StatusCreated, code, resp.Error)

	var booking entity.BookingDetails
	require.NoError(t, json.Unmarshal(resp.Data, &booking))
	assert.Equal(t, entity.BookingStatusPending, booking.Status)
	assert.Equal(t, "2024-06-10", booking.Date.String())

	t.Run("overbooking reports remaining slots", func(t *testing.T) {
		code, resp := s.do(t, &traveller, http.MethodPost, "/api/v1/bookings", bookingBody("2024-06-10", 2))
		assert.Equal(t, http.StatusBadRequest, code)
		require.NotNil(t, resp.AvailableSlots)
		require.NotNil(t, resp.RequestedSlots)
		assert.Equal(t, 1, *resp.AvailableSlots)
		assert.Equal(t, 2, *resp.RequestedSlots)
	})

	t.Run("public availability", func(t *testing.T) {
		code, resp := s.do(t, nil, http.MethodGet, "/api/v1/bookings/availability/g-1?date=2024-06-10", nil)
		require.Equal(t, http.StatusOK, code)
		var status entity.AvailabilityStatus
		require.NoError(t, json.Unmarshal(resp.Data, &status))
		assert.Equal(t, 3, status.TotalSlots)
		assert.Equal(t, 1, status.AvailableSlots)

		code, resp = s.do(t, nil, http.MethodGet, "/api/v1/bookings/availability/g-1", nil)
		require.Equal(t, http.StatusOK, code)
		var overview entity.GuideAvailability
		require.NoError(t, json.Unmarshal(resp.Data, &overview))
		assert.Len(t, overview.Availability, 1)
	})

	t.Run("guide confirms, traveller cancels", func(t *testing.T) {
		path := "/api/v1/bookings/" + booking.ID

		code, resp := s.do(t, &guide, http.MethodPatch, path+"/status", gin.H{"status": "confirmed"})
		require.Equal(t, http.StatusOK, code, resp.Error)

		code, _ = s.do(t, &guide, http.MethodPatch, path+"/cancel", nil)
		assert.Equal(t, http.StatusForbidden, code)

		code, _ = s.do(t, &guide, http.MethodPatch, path+"/status", gin.H{"status": "cancelled"})
		assert.Equal(t, http.StatusBadRequest, code)

		code, resp = s.do(t, &traveller, http.MethodPatch, path+"/cancel", nil)
		require.Equal(t, http.StatusOK, code, resp.Error)

		code, _ = s.do(t, &traveller, http.MethodPatch, path+"/cancel", nil)
		assert.Equal(t, http.StatusBadRequest, code)
	})

	t.Run("listing is scoped to the caller", func(t *testing.T) {
		other := entity.Actor{UserID: "user-b", Role: entity.RoleTraveller}
		code, resp := s.do(t, &other, http.MethodGet, "/api/v1/bookings", nil)
		require.Equal(t, http.StatusOK, code)
		assert.EqualValues(t, 0, resp.Meta["total"])

		code, resp = s.do(t, &traveller, http.MethodGet, "/api/v1/bookings?status=cancelled", nil)
		require.Equal(t, http.StatusOK, code)
		assert.EqualValues(t, 1, resp.Meta["total"])

		code, _ = s.do(t, &other, http.MethodGet, "/api/v1/bookings/"+booking.ID, nil)
		assert.Equal(t, http.StatusForbidden, code)
	})
}

func TestBookingErrors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		as     entity.Actor
		method string
		path   string
		body   interface{}
		status int
	}{
		{"zero party size", traveller, http.MethodPost, "/api/v1/bookings", bookingBody("2024-06-10", 0), http.StatusBadRequest},
		{"malformed date", traveller, http.MethodPost, "/api/v1/bookings", bookingBody("10/06/2024", 1), http.StatusBadRequest},
		{"unknown attraction", traveller, http.MethodPost, "/api/v1/bookings",
			gin.H{"attraction_id": "nope", "guide_id": "g-1", "date": "2024-06-10", "party_size": 1}, http.StatusNotFound},
		{"nothing published", traveller, http.MethodPost, "/api/v1/bookings", bookingBody("2024-06-10", 1), http.StatusBadRequest},
		{"guide cannot book", guide, http.MethodPost, "/api/v1/bookings", bookingBody("2024-06-10", 1), http.StatusForbidden},
		{"unknown booking", traveller, http.MethodGet, "/api/v1/bookings/missing", nil, http.StatusNotFound},
		{"bad status value", guide, http.MethodPatch, "/api/v1/bookings/missing/status", gin.H{"status": "lost"}, http.StatusBadRequest},
		{"traveller cannot publish", traveller, http.MethodPatch, "/api/v1/guides/availability",
			gin.H{"date": "2024-06-10", "total_slots": 4}, http.StatusForbidden},
		{"negative slots", guide, http.MethodPatch, "/api/v1/guides/availability",
			gin.H{"date": "2024-06-10", "total_slots": -1}, http.StatusBadRequest},
		{"slots beyond integer column", guide, http.MethodPatch, "/api/v1/guides/availability",
			gin.H{"date": "2024-06-10", "total_slots": 2147483648}, http.StatusBadRequest},
		{"guide without profile", entity.Actor{UserID: "guide-user-9", Role: entity.RoleGuide}, http.MethodPatch, "/api/v1/guides/availability",
			gin.H{"date": "2024-06-10", "total_slots": 4}, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			as := tt.as
			code, resp := s.do(t, &as, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, code, resp.Error)
			assert.False(t, resp.Success)
		})
	}
}

func TestConcurrentBookingsOverHTTP(t *testing.T) {
	s := newTestServer(t)
	s.publish(t, "2024-06-12", 4)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			code, _ := s.do(t, &traveller, http.MethodPost, "/api/v1/bookings", bookingBody("2024-06-12", 1))
			if code == http.StatusCreated {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 4, created)
}

func TestStoreUnavailable(t *testing.T) {
	s := newTestServer(t)
	s.db.FailWith = errors.New("connection refused")

	code, resp := s.do(t, &traveller, http.MethodGet, "/api/v1/bookings", nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.NotContains(t, resp.Error, "connection refused")
}

func TestItineraryFlow(t *testing.T) {
	s := newTestServer(t)

	code, resp := s.do(t, &traveller, http.MethodPost, "/api/v1/itineraries", gin.H{
		"title":          "Spring trip",
		"start_date":     "2024-06-01",
		"end_date":       "2024-06-05",
		"attraction_ids": []string{"a-1"},
	})
	require.Equal(t, http.StatusCreated, code, resp.Error)

	var first entity.ItineraryDetails
	require.NoError(t, json.Unmarshal(resp.Data, &first))
	assert.Len(t, first.Attractions, 1)

	t.Run("touching range is rejected", func(t *testing.T) {
		code, resp := s.do(t, &traveller, http.MethodPost, "/api/v1/itineraries", gin.H{
			"title": "Overlap", "start_date": "2024-06-05", "end_date": "2024-06-08",
		})
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Contains(t, resp.Error, "overlap")
	})

	t.Run("overlap query", func(t *testing.T) {
		code, resp := s.do(t, &traveller, http.MethodGet, "/api/v1/itineraries/overlap?start_date=2024-06-04&end_date=2024-06-09", nil)
		require.Equal(t, http.StatusOK, code, resp.Error)
		assert.JSONEq(t, `{"has_overlap":true}`, string(resp.Data))

		code, resp = s.do(t, &traveller, http.MethodGet,
			"/api/v1/itineraries/overlap?start_date=2024-06-04&end_date=2024-06-09&exclude_id="+first.ID, nil)
		require.Equal(t, http.StatusOK, code, resp.Error)
		assert.JSONEq(t, `{"has_overlap":false}`, string(resp.Data))

		code, _ = s.do(t, &traveller, http.MethodGet, "/api/v1/itineraries/overlap?start_date=2024-06-04", nil)
		assert.Equal(t, http.StatusBadRequest, code)
	})

	t.Run("attractions", func(t *testing.T) {
		path := "/api/v1/itineraries/" + first.ID + "/attractions"

		code, resp := s.do(t, &traveller, http.MethodPost, path, gin.H{"attraction_ids": []string{"a-1", "a-2"}})
		require.Equal(t, http.StatusOK, code, resp.Error)
		assert.EqualValues(t, 1, resp.Meta["added"])

		code, resp = s.do(t, &traveller, http.MethodDelete, path, gin.H{"attraction_ids": []string{"a-1"}})
		require.Equal(t, http.StatusOK, code, resp.Error)
		assert.EqualValues(t, 1, resp.Meta["removed"])

		code, _ = s.do(t, &traveller, http.MethodPost, path, gin.H{"attraction_ids": []string{"missing"}})
		assert.Equal(t, http.StatusNotFound, code)
	})

	t.Run("other users cannot touch it", func(t *testing.T) {
		other := entity.Actor{UserID: "user-b", Role: entity.RoleTraveller}
		code, _ := s.do(t, &other, http.MethodGet, "/api/v1/itineraries/"+first.ID, nil)
		assert.Equal(t, http.StatusForbidden, code)

		code, _ = s.do(t, &other, http.MethodDelete, "/api/v1/itineraries/"+first.ID, nil)
		assert.Equal(t, http.StatusForbidden, code)
	})

	t.Run("update then delete", func(t *testing.T) {
		path := "/api/v1/itineraries/" + first.ID

		code, resp := s.do(t, &traveller, http.MethodPatch, path, gin.H{"end_date": "2024-06-03"})
		require.Equal(t, http.StatusOK, code, resp.Error)

		code, resp = s.do(t, &traveller, http.MethodGet, "/api/v1/itineraries", nil)
		require.Equal(t, http.StatusOK, code)
		assert.EqualValues(t, 1, resp.Meta["total"])

		code, _ = s.do(t, &traveller, http.MethodDelete, path, nil)
		require.Equal(t, http.StatusOK, code)

		code, _ = s.do(t, &traveller, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, code)
	})
}
