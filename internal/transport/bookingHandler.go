package transport

import (
	"net/http"

	"github.com/ds124wfegd/tourbooker/internal/entity"
	"github.com/ds124wfegd/tourbooker/internal/service"
	"github.com/gin-gonic/gin"
)

type BookingHandler struct {
	bookingService      service.BookingService
	availabilityService service.AvailabilityService
}

func NewBookingHandler(bookingService service.BookingService, availabilityService service.AvailabilityService) *BookingHandler {
	return &BookingHandler{bookingService: bookingService, availabilityService: availabilityService}
}

// UpdateStatusRequest представляет запрос на смену статуса бронирования
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *BookingHandler) CreateBooking(c *gin.Context) {
	a, found := actor(c)
	if !found {
		return
	}

	var req service.SubmitBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	booking, err := h.bookingService.SubmitBooking(c.Request.Context(), a, &req)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusCreated, "Booking created successfully", booking)
}

func (h *BookingHandler) ListBookings(c *gin.Context) {
	a, found := actor(c)
	if !found {
		return
	}

	var req service.ListBookingsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, err)
		return
	}

	bookings, err := h.bookingService.ListBookings(c.Request.Context(), a, &req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{
		Success: true,
		Data:    bookings,
		Meta:    gin.H{"total": len(bookings)},
	})
}

func (h *BookingHandler) GetBooking(c *gin.Context) {
	a, found := actor(c)
	if !found {
		return
	}

	booking, err := h.bookingService.GetBooking(c.Request.Context(), a, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, "", booking)
}

func (h *BookingHandler) UpdateStatus(c *gin.Context) {
	a, found := actor(c)
	if !found {
		return
	}

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	booking, err := h.bookingService.UpdateBookingStatus(c.Request.Context(), a, c.Param("id"), req.Status)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, "Booking status updated", booking)
}

func (h *BookingHandler) CancelBooking(c *gin.Context) {
	a, found := actor(c)
	if !found {
		return
	}

	booking, err := h.bookingService.CancelBooking(c.Request.Context(), a, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, "Booking cancelled", booking)
}

// GetAvailability returns one slot when ?date is given, otherwise every
// published date of the guide.
func (h *BookingHandler) GetAvailability(c *gin.Context) {
	guideID := c.Param("guideId")
	ctx := c.Request.Context()

	if raw := c.Query("date"); raw != "" {
		date, err := entity.ParseDate(raw)
		if err != nil {
			fail(c, err)
			return
		}
		status, err := h.availabilityService.GetSlotAvailability(ctx, guideID, date)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, http.StatusOK, "", status)
		return
	}

	overview, err := h.availabilityService.GetGuideAvailability(ctx, guideID)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, "", overview)
}
