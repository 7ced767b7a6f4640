package transport

import (
	"net/http"

	"github.com/ds124wfegd/tourbooker/internal/service"
	"github.com/gin-gonic/gin"
)

type GuideHandler struct {
	availabilityService service.AvailabilityService
}

func NewGuideHandler(availabilityService service.AvailabilityService) *GuideHandler {
	return &GuideHandler{availabilityService: availabilityService}
}

// UpdateAvailability publishes the acting guide's capacity for one date.
func (h *GuideHandler) UpdateAvailability(c *gin.Context) {
	a, found := actor(c)
	if !found {
		return
	}

	var req service.PublishSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	status, err := h.availabilityService.PublishSlot(c.Request.Context(), a, &req)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, "Availability updated", status)
}
