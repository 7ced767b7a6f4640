package transport

import (
	"net/http"

	"github.com/ds124wfegd/tourbooker/internal/service"
	"github.com/gin-gonic/gin"
)

type ItineraryHandler struct {
	itineraryService service.ItineraryService
}

func NewItineraryHandler(itineraryService service.ItineraryService) *ItineraryHandler {
	return &ItineraryHandler{itineraryService: itineraryService}
}

type AttractionsRequest struct {
	AttractionIDs []string `json:"attraction_ids" binding:"required,min=1"`
}

func (h *ItineraryHandler) CreateItinerary(c *gin.Context) {
	a, found := actor(c)
	if !found {
		return
	}

	var req service.CreateItineraryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	itinerary, err := h.itineraryService.CreateItinerary(c.Request.Context(), a, &req)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusCreated, "Itinerary created successfully", itinerary)
}

func (h *ItineraryHandler) ListItineraries(c *gin.Context) {
	a, found := actor(c)
	if !found {
		return
	}

	itineraries, err := h.itineraryService.ListItineraries(c.Request.Context(), a)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{
		Success: true,
		Data:    itineraries,
		Meta:    gin.H{"total": len(itineraries)},
	})
}

func (h *ItineraryHandler) GetItinerary(c *gin.Context) {
	a, found := actor(c)
	if !found {
		return
	}

	itinerary, err := h.itineraryService.GetItinerary(c.Request.Context(), a, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, "", itinerary)
}

func (h *ItineraryHandler) UpdateItinerary(c *gin.Context) {
	a, found := actor(c)
	if !found {
		return
	}

	var req service.UpdateItineraryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	itinerary, err := h.itineraryService.UpdateItinerary(c.Request.Context(), a, c.Param("id"), &req)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, "Itinerary updated successfully", itinerary)
}

func (h *ItineraryHandler) DeleteItinerary(c *gin.Context) {
	a, found := actor(c)
	if !found {
		return
	}

	if err := h.itineraryService.DeleteItinerary(c.Request.Context(), a, c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, "Itinerary deleted successfully", nil)
}

// CheckOverlap answers whether the given range collides with another of
// the caller's itineraries.
func (h *ItineraryHandler) CheckOverlap(c *gin.Context) {
	a, found := actor(c)
	if !found {
		return
	}

	var req service.CheckOverlapRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, err)
		return
	}

	overlaps, err := h.itineraryService.CheckOverlap(c.Request.Context(), a.UserID, &req)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, "", gin.H{"has_overlap": overlaps})
}

func (h *ItineraryHandler) AddAttractions(c *gin.Context) {
	h.editAttractions(c, true)
}

func (h *ItineraryHandler) RemoveAttractions(c *gin.Context) {
	h.editAttractions(c, false)
}

func (h *ItineraryHandler) editAttractions(c *gin.Context, add bool) {
	a, found := actor(c)
	if !found {
		return
	}

	var req AttractionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	edit, verb := h.itineraryService.RemoveAttractions, "removed"
	if add {
		edit, verb = h.itineraryService.AddAttractions, "added"
	}

	itinerary, changed, err := edit(c.Request.Context(), a, c.Param("id"), req.AttractionIDs)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{
		Success: true,
		Message: "Attractions " + verb,
		Data:    itinerary,
		Meta:    gin.H{verb: changed},
	})
}
