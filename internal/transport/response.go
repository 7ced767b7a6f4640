package transport

import (
	"errors"
	"net/http"

	"github.com/ds124wfegd/tourbooker/internal/entity"
	"github.com/ds124wfegd/tourbooker/internal/transport/middleware"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// SuccessResponse представляет успешный ответ
type SuccessResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Meta    interface{} `json:"meta,omitempty"`
}

// ErrorResponse представляет ответ с ошибкой
type ErrorResponse struct {
	Success        bool   `json:"success"`
	Error          string `json:"error"`
	AvailableSlots *int   `json:"available_slots,omitempty"`
	RequestedSlots *int   `json:"requested_slots,omitempty"`
}

func ok(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, SuccessResponse{Success: true, Message: message, Data: data})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
}

// statusFor maps an error family to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, entity.ErrInvalidRequest), errors.Is(err, entity.ErrConflict):
		return http.StatusBadRequest
	case errors.Is(err, entity.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, entity.ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, entity.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func fail(c *gin.Context, err error) {
	status := statusFor(err)
	resp := ErrorResponse{Error: err.Error()}

	var capErr *entity.CapacityError
	if errors.As(err, &capErr) {
		resp.AvailableSlots = &capErr.Remaining
		resp.RequestedSlots = &capErr.Requested
	}

	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
		logrus.WithError(err).WithField("path", c.FullPath()).Error("request failed")
		if status == http.StatusInternalServerError {
			resp.Error = "internal server error"
		} else {
			resp.Error = "service temporarily unavailable, retry later"
		}
	}
	c.JSON(status, resp)
}

// actor is the authenticated caller. Routes behind Auth always have one.
func actor(c *gin.Context) (entity.Actor, bool) {
	a, found := middleware.ActorFrom(c)
	if !found {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "authentication required"})
	}
	return a, found
}
