package transport

import (
	"context"
	"time"

	"github.com/ds124wfegd/tourbooker/internal/transport/middleware"
	"github.com/gin-gonic/gin"
)

type Handlers struct {
	Booking   *BookingHandler
	Guide     *GuideHandler
	Itinerary *ItineraryHandler
}

type RouterConfig struct {
	JWTSecret      string
	RequestTimeout time.Duration
	AppVersion     string
	// Status adds backend details to /health. Optional.
	Status func(ctx context.Context) map[string]interface{}
}

func InitRoutes(h Handlers, cfg RouterConfig) *gin.Engine {
	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())
	router.Use(middleware.CORS())
	router.Use(middleware.Logger())
	router.Use(middleware.Timeout(cfg.RequestTimeout))

	auth := middleware.Auth(cfg.JWTSecret)

	// API routes
	api := router.Group("/api/v1")
	{
		// Availability is public
		api.GET("/bookings/availability/:guideId", h.Booking.GetAvailability)

		bookings := api.Group("/bookings", auth)
		{
			bookings.POST("", h.Booking.CreateBooking)
			bookings.GET("", h.Booking.ListBookings)
			bookings.GET("/:id", h.Booking.GetBooking)
			bookings.PATCH("/:id/status", h.Booking.UpdateStatus)
			bookings.PATCH("/:id/cancel", h.Booking.CancelBooking)
		}

		guides := api.Group("/guides", auth)
		{
			guides.PATCH("/availability", h.Guide.UpdateAvailability)
		}

		itineraries := api.Group("/itineraries", auth)
		{
			itineraries.GET("", h.Itinerary.ListItineraries)
			itineraries.POST("", h.Itinerary.CreateItinerary)
			itineraries.GET("/overlap", h.Itinerary.CheckOverlap)
			itineraries.GET("/:id", h.Itinerary.GetItinerary)
			itineraries.PATCH("/:id", h.Itinerary.UpdateItinerary)
			itineraries.DELETE("/:id", h.Itinerary.DeleteItinerary)
			itineraries.POST("/:id/attractions", h.Itinerary.AddAttractions)
			itineraries.DELETE("/:id/attractions", h.Itinerary.RemoveAttractions)
		}
	}

	// Health check
	router.GET("/health", func(c *gin.Context) {
		resp := gin.H{
			"status":  "ok",
			"version": cfg.AppVersion,
			"time":    time.Now().UTC().Format(time.RFC3339),
		}
		if cfg.Status != nil {
			for k, v := range cfg.Status(c.Request.Context()) {
				resp[k] = v
			}
		}
		c.JSON(200, resp)
	})

	return router
}
