package api

import (
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"parking-booking-backend/internal/booking"
	"parking-booking-backend/internal/metrics"
	"parking-booking-backend/internal/mw"
)

// RouterConfig holds the transport settings of the router.
type RouterConfig struct {
	RateLimit rate.Limit
	RateBurst int
	Metrics   *metrics.Metrics
}

// NewRouter creates and configures a new Gin router.
func NewRouter(h *Handler, cfg RouterConfig) *gin.Engine {
	r := gin.Default()

	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	caching := func(c *gin.Context) { c.Next() }
	if h.cache != nil {
		caching = h.cache.Middleware()
	}
	authed := mw.RequireCaller()
	operators := mw.RequireRole(booking.RoleOwner, booking.RoleAdmin)

	api := r.Group("/api")
	api.Use(mw.Identity(), mw.RateLimiter(cfg.RateLimit, cfg.RateBurst))
	{
		bookings := api.Group("/bookings")
		bookings.GET("/check-availability", h.CheckAvailability)
		bookings.POST("", authed, h.CreateBooking)
		bookings.GET("", authed, h.ListBookings)
		bookings.GET("/history", authed, h.BookingHistory)
		bookings.GET("/:id", authed, h.GetBooking)
		bookings.GET("/:id/credential", authed, h.GetCredential)
		bookings.PUT("/:id", authed, h.UpdateBooking)
		bookings.POST("/:id/cancel", authed, h.CancelBooking)
		bookings.POST("/:id/extend", authed, h.ExtendBooking)
		bookings.POST("/:id/verify", operators, h.VerifyBooking)

		lots := api.Group("/parking")
		lots.POST("", operators, h.RegisterParking)
		lots.GET("/nearby", caching, h.NearbyParking)
		lots.GET("/:id", caching, h.GetParking)
		lots.GET("/:id/pricing", caching, h.GetPricing)
		lots.PUT("/:id/pricing", operators, h.UpdatePricing)
		lots.GET("/:id/occupancy", caching, h.GetOccupancy)
		lots.GET("/:id/occupancy/ws", h.OccupancyFeed)

		api.GET("/subscriptions", authed, h.GetSubscription)
		api.PUT("/subscriptions", authed, h.PutSubscription)
		api.DELETE("/subscriptions", authed, h.DeleteSubscription)
		api.GET("/vapid_public_key", h.GetVAPIDPublicKey)
	}

	return r
}
