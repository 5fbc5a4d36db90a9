package api

import (
	"github.com/SherClockHolmes/webpush-go"

	"parking-booking-backend/internal/booking"
	"parking-booking-backend/internal/live"
	"parking-booking-backend/internal/mw"
	"parking-booking-backend/internal/parking"
	"parking-booking-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store    store.Store
	bookings *booking.Service
	parking  *parking.Service
	hub      *live.Hub
	cache    *mw.ResponseCache
	webpush  *webpush.Options
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, bookings *booking.Service, lots *parking.Service, webpushOptions *webpush.Options) *Handler {
	return &Handler{
		store:    s,
		bookings: bookings,
		parking:  lots,
		webpush:  webpushOptions,
	}
}

// WithLive attaches the live occupancy hub.
func (h *Handler) WithLive(hub *live.Hub) *Handler {
	h.hub = hub
	return h
}

// WithCache attaches the response cache so writes can purge it.
func (h *Handler) WithCache(rc *mw.ResponseCache) *Handler {
	h.cache = rc
	return h
}

func (h *Handler) purge(id string) {
	if h.cache != nil {
		h.cache.Purge(id)
	}
}
