package api

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gopkg.in/guregu/null.v4"

	"parking-booking-backend/internal/live"
)

type occupancyResponse struct {
	Available   int       `json:"available"`
	Occupied    int       `json:"occupied"`
	Reserved    int       `json:"reserved"`
	LastEntryAt null.Time `json:"lastEntryAt"`
	LastExitAt  null.Time `json:"lastExitAt"`
}

// GetOccupancy handles GET /api/parking/:id/occupancy.
func (h *Handler) GetOccupancy(c *gin.Context) {
	occ, err := h.bookings.Occupancy(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, occupancyResponse{
		Available:   occ.Available,
		Occupied:    occ.Occupied,
		Reserved:    occ.Reserved,
		LastEntryAt: occ.LastEntryAt,
		LastExitAt:  occ.LastExitAt,
	})
}

// OccupancyFeed handles GET /api/parking/:id/occupancy/ws. The current
// counters are sent first, followed by every change.
func (h *Handler) OccupancyFeed(c *gin.Context) {
	if h.hub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "live feed is not enabled"})
		return
	}
	id := c.Param("id")
	occ, err := h.bookings.Occupancy(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	snapshot := live.FromOccupancy(occ, "snapshot", time.Now())
	if err := h.hub.Serve(c.Writer, c.Request, id, &snapshot); err != nil {
		log.Printf("websocket upgrade for %s failed: %v", id, err)
	}
}
