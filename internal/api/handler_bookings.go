package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"parking-booking-backend/internal/booking"
	"parking-booking-backend/internal/model"
	"parking-booking-backend/internal/parse"
)

type createBookingRequest struct {
	ParkingID    string `json:"parkingId" binding:"required"`
	StartTime    string `json:"startTime" binding:"required"`
	EndTime      string `json:"endTime" binding:"required"`
	VehiclePlate string `json:"vehiclePlate"`
}

// bookingWithCredential exposes the check-in credential, which is hidden from
// ordinary booking responses.
type bookingWithCredential struct {
	*model.Booking
	Credential string `json:"credential"`
}

type pageResponse struct {
	Items []model.Booking `json:"items"`
	Total int64           `json:"total"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
}

func parseInterval(startRaw, endRaw string) (time.Time, time.Time, bool) {
	start, err := parse.Timestamp(startRaw)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	end, err := parse.Timestamp(endRaw)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

// CreateBooking handles POST /api/bookings.
func (h *Handler) CreateBooking(c *gin.Context) {
	var req createBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, errInvalidRequest)
		return
	}
	start, end, ok := parseInterval(req.StartTime, req.EndTime)
	if !ok {
		badRequest(c, "invalid timestamp format, use RFC3339")
		return
	}
	who, ok := caller(c)
	if !ok {
		return
	}

	b, err := h.bookings.Create(c.Request.Context(), who, booking.CreateRequest{
		ParkingID:    req.ParkingID,
		Start:        start,
		End:          end,
		VehiclePlate: req.VehiclePlate,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, bookingWithCredential{Booking: b, Credential: b.Credential})
}

// CheckAvailability handles GET /api/bookings/check-availability.
func (h *Handler) CheckAvailability(c *gin.Context) {
	parkingID := c.Query("parkingId")
	if parkingID == "" {
		badRequest(c, "parkingId is required")
		return
	}
	start, end, ok := parseInterval(c.Query("startTime"), c.Query("endTime"))
	if !ok {
		badRequest(c, "startTime and endTime must be RFC3339 timestamps")
		return
	}

	a, err := h.bookings.CheckAvailabilityDetail(c.Request.Context(), parkingID, start, end)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"available":        a.Available,
		"currentAvailable": a.CurrentAvailable,
		"totalCapacity":    a.TotalCapacity,
		"hourlyRate":       a.HourlyRate,
	})
}

func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	return page, limit
}

func writePage(c *gin.Context, p *booking.Page) {
	c.JSON(http.StatusOK, pageResponse{Items: p.Items, Total: p.Total, Page: p.Page, Limit: p.Limit})
}

// ListBookings handles GET /api/bookings.
func (h *Handler) ListBookings(c *gin.Context) {
	who, ok := caller(c)
	if !ok {
		return
	}
	page, limit := pageParams(c)
	p, err := h.bookings.List(c.Request.Context(), who, page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	writePage(c, p)
}

// BookingHistory handles GET /api/bookings/history.
func (h *Handler) BookingHistory(c *gin.Context) {
	who, ok := caller(c)
	if !ok {
		return
	}
	page, limit := pageParams(c)
	p, err := h.bookings.History(c.Request.Context(), who, page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	writePage(c, p)
}

// GetBooking handles GET /api/bookings/:id.
func (h *Handler) GetBooking(c *gin.Context) {
	who, ok := caller(c)
	if !ok {
		return
	}
	b, err := h.bookings.Get(c.Request.Context(), who, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// GetCredential handles GET /api/bookings/:id/credential.
func (h *Handler) GetCredential(c *gin.Context) {
	who, ok := caller(c)
	if !ok {
		return
	}
	cred, err := h.bookings.Credential(c.Request.Context(), who, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookingId": c.Param("id"), "credential": cred})
}

type updateBookingRequest struct {
	StartTime    *string `json:"startTime"`
	EndTime      *string `json:"endTime"`
	VehiclePlate *string `json:"vehiclePlate"`
}

// UpdateBooking handles PUT /api/bookings/:id.
func (h *Handler) UpdateBooking(c *gin.Context) {
	var req updateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, errInvalidRequest)
		return
	}
	patch := booking.UpdatePatch{VehiclePlate: req.VehiclePlate}
	for _, f := range []struct {
		raw *string
		dst **time.Time
	}{{req.StartTime, &patch.Start}, {req.EndTime, &patch.End}} {
		if f.raw == nil {
			continue
		}
		t, err := parse.Timestamp(*f.raw)
		if err != nil {
			badRequest(c, "invalid timestamp format, use RFC3339")
			return
		}
		*f.dst = &t
	}
	who, ok := caller(c)
	if !ok {
		return
	}

	b, err := h.bookings.Update(c.Request.Context(), who, c.Param("id"), patch)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// CancelBooking handles POST /api/bookings/:id/cancel.
func (h *Handler) CancelBooking(c *gin.Context) {
	who, ok := caller(c)
	if !ok {
		return
	}
	if _, err := h.bookings.Cancel(c.Request.Context(), who, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Booking cancelled successfully"})
}

type extendBookingRequest struct {
	NewEndTime string `json:"newEndTime" binding:"required"`
}

// ExtendBooking handles POST /api/bookings/:id/extend.
func (h *Handler) ExtendBooking(c *gin.Context) {
	var req extendBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, errInvalidRequest)
		return
	}
	end, err := parse.Timestamp(req.NewEndTime)
	if err != nil {
		badRequest(c, "invalid timestamp format, use RFC3339")
		return
	}
	who, ok := caller(c)
	if !ok {
		return
	}

	b, err := h.bookings.Extend(c.Request.Context(), who, c.Param("id"), end)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

type verifyRequest struct {
	Credential string `json:"credential" binding:"required"`
}

// VerifyBooking handles POST /api/bookings/:id/verify, the gate scan.
func (h *Handler) VerifyBooking(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, errInvalidRequest)
		return
	}
	res, err := h.bookings.Verify(c.Request.Context(), c.Param("id"), req.Credential)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
