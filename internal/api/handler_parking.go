package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"parking-booking-backend/internal/parking"
)

type registerParkingRequest struct {
	Name          string           `json:"name" binding:"required"`
	Address       string           `json:"address" binding:"required"`
	Latitude      *float64         `json:"latitude" binding:"required"`
	Longitude     *float64         `json:"longitude" binding:"required"`
	TotalCapacity int              `json:"totalCapacity" binding:"required"`
	HourlyRate    decimal.Decimal  `json:"hourlyRate"`
	DailyRate     *decimal.Decimal `json:"dailyRate"`
	IsActive      *bool            `json:"isActive"`
}

// RegisterParking handles POST /api/parking.
func (h *Handler) RegisterParking(c *gin.Context) {
	var req registerParkingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, errInvalidRequest)
		return
	}
	who, ok := caller(c)
	if !ok {
		return
	}

	loc, err := h.parking.Register(c.Request.Context(), who, parking.RegisterRequest{
		Name:          req.Name,
		Address:       req.Address,
		Latitude:      *req.Latitude,
		Longitude:     *req.Longitude,
		TotalCapacity: req.TotalCapacity,
		HourlyRate:    req.HourlyRate,
		DailyRate:     req.DailyRate,
		IsActive:      req.IsActive,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, loc)
}

// GetParking handles GET /api/parking/:id.
func (h *Handler) GetParking(c *gin.Context) {
	loc, err := h.parking.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, loc)
}

// NearbyParking handles GET /api/parking/nearby?latitude=&longitude=&radius=.
func (h *Handler) NearbyParking(c *gin.Context) {
	lat, errLat := strconv.ParseFloat(c.Query("latitude"), 64)
	lng, errLng := strconv.ParseFloat(c.Query("longitude"), 64)
	if errLat != nil || errLng != nil {
		badRequest(c, "latitude and longitude are required")
		return
	}
	var radius float64
	if raw := c.Query("radius"); raw != "" {
		r, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			badRequest(c, "invalid radius")
			return
		}
		radius = r
	}

	results, err := h.parking.Nearby(c.Request.Context(), lat, lng, radius)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}

// GetPricing handles GET /api/parking/:id/pricing.
func (h *Handler) GetPricing(c *gin.Context) {
	p, err := h.parking.Pricing(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

type updatePricingRequest struct {
	HourlyRate *decimal.Decimal `json:"hourlyRate" binding:"required"`
	DailyRate  *decimal.Decimal `json:"dailyRate"`
}

// UpdatePricing handles PUT /api/parking/:id/pricing.
func (h *Handler) UpdatePricing(c *gin.Context) {
	var req updatePricingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, errInvalidRequest)
		return
	}
	who, ok := caller(c)
	if !ok {
		return
	}

	id := c.Param("id")
	p, err := h.parking.UpdatePricing(c.Request.Context(), who, id, *req.HourlyRate, req.DailyRate)
	if err != nil {
		respondError(c, err)
		return
	}
	h.purge(id)
	c.JSON(http.StatusOK, p)
}
