package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"parking-booking-backend/internal/model"
	"parking-booking-backend/internal/store"
)

type putSubscriptionRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
	P256DH   string `json:"p256dh" binding:"required"`
	Auth     string `json:"auth" binding:"required"`
}

// PutSubscription registers a browser for the caller's booking notifications.
func (h *Handler) PutSubscription(c *gin.Context) {
	var req putSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, errInvalidRequest)
		return
	}
	who, ok := caller(c)
	if !ok {
		return
	}

	subscription := model.PushSubscription{
		Endpoint: req.Endpoint,
		P256DH:   req.P256DH,
		Auth:     req.Auth,
		UserID:   who.ID,
	}
	if err := h.store.UpsertSubscription(c.Request.Context(), &subscription); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Status(http.StatusCreated)
}

type deleteSubscriptionRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
}

// DeleteSubscription handles the deletion of a subscription.
func (h *Handler) DeleteSubscription(c *gin.Context) {
	var req deleteSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, errInvalidRequest)
		return
	}
	who, ok := caller(c)
	if !ok {
		return
	}
	if !h.ownsSubscription(c, req.Endpoint, who.ID) {
		return
	}

	if err := h.store.DeleteSubscription(c.Request.Context(), req.Endpoint); err != nil && !errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Status(http.StatusNoContent)
}

func rawQueryParam(rawQuery, key string) (string, bool) {
	for _, kv := range strings.Split(rawQuery, "&") {
		if strings.HasPrefix(kv, key+"=") {
			return kv[len(key)+1:], true // endpoints are matched undecoded
		}
	}
	return "", false
}

// GetSubscription reports whether an endpoint is registered for the caller.
func (h *Handler) GetSubscription(c *gin.Context) {
	raw, ok := rawQueryParam(c.Request.URL.RawQuery, "endpoint")
	if !ok || raw == "" {
		badRequest(c, "endpoint is required")
		return
	}
	who, ok := caller(c)
	if !ok {
		return
	}
	if !h.ownsSubscription(c, raw, who.ID) {
		return
	}

	c.JSON(http.StatusOK, gin.H{"endpoint": raw, "subscribed": true})
}

// ownsSubscription writes a 404 unless endpoint belongs to userID. Foreign
// endpoints look missing.
func (h *Handler) ownsSubscription(c *gin.Context, endpoint, userID string) bool {
	sub, err := h.store.GetSubscription(c.Request.Context(), endpoint)
	switch {
	case errors.Is(err, store.ErrNotFound), err == nil && sub.UserID != userID:
		c.JSON(http.StatusNotFound, gin.H{"error": "subscription not found"})
		return false
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return false
	}
	return true
}
