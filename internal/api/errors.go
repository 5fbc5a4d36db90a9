package api

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"parking-booking-backend/internal/booking"
	"parking-booking-backend/internal/mw"
)

const errInvalidRequest = "invalid request"

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, booking.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, booking.ErrInvalidInterval), errors.Is(err, booking.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, booking.ErrCapacityExceeded), errors.Is(err, booking.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, booking.ErrInvalidCredential):
		return http.StatusUnauthorized
	case errors.Is(err, booking.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, booking.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
		c.AbortWithStatusJSON(status, gin.H{"error": "internal server error"})
		return
	}
	body := gin.H{"error": err.Error()}
	if booking.Retryable(err) {
		body["retryable"] = true
	}
	c.AbortWithStatusJSON(status, body)
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg})
}

// caller returns the authenticated caller or writes a 401.
func caller(c *gin.Context) (booking.Caller, bool) {
	who, ok := mw.CallerFrom(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
	}
	return who, ok
}
