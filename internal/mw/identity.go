package mw

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"parking-booking-backend/internal/booking"
)

const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"

	callerKey = "caller"
)

// Identity reads the caller established by the authenticating proxy in front
// of the service. Requests without a user ID continue anonymously.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if id == "" {
			c.Next()
			return
		}
		role := booking.ParseRole(strings.ToLower(strings.TrimSpace(c.GetHeader(HeaderUserRole))))
		c.Set(callerKey, booking.Caller{ID: id, Role: role})
		c.Next()
	}
}

// CallerFrom returns the caller stored by Identity.
func CallerFrom(c *gin.Context) (booking.Caller, bool) {
	v, ok := c.Get(callerKey)
	if !ok {
		return booking.Caller{}, false
	}
	caller, ok := v.(booking.Caller)
	return caller, ok
}

// RequireCaller rejects anonymous requests.
func RequireCaller() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := CallerFrom(c); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		c.Next()
	}
}

// RequireRole rejects callers whose role is not listed.
func RequireRole(roles ...booking.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := CallerFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		for _, r := range roles {
			if caller.Role == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient role"})
	}
}
