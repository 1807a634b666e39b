package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/volunteer-hub/volunteer-hub/internal/auth"
)

// RequireCapability aborts with 403 unless the session holds cap. Capabilities
// are derived from the profile on every request, so role changes apply
// without reissuing the session token.
func RequireCapability(cap auth.Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, exists := c.Get(CapabilitiesKey)
		if !exists {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"ok":    false,
				"error": "Insufficient permissions",
			})
			return
		}

		granted, ok := v.([]string)
		if !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"ok":    false,
				"error": "Invalid capabilities format",
			})
			return
		}

		if !auth.HasCapability(granted, cap) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"ok":    false,
				"error": "Missing required capability: " + string(cap),
			})
			return
		}

		c.Next()
	}
}
