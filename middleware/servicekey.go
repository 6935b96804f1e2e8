package middleware

import (
	"crypto/subtle"
	"net/http"

	"alerts-service/config"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
)

// ServiceKeyMiddleware authenticates service-to-service webhook calls with
// the shared static secret. This is distinct from citizen auth: a valid
// citizen token does not grant webhook access.
func ServiceKeyMiddleware(cfg *config.Config) gin.HandlerFunc {
	expected := []byte(cfg.ServiceKey)
	return func(c *gin.Context) {
		key := c.GetHeader("x-service-key")
		if len(expected) == 0 || key == "" ||
			subtle.ConstantTimeCompare([]byte(key), expected) != 1 {
			log.Warnf("Rejected webhook call with bad service key from %s", c.ClientIP())
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "invalid service key"})
			c.Abort()
			return
		}
		c.Next()
	}
}
