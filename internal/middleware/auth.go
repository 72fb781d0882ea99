package middleware

import (
	"crypto/subtle"
	"net/http"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"
)

const userIDKey = "user_id"

// UserAuth resolves the acting user from the X-User-ID header set by the
// upstream gateway. Requests without a valid user are rejected.
func UserAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader("X-User-ID")
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil || id == 0 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid X-User-ID header"})
			c.Abort()
			return
		}
		c.Set(userIDKey, uint(id))
		c.Next()
	}
}

// SchedulerAuth guards the batch-execution endpoints with the shared secret
// from SCHEDULER_SECRET. With no secret configured the endpoints are closed.
func SchedulerAuth() gin.HandlerFunc {
	secret := os.Getenv("SCHEDULER_SECRET")
	return func(c *gin.Context) {
		if secret == "" {
			c.JSON(http.StatusForbidden, gin.H{"error": "scheduler endpoints are disabled"})
			c.Abort()
			return
		}
		provided := c.GetHeader("X-Scheduler-Secret")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid scheduler secret"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// CurrentUserID reads the user resolved by UserAuth.
func CurrentUserID(c *gin.Context) uint {
	if v, ok := c.Get(userIDKey); ok {
		if id, ok := v.(uint); ok {
			return id
		}
	}
	return 0
}
