package middleware

import (
	"crypto/subtle"
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// TrustedCaller guards the confirm endpoint: only the purchase backend
// may release escrowed funds. A request passes if it comes from loopback
// or carries the shared bearer token (empty token disables the token
// path).
func TrustedCaller(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token != "" {
			auth := c.GetHeader("Authorization")
			got := strings.TrimPrefix(auth, "Bearer ")
			if got != auth && subtle.ConstantTimeCompare([]byte(got), []byte(token)) == 1 {
				c.Next()
				return
			}
		}

		ip := net.ParseIP(c.ClientIP())
		if ip == nil || !ip.IsLoopback() {
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden: trusted callers only"})
			c.Abort()
			return
		}

		c.Next()
	}
}
