package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// CORS applies the permissive cross-origin policy the browser dashboard
// expects: any origin, requested method and headers echoed back, preflight
// short-circuited.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")

		if method := c.GetHeader("Access-Control-Request-Method"); method != "" {
			c.Header("Access-Control-Allow-Methods", method)
		} else {
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		}

		if headers := c.GetHeader("Access-Control-Request-Headers"); headers != "" {
			c.Header("Access-Control-Allow-Headers", headers)
		} else {
			c.Header("Access-Control-Allow-Headers", "authorization, content-type")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
