package middleware

import (
	"fmt"
	"net/http"
	"runtime"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func Recovery(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				var stack [4096]byte
				n := runtime.Stack(stack[:], false)

				log.Error("panic recovered",
					zap.String("request_id", RequestIDFrom(c)),
					zap.String("panic", fmt.Sprintf("%v", r)),
					zap.String("stack", string(stack[:n])),
				)
				abort(c, http.StatusInternalServerError, "internal server error")
			}
		}()
		c.Next()
	}
}

// abort writes the standard error envelope and stops the chain.
func abort(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "error": message})
}
