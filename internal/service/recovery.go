// Package core provides panic recovery middleware
package core

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Recovery returns a gin middleware that recovers from panics.
// It logs the panic stack trace and returns a unified error response.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				requestID := getRequestID(c)
				stack := getStackTrace(3)

				log.Error().
					Str("request_id", requestID).
					Str("method", c.Request.Method).
					Str("path", c.Request.URL.Path).
					Str("client_ip", c.ClientIP()).
					Interface("error", err).
					Str("stack", stack).
					Msg("Panic recovered")

				c.AbortWithStatusJSON(GetHTTPStatus(ErrInternalServer), Response{
					Code:      int(ErrInternalServer),
					Message:   GetErrorMessage(ErrInternalServer),
					Timestamp: time.Now().Unix(),
					RequestID: requestID,
				})
			}
		}()

		c.Next()
	}
}

// getStackTrace returns a formatted stack trace string
func getStackTrace(skip int) string {
	var builder strings.Builder

	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+1, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		fmt.Fprintf(&builder, "%s\n\t%s:%d\n", frame.Function, frame.File, frame.Line)
		if !more {
			break
		}
	}
	return builder.String()
}
