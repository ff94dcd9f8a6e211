package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SessionHeader names the caller's session. Requests without one get a
// fresh session, echoed back in the response header.
const SessionHeader = "X-Bench-Session"

const sessionKey = "session"

func sessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := c.GetHeader(SessionHeader)
		if session == "" {
			session = uuid.NewString()
		}
		c.Set(sessionKey, session)
		c.Header(SessionHeader, session)
		c.Next()
	}
}

func sessionOf(c *gin.Context) string {
	return c.GetString(sessionKey)
}

func requestLog(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Str("session", sessionOf(c)).
			Dur("took", time.Since(start)).
			Msg("request")
	}
}
