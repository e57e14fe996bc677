package server

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/spaceflow-dev/spaceflow/internal/guard"
	"github.com/spaceflow-dev/spaceflow/internal/session"
)

// loggingMiddleware creates a custom logging middleware using zerolog
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start)

		s.logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", duration).
			Str("client_ip", c.ClientIP()).
			Msg("HTTP request")
	}
}

// noStore keeps session-dependent pages out of shared caches
func noStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-store")
		c.Next()
	}
}

// currentUser returns the user the guard admitted the request with. In demo
// mode this is the demo user.
func currentUser(c *gin.Context) *session.User {
	st, ok := guard.StateFrom(c)
	if !ok {
		return nil
	}
	return st.User
}
