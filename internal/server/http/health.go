package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// health reports database reachability, uptime and log counters.
func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	body := gin.H{
		"uptime_sec": int64(time.Since(s.startedAt).Seconds()),
		"logs":       s.logCounters(),
	}
	if err := s.uow.Ping(ctx); err != nil {
		body["status"] = "unhealthy"
		body["database"] = "unreachable"
		s.JSON(c, http.StatusInternalServerError, envelope{Success: false, Message: "database unreachable", Data: body, Error: "database_unreachable"})
		return
	}
	body["status"] = "healthy"
	body["database"] = "connected"
	s.ok(c, http.StatusOK, "", body)
}
