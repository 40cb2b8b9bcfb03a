package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"

	auditsvc "github.com/cuihairu/govmsg/internal/service/audit"
)

func (s *Server) auditRoutes(r *gin.RouterGroup) {
	r.GET("/audit", s.listAudit)
	r.GET("/audit/stats", s.auditStats)
}

func (s *Server) listAudit(c *gin.Context) {
	var q auditQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		s.badRequest(c, err)
		return
	}
	since, err := parseDate(q.StartDate, false)
	if err != nil {
		s.fail(c, err)
		return
	}
	until, err := parseDate(q.EndDate, true)
	if err != nil {
		s.fail(c, err)
		return
	}
	page, err := s.audit.List(c, actor(c), auditsvc.Filter{
		UserID:     q.UserID,
		EntityType: q.EntityType,
		EntityID:   q.EntityID,
		Action:     q.Action,
		Since:      since,
		Until:      until,
		Page:       q.Page,
		Limit:      q.Limit,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	s.ok(c, http.StatusOK, "", page)
}

func (s *Server) auditStats(c *gin.Context) {
	st, err := s.audit.Stats(c, actor(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	s.ok(c, http.StatusOK, "", st)
}
