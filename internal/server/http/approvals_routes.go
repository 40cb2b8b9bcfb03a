package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) approvalRoutes(r *gin.RouterGroup) {
	g := r.Group("/approvals")
	g.GET("", s.listApprovals)
	g.GET("/:id", s.getApproval)
	g.POST("/:id/approve", s.approveApproval)
	g.POST("/:id/reject", s.rejectApproval)
}

func (s *Server) listApprovals(c *gin.Context) {
	var q approvalQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		s.badRequest(c, err)
		return
	}
	page, err := s.messages.ListApprovals(c, actor(c), q.filter())
	if err != nil {
		s.fail(c, err)
		return
	}
	s.ok(c, http.StatusOK, "", page)
}

func (s *Server) getApproval(c *gin.Context) {
	id, ok := s.idParam(c)
	if !ok {
		return
	}
	a, err := s.messages.GetApproval(c, actor(c), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.ok(c, http.StatusOK, "", a)
}

func (s *Server) approveApproval(c *gin.Context) {
	id, ok := s.idParam(c)
	if !ok {
		return
	}
	var in commentsRequest
	if err := optionalJSON(c, &in); err != nil {
		s.badRequest(c, err)
		return
	}
	m, err := s.messages.ApproveApproval(c, actor(c), id, in.Comments)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.ok(c, http.StatusOK, "approval granted", m)
}

func (s *Server) rejectApproval(c *gin.Context) {
	id, ok := s.idParam(c)
	if !ok {
		return
	}
	var in commentsRequest
	if err := optionalJSON(c, &in); err != nil {
		s.badRequest(c, err)
		return
	}
	m, err := s.messages.RejectApproval(c, actor(c), id, in.Comments)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.ok(c, http.StatusOK, "approval rejected", m)
}
