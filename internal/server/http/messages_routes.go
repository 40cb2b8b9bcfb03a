package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) messageRoutes(r *gin.RouterGroup) {
	g := r.Group("/messages")
	g.GET("", s.listMessages)
	g.POST("", s.createMessage)
	g.GET("/:id", s.getMessage)
	g.PUT("/:id", s.updateMessage)
	g.DELETE("/:id", s.deleteMessage)
	g.POST("/:id/submit", s.submitMessage)
	g.POST("/:id/approve", s.approveMessage)
	g.POST("/:id/reject", s.rejectMessage)
	g.POST("/:id/send", s.sendMessage)
	g.POST("/:id/receive", s.receiveMessage)
}

func (s *Server) listMessages(c *gin.Context) {
	var q messageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		s.badRequest(c, err)
		return
	}
	page, err := s.messages.List(c, actor(c), q.filter())
	if err != nil {
		s.fail(c, err)
		return
	}
	s.ok(c, http.StatusOK, "", page)
}

func (s *Server) getMessage(c *gin.Context) {
	id, ok := s.idParam(c)
	if !ok {
		return
	}
	m, err := s.messages.Get(c, actor(c), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.ok(c, http.StatusOK, "", m)
}

func (s *Server) createMessage(c *gin.Context) {
	var in createMessageRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		s.badRequest(c, err)
		return
	}
	m, err := s.messages.Create(c, actor(c), in.draft())
	if err != nil {
		s.fail(c, err)
		return
	}
	s.ok(c, http.StatusCreated, "message created", m)
}

func (s *Server) updateMessage(c *gin.Context) {
	id, ok := s.idParam(c)
	if !ok {
		return
	}
	var in updateMessageRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		s.badRequest(c, err)
		return
	}
	m, err := s.messages.Update(c, actor(c), id, in.patch())
	if err != nil {
		s.fail(c, err)
		return
	}
	s.ok(c, http.StatusOK, "message updated", m)
}

func (s *Server) deleteMessage(c *gin.Context) {
	id, ok := s.idParam(c)
	if !ok {
		return
	}
	if err := s.messages.Delete(c, actor(c), id); err != nil {
		s.fail(c, err)
		return
	}
	s.ok(c, http.StatusOK, "message deleted", nil)
}

func (s *Server) submitMessage(c *gin.Context) {
	id, ok := s.idParam(c)
	if !ok {
		return
	}
	m, err := s.messages.Submit(c, actor(c), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.ok(c, http.StatusOK, "message submitted", m)
}

// optionalJSON binds a body when one is present.
func optionalJSON(c *gin.Context, v any) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	return c.ShouldBindJSON(v)
}

func (s *Server) approveMessage(c *gin.Context) {
	id, ok := s.idParam(c)
	if !ok {
		return
	}
	var in notesRequest
	if err := optionalJSON(c, &in); err != nil {
		s.badRequest(c, err)
		return
	}
	m, err := s.messages.Approve(c, actor(c), id, in.Notes)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.ok(c, http.StatusOK, "message approved", m)
}

func (s *Server) rejectMessage(c *gin.Context) {
	id, ok := s.idParam(c)
	if !ok {
		return
	}
	var in notesRequest
	if err := optionalJSON(c, &in); err != nil {
		s.badRequest(c, err)
		return
	}
	m, err := s.messages.Reject(c, actor(c), id, in.Notes)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.ok(c, http.StatusOK, "message rejected", m)
}

func (s *Server) sendMessage(c *gin.Context) {
	id, ok := s.idParam(c)
	if !ok {
		return
	}
	var in sendRequest
	if err := optionalJSON(c, &in); err != nil {
		s.badRequest(c, err)
		return
	}
	m, err := s.messages.Send(c, actor(c), id, in.ReceiverDepartmentID)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.ok(c, http.StatusOK, "message sent", m)
}

func (s *Server) receiveMessage(c *gin.Context) {
	id, ok := s.idParam(c)
	if !ok {
		return
	}
	m, err := s.messages.Receive(c, actor(c), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.ok(c, http.StatusOK, "message received", m)
}
