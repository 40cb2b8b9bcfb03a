package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuihairu/govmsg/internal/service/users"
)

func (s *Server) authRoutes(r *gin.RouterGroup) {
	g := r.Group("/auth")
	g.GET("/profile", s.profile)
	g.PUT("/profile", s.updateProfile)
	g.POST("/change-password", s.changePassword)
}

func (s *Server) register(c *gin.Context) {
	var in registerRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		s.badRequest(c, err)
		return
	}
	sess, err := s.users.Register(c, users.Registration{
		Username:     in.Username,
		Email:        in.Email,
		Password:     in.Password,
		FullName:     in.FullName,
		DepartmentID: in.DepartmentID,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	s.ok(c, http.StatusCreated, "registered", sess)
}

func (s *Server) login(c *gin.Context) {
	var in loginRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		s.badRequest(c, err)
		return
	}
	sess, err := s.users.Login(c, in.login(), in.Password)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.ok(c, http.StatusOK, "logged in", sess)
}

func (s *Server) profile(c *gin.Context) {
	u, err := s.users.Profile(c, actor(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	s.ok(c, http.StatusOK, "", u)
}

func (s *Server) updateProfile(c *gin.Context) {
	var in profileRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		s.badRequest(c, err)
		return
	}
	u, err := s.users.UpdateProfile(c, actor(c), users.ProfileChanges{FullName: in.FullName, Email: in.Email})
	if err != nil {
		s.fail(c, err)
		return
	}
	s.ok(c, http.StatusOK, "profile updated", u)
}

func (s *Server) changePassword(c *gin.Context) {
	var in passwordRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		s.badRequest(c, err)
		return
	}
	if err := s.users.ChangePassword(c, actor(c), in.CurrentPassword, in.NewPassword); err != nil {
		s.fail(c, err)
		return
	}
	s.ok(c, http.StatusOK, "password changed", nil)
}
