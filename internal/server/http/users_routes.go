package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuihairu/govmsg/internal/service/users"
)

func (s *Server) userRoutes(r *gin.RouterGroup) {
	g := r.Group("/users")
	g.GET("/meta/departments", s.listDepartments)
	g.GET("/recipients", s.recipients)
	g.GET("", s.listUsers)
	g.POST("", s.createUser)
	g.POST("/departments", s.createDepartment)
	g.GET("/:id", s.getUser)
	g.POST("/:id/reset-password", s.resetPassword)
}

func (s *Server) listDepartments(c *gin.Context) {
	ds, err := s.users.Departments(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.ok(c, http.StatusOK, "", gin.H{"departments": ds})
}

func (s *Server) recipients(c *gin.Context) {
	dir, err := s.users.Recipients(c, actor(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	s.ok(c, http.StatusOK, "", dir)
}

func (s *Server) listUsers(c *gin.Context) {
	var q userQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		s.badRequest(c, err)
		return
	}
	page, err := s.users.ListUsers(c, actor(c), users.UserFilter{
		Role:           q.Role,
		DepartmentID:   q.DepartmentID,
		DepartmentName: q.DepartmentName,
		Active:         q.Active,
		Page:           q.Page,
		Limit:          q.Limit,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	s.ok(c, http.StatusOK, "", page)
}

func (s *Server) getUser(c *gin.Context) {
	id, ok := s.idParam(c)
	if !ok {
		return
	}
	u, err := s.users.GetUser(c, actor(c), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.ok(c, http.StatusOK, "", u)
}

func (s *Server) createUser(c *gin.Context) {
	var in createUserRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		s.badRequest(c, err)
		return
	}
	u, err := s.users.CreateUser(c, actor(c), users.NewUser{
		Username:       in.Username,
		Email:          in.Email,
		Password:       in.Password,
		FullName:       in.FullName,
		Role:           in.Role,
		DepartmentID:   in.DepartmentID,
		DepartmentName: in.DepartmentName,
		Active:         in.Active,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	s.ok(c, http.StatusCreated, "user created", u)
}

func (s *Server) createDepartment(c *gin.Context) {
	var in departmentRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		s.badRequest(c, err)
		return
	}
	d, err := s.users.CreateDepartment(c, actor(c), in.Name, in.ManagerID)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.ok(c, http.StatusCreated, "department created", d)
}

func (s *Server) resetPassword(c *gin.Context) {
	id, ok := s.idParam(c)
	if !ok {
		return
	}
	var in resetPasswordRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		s.badRequest(c, err)
		return
	}
	if err := s.users.ResetPassword(c, actor(c), id, in.NewPassword); err != nil {
		s.fail(c, err)
		return
	}
	s.ok(c, http.StatusOK, "password reset", nil)
}
