package httpserver

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cuihairu/govmsg/internal/auth/token"
	dom "github.com/cuihairu/govmsg/internal/ports"
)

const (
	ctxReqID = "reqid"
	ctxActor = "actor"
)

// actorOf returns the authenticated caller set by ginAuthN.
func actorOf(c *gin.Context) (dom.Actor, bool) {
	v, ok := c.Get(ctxActor)
	if !ok {
		return dom.Actor{}, false
	}
	a, ok := v.(dom.Actor)
	return a, ok
}

func actor(c *gin.Context) dom.Actor {
	a, _ := actorOf(c)
	return a
}

// ginReqID injects/propagates an X-Request-ID for traceability.
func (s *Server) ginReqID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := strings.TrimSpace(c.Request.Header.Get("X-Request-ID"))
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(ctxReqID, rid)
		c.Writer.Header().Set("X-Request-ID", rid)
		c.Next()
	}
}

func (s *Server) ginCORS() gin.HandlerFunc {
	allowHeaders := s.cors.AllowHeaders
	if allowHeaders == "" {
		allowHeaders = "Content-Type, Authorization, X-Request-ID"
	}
	allowMethods := s.cors.AllowMethods
	if allowMethods == "" {
		allowMethods = "GET, POST, PUT, DELETE, OPTIONS"
	}
	allowed := map[string]struct{}{}
	wildcard := len(s.cors.AllowOrigins) == 0
	for _, o := range s.cors.AllowOrigins {
		o = strings.TrimSpace(o)
		if o == "*" {
			wildcard = true
		}
		if o != "" {
			allowed[o] = struct{}{}
		}
	}
	return func(c *gin.Context) {
		h := c.Writer.Header()
		origin := c.Request.Header.Get("Origin")
		if wildcard {
			// with credentials the concrete origin must be echoed back
			if s.cors.AllowCredentials && origin != "" {
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
			} else {
				h.Set("Access-Control-Allow-Origin", "*")
			}
		} else if _, ok := allowed[origin]; ok && origin != "" {
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
		}
		h.Set("Access-Control-Allow-Headers", allowHeaders)
		h.Set("Access-Control-Allow-Methods", allowMethods)
		if s.cors.AllowCredentials {
			h.Set("Access-Control-Allow-Credentials", "true")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (s *Server) ginLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		dur := time.Since(start)
		lvl := slog.LevelInfo
		st := c.Writer.Status()
		if st >= 500 {
			lvl = slog.LevelError
		} else if st >= 400 {
			lvl = slog.LevelWarn
		}
		user := ""
		if a, ok := actorOf(c); ok {
			user = a.Username
		}
		slog.Log(c, lvl, "http",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", st,
			"bytes", c.Writer.Size(),
			"remote", c.ClientIP(),
			"user", user,
			"reqid", c.GetString(ctxReqID),
			"dur_ms", dur.Milliseconds(),
		)
	}
}

func (s *Server) ginMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		done := s.metrics.Begin()
		c.Next()
		done(c.Request.Method, c.FullPath(), c.Writer.Status())
	}
}

// ginAuthN resolves the bearer token to the stored user on every request.
func (s *Server) ginAuthN() gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.Request.Header.Get("Authorization")
		scheme, tok, found := strings.Cut(authz, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(tok) == "" {
			s.respondError(c, http.StatusUnauthorized, "token_required", "access token required")
			c.Abort()
			return
		}
		claims, err := s.tokens.Verify(strings.TrimSpace(tok))
		if err != nil {
			code, msg := "invalid_token", "invalid token"
			if errors.Is(err, token.ErrExpired) {
				code, msg = "token_expired", "token expired"
			}
			s.respondError(c, http.StatusUnauthorized, code, msg)
			c.Abort()
			return
		}
		id, err := claims.UserID()
		if err != nil {
			s.respondError(c, http.StatusUnauthorized, "invalid_token", "invalid token")
			c.Abort()
			return
		}
		u, err := s.users.Caller(c, id)
		if err != nil {
			s.fail(c, err)
			c.Abort()
			return
		}
		c.Set(ctxActor, u.Actor())
		c.Next()
	}
}

// ginAuthZ enforces the casbin route policy for the caller's role.
func (s *Server) ginAuthZ() gin.HandlerFunc {
	return func(c *gin.Context) {
		a, ok := actorOf(c)
		if !ok {
			s.respondError(c, http.StatusUnauthorized, "token_required", "access token required")
			c.Abort()
			return
		}
		if !s.rbac.CanHTTP(a.Role.String(), c.Request.URL.Path, c.Request.Method) {
			s.respondError(c, http.StatusForbidden, "forbidden", "insufficient permissions")
			c.Abort()
			return
		}
		c.Next()
	}
}

// entityOf derives the audited entity type from a request path.
func entityOf(path string) string {
	switch {
	case strings.Contains(path, "/users"):
		return "user"
	case strings.Contains(path, "/messages"):
		return "message"
	case strings.Contains(path, "/approvals"):
		return "approval"
	case strings.Contains(path, "/auth"):
		return "auth"
	case strings.Contains(path, "/audit"):
		return "audit"
	}
	return "system"
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// ginAudit records the request trail after the handler ran. Only
// authenticated calls and mutating methods are kept; failures are logged.
func (s *Server) ginAudit() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		a, authed := actorOf(c)
		if !authed && !mutating(c.Request.Method) {
			return
		}
		path := c.Request.URL.Path
		e := &dom.AuditEntry{
			Action:      c.Request.Method + " " + path,
			ActionType:  "request",
			EntityType:  entityOf(path),
			Description: fmt.Sprintf("%s %s -> %d", c.Request.Method, path, c.Writer.Status()),
			Metadata:    map[string]any{"status": c.Writer.Status(), "reqid": c.GetString(ctxReqID)},
			IPAddress:   c.ClientIP(),
			UserAgent:   c.Request.UserAgent(),
			CreatedAt:   time.Now(),
		}
		if authed {
			e.UserID = &a.ID
		}
		if id, err := strconv.ParseUint(c.Param("id"), 10, 64); err == nil && id > 0 {
			v := uint(id)
			e.EntityID = &v
		}
		_ = s.trail.Record(c.Request.Context(), e)
	}
}

// idParam parses the :id path parameter.
func (s *Server) idParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		s.respondError(c, http.StatusBadRequest, "invalid_id", "invalid id")
		return 0, false
	}
	return uint(id), true
}
