package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/cuihairu/govmsg/internal/audit"
	"github.com/cuihairu/govmsg/internal/auth/rbac"
	"github.com/cuihairu/govmsg/internal/auth/token"
	dom "github.com/cuihairu/govmsg/internal/ports"
	auditsvc "github.com/cuihairu/govmsg/internal/service/audit"
	"github.com/cuihairu/govmsg/internal/service/messages"
	"github.com/cuihairu/govmsg/internal/service/users"
	"github.com/cuihairu/govmsg/internal/telemetry"
)

// Deps lists the collaborators of the HTTP server.
type Deps struct {
	Messages *messages.Service
	Users    *users.Service
	Audit    *auditsvc.Service
	Tokens   *token.Manager
	UoW      dom.UnitOfWork

	// Optional.
	Policy       *rbac.CasbinPolicy
	Metrics      *telemetry.HTTPMetrics
	RequestAudit dom.AuditRecorder
	CORS         CORSConfig
	LogCounters  func() map[string]int64
}

// CORSConfig controls the cross-origin headers. An empty or "*" origin list
// allows every origin.
type CORSConfig struct {
	AllowOrigins     []string
	AllowHeaders     string
	AllowMethods     string
	AllowCredentials bool
}

type Server struct {
	messages    *messages.Service
	users       *users.Service
	audit       *auditsvc.Service
	tokens      *token.Manager
	uow         dom.UnitOfWork
	rbac        *rbac.CasbinPolicy
	metrics     *telemetry.HTTPMetrics
	trail       dom.AuditRecorder
	cors        CORSConfig
	logCounters func() map[string]int64

	startedAt time.Time
	engine    *gin.Engine
	httpSrv   *http.Server
}

func NewServer(d Deps) (*Server, error) {
	if d.Messages == nil || d.Users == nil || d.Audit == nil || d.Tokens == nil || d.UoW == nil {
		return nil, errors.New("httpserver: messages, users, audit, tokens and uow are required")
	}
	s := &Server{
		messages:    d.Messages,
		users:       d.Users,
		audit:       d.Audit,
		tokens:      d.Tokens,
		uow:         d.UoW,
		rbac:        d.Policy,
		metrics:     d.Metrics,
		trail:       d.RequestAudit,
		cors:        d.CORS,
		logCounters: d.LogCounters,
		startedAt:   time.Now(),
	}
	if s.rbac == nil {
		p, err := rbac.NewCasbinPolicy(nil)
		if err != nil {
			return nil, err
		}
		s.rbac = p
	}
	if s.metrics == nil {
		s.metrics = telemetry.NewHTTPMetrics()
	}
	if s.trail == nil {
		s.trail = audit.BestEffort{Inner: d.UoW.Stores().Audit}
	}
	if s.logCounters == nil {
		s.logCounters = func() map[string]int64 { return map[string]int64{} }
	}
	registerValidators()
	s.engine = s.ginEngine()
	return s, nil
}

// Handler returns the instrumented root handler.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.engine, "govmsg.http")
}

func (s *Server) ginEngine() *gin.Engine {
	r := gin.New()
	// handlers pass c as the context; it must carry the request's span and cancellation
	r.ContextWithFallback = true
	r.Use(s.ginReqID(), s.ginCORS(), s.ginLogger(), s.ginMetrics(), gin.CustomRecovery(s.recovered))
	r.NoRoute(func(c *gin.Context) {
		s.respondError(c, http.StatusNotFound, "not_found", "route not found")
	})

	r.GET("/health", s.health)
	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	api := r.Group("/api", s.ginAudit())
	api.POST("/auth/register", s.register)
	api.POST("/auth/login", s.login)

	authed := api.Group("", s.ginAuthN(), s.ginAuthZ())
	s.authRoutes(authed)
	s.messageRoutes(authed)
	s.approvalRoutes(authed)
	s.userRoutes(authed)
	s.auditRoutes(authed)
	return r
}

func (s *Server) recovered(c *gin.Context, rec any) {
	slog.Error("http panic", "method", c.Request.Method, "path", c.Request.URL.Path, "panic", rec, "reqid", c.GetString(ctxReqID))
	s.respondError(c, http.StatusInternalServerError, "internal_error", "internal server error")
	c.Abort()
}

func (s *Server) ListenAndServe(addr string) error {
	slog.Info("http api listening", "addr", addr)
	s.httpSrv = &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	err := s.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv != nil {
		return s.httpSrv.Shutdown(ctx)
	}
	return nil
}
