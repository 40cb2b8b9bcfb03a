package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	dom "github.com/cuihairu/govmsg/internal/ports"
)

// StatusOf maps an error kind onto an HTTP status. Configuration errors
// caused by system state answer 409; those caused by the request answer 400.
func StatusOf(e *dom.Error) int {
	switch e.Kind {
	case dom.KindValidation:
		return http.StatusBadRequest
	case dom.KindAuthentication:
		return http.StatusUnauthorized
	case dom.KindAuthorization:
		return http.StatusForbidden
	case dom.KindNotFound:
		return http.StatusNotFound
	case dom.KindConflict:
		return http.StatusConflict
	case dom.KindConfiguration:
		if e.Blocking {
			return http.StatusConflict
		}
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// respondError sends a unified JSON error body.
func (s *Server) respondError(c *gin.Context, status int, code, message string) {
	s.JSON(c, status, envelope{Success: false, Message: message, Error: code})
}

// fail translates err into the envelope. Infrastructure details are logged
// with the request id and replaced by a generic message.
func (s *Server) fail(c *gin.Context, err error) {
	e := dom.AsError(err)
	status := StatusOf(e)
	msg := e.Message
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "method", c.Request.Method, "path", c.Request.URL.Path,
			"reqid", c.GetString(ctxReqID), "op", e.Message, "error", e.Err)
		msg = "internal server error"
	}
	_ = c.Error(err)
	s.respondError(c, status, e.Code, msg)
}

// badRequest answers a payload that could not be bound.
func (s *Server) badRequest(c *gin.Context, err error) {
	s.respondError(c, http.StatusBadRequest, bindCode(err), bindMessage(err))
}
