// Package users manages accounts, departments and the recipient directory.
package users

import (
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	dom "github.com/cuihairu/govmsg/internal/ports"
)

// Signer issues bearer tokens for authenticated users.
type Signer interface {
	Sign(id uint, username, role string) (string, error)
}

type Service struct {
	uow      dom.UnitOfWork
	signer   Signer
	validate *validator.Validate
	now      func() time.Time
}

func NewService(uow dom.UnitOfWork, signer Signer) *Service {
	return &Service{uow: uow, signer: signer, validate: validator.New(), now: time.Now}
}

// Session is the result of a successful login or registration.
type Session struct {
	User  *dom.User `json:"user"`
	Token string    `json:"token"`
}

// check runs struct tag validation and turns the first failure into a
// validation error naming the field.
func (s *Service) check(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var ves validator.ValidationErrors
	if errors.As(err, &ves) && len(ves) > 0 {
		fe := ves[0]
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			return dom.Validation("missing_fields", "Please provide all required fields")
		case "email":
			return dom.Validation("invalid_email", "Invalid email address")
		case "min":
			if field == "password" {
				return dom.Validation("weak_password", "Password must be at least 6 characters")
			}
		}
		return dom.Validation("invalid_"+field, "Invalid "+field)
	}
	return dom.Validation("invalid_input", err.Error())
}

func (s *Service) session(u *dom.User) (*Session, error) {
	tok, err := s.signer.Sign(u.ID, u.Username, u.Role.String())
	if err != nil {
		return nil, err
	}
	return &Session{User: u, Token: tok}, nil
}

func audit(actorID uint, action, entity string, id uint, desc string, meta map[string]any, at time.Time) *dom.AuditEntry {
	uid, eid := actorID, id
	return &dom.AuditEntry{
		UserID:      &uid,
		Action:      action,
		ActionType:  action,
		EntityType:  entity,
		EntityID:    &eid,
		Description: desc,
		Metadata:    meta,
		CreatedAt:   at,
	}
}

var errUserExists = dom.Conflict("user_exists", "Username or email already exists")
