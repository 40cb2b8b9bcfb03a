package users

import (
	"context"
	"strings"

	dom "github.com/cuihairu/govmsg/internal/ports"
)

// Registration is the self-service sign-up input. New accounts are employees.
type Registration struct {
	Username     string `validate:"required,min=3,max=50"`
	Email        string `validate:"required,email"`
	Password     string `validate:"required,min=6"`
	FullName     string `validate:"required"`
	DepartmentID *uint
}

func (r *Registration) trim() {
	r.Username = strings.TrimSpace(r.Username)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.FullName = strings.TrimSpace(r.FullName)
}

func (s *Service) Register(ctx context.Context, in Registration) (*Session, error) {
	in.trim()
	if err := s.check(in); err != nil {
		return nil, err
	}
	var created *dom.User
	err := s.uow.Do(ctx, func(ctx context.Context, tx dom.Stores) error {
		taken, err := tx.Users.Taken(ctx, in.Username, in.Email, 0)
		if err != nil {
			return err
		}
		if taken {
			return errUserExists
		}
		if in.DepartmentID != nil {
			if _, err := tx.Users.GetDepartment(ctx, *in.DepartmentID); err != nil {
				return err
			}
		}
		u := &dom.User{
			Username:     in.Username,
			Email:        in.Email,
			FullName:     in.FullName,
			Role:         dom.RoleEmployee,
			DepartmentID: in.DepartmentID,
			Active:       true,
		}
		if err := tx.Users.CreateUser(ctx, u, in.Password); err != nil {
			return err
		}
		if err := tx.Audit.Record(ctx, audit(u.ID, "user:register", "user", u.ID, "User registered", nil, s.now())); err != nil {
			return err
		}
		created, err = tx.Users.GetUser(ctx, u.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.session(created)
}

// Login accepts a username or an email address.
func (s *Service) Login(ctx context.Context, login, password string) (*Session, error) {
	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return nil, dom.Validation("missing_credentials", "Username and password are required")
	}
	u, err := s.uow.Stores().Users.Authenticate(ctx, login, password)
	if err != nil {
		return nil, err
	}
	return s.session(u)
}

// Caller resolves a token subject to the stored account.
func (s *Service) Caller(ctx context.Context, id uint) (*dom.User, error) {
	u, err := s.uow.Stores().Users.GetUser(ctx, id)
	if dom.IsNotFound(err) {
		return nil, dom.Unauthenticated("user_not_found", "User no longer exists")
	}
	if err != nil {
		return nil, err
	}
	if !u.Active {
		return nil, dom.Forbidden("account_inactive", "Account is deactivated")
	}
	return u, nil
}

func (s *Service) Profile(ctx context.Context, actor dom.Actor) (*dom.User, error) {
	return s.uow.Stores().Users.GetUser(ctx, actor.ID)
}

// ProfileChanges lists the fields a user may change on their own account.
type ProfileChanges struct {
	FullName *string
	Email    *string
}

func (s *Service) UpdateProfile(ctx context.Context, actor dom.Actor, ch ProfileChanges) (*dom.User, error) {
	if ch.FullName != nil {
		v := strings.TrimSpace(*ch.FullName)
		if v == "" {
			return nil, dom.Validation("missing_fields", "Full name cannot be empty")
		}
		ch.FullName = &v
	}
	if ch.Email != nil {
		v := strings.ToLower(strings.TrimSpace(*ch.Email))
		if err := s.validate.Var(v, "required,email"); err != nil {
			return nil, dom.Validation("invalid_email", "Invalid email address")
		}
		ch.Email = &v
	}
	if ch.FullName == nil && ch.Email == nil {
		return nil, dom.Validation("no_changes", "Nothing to update")
	}
	var out *dom.User
	err := s.uow.Do(ctx, func(ctx context.Context, tx dom.Stores) error {
		if ch.Email != nil {
			taken, err := tx.Users.Taken(ctx, "", *ch.Email, actor.ID)
			if err != nil {
				return err
			}
			if taken {
				return dom.Conflict("email_taken", "Email already in use")
			}
		}
		if err := tx.Users.UpdateProfile(ctx, actor.ID, ch.FullName, ch.Email); err != nil {
			return err
		}
		if err := tx.Audit.Record(ctx, audit(actor.ID, "user:update_profile", "user", actor.ID, "Profile updated", nil, s.now())); err != nil {
			return err
		}
		var err error
		out, err = tx.Users.GetUser(ctx, actor.ID)
		return err
	})
	return out, err
}

func (s *Service) ChangePassword(ctx context.Context, actor dom.Actor, current, next string) error {
	if current == "" || next == "" {
		return dom.Validation("missing_fields", "Current and new password are required")
	}
	if len(next) < 6 {
		return dom.Validation("weak_password", "Password must be at least 6 characters")
	}
	return s.uow.Do(ctx, func(ctx context.Context, tx dom.Stores) error {
		if err := tx.Users.CheckPassword(ctx, actor.ID, current); err != nil {
			if dom.KindOf(err) == dom.KindAuthentication {
				return dom.Validation("invalid_password", "Current password is incorrect")
			}
			return err
		}
		if err := tx.Users.SetPassword(ctx, actor.ID, next); err != nil {
			return err
		}
		return tx.Audit.Record(ctx, audit(actor.ID, "user:change_password", "user", actor.ID, "Password changed", nil, s.now()))
	})
}
