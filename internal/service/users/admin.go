package users

import (
	"context"
	"strings"

	dom "github.com/cuihairu/govmsg/internal/ports"
)

var errAdminOnly = dom.Forbidden("admin_required", "Admin access required")

func requireAdmin(a dom.Actor) error {
	if a.Role != dom.RoleAdmin {
		return errAdminOnly
	}
	return nil
}

// NewUser is the admin input for creating an account. The department is
// given by id, or by name and created when missing.
type NewUser struct {
	Username       string `validate:"required,min=3,max=50"`
	Email          string `validate:"required,email"`
	Password       string `validate:"required,min=6"`
	FullName       string `validate:"required"`
	Role           string
	DepartmentID   *uint
	DepartmentName string
	Active         *bool
}

// resolveDepartment finds the department named by id or name, creating it by
// name when it does not exist. It returns nil when neither is given.
func resolveDepartment(ctx context.Context, tx dom.Stores, id *uint, name string) (*dom.Department, error) {
	if id != nil && *id != 0 {
		return tx.Users.GetDepartment(ctx, *id)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	d, err := tx.Users.FindDepartmentByName(ctx, name)
	if err == nil || !dom.IsNotFound(err) {
		return d, err
	}
	d = &dom.Department{Name: name}
	if err := tx.Users.CreateDepartment(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// CreateUser adds an account. A manager becomes the manager of their department.
func (s *Service) CreateUser(ctx context.Context, actor dom.Actor, in NewUser) (*dom.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.FullName = strings.TrimSpace(in.FullName)
	if err := s.check(in); err != nil {
		return nil, err
	}
	role := dom.RoleEmployee
	if strings.TrimSpace(in.Role) != "" {
		r, err := dom.NormalizeRole(in.Role)
		if err != nil {
			return nil, err
		}
		role = r
	}
	active := true
	if in.Active != nil {
		active = *in.Active
	}
	var out *dom.User
	err := s.uow.Do(ctx, func(ctx context.Context, tx dom.Stores) error {
		taken, err := tx.Users.Taken(ctx, in.Username, in.Email, 0)
		if err != nil {
			return err
		}
		if taken {
			return errUserExists
		}
		dept, err := resolveDepartment(ctx, tx, in.DepartmentID, in.DepartmentName)
		if err != nil {
			return err
		}
		u := &dom.User{Username: in.Username, Email: in.Email, FullName: in.FullName, Role: role, Active: active}
		if dept != nil {
			u.DepartmentID = &dept.ID
		}
		if err := tx.Users.CreateUser(ctx, u, in.Password); err != nil {
			return err
		}
		if role == dom.RoleManager && dept != nil {
			if err := tx.Users.SetDepartmentManager(ctx, dept.ID, u.ID); err != nil {
				return err
			}
		}
		meta := map[string]any{"username": u.Username, "role": role.String()}
		if err := tx.Audit.Record(ctx, audit(actor.ID, "user:create", "user", u.ID, "User created", meta, s.now())); err != nil {
			return err
		}
		out, err = tx.Users.GetUser(ctx, u.ID)
		return err
	})
	return out, err
}

func (s *Service) GetUser(ctx context.Context, actor dom.Actor, id uint) (*dom.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	return s.uow.Stores().Users.GetUser(ctx, id)
}

// UserFilter narrows the admin user listing.
type UserFilter struct {
	Role           string
	DepartmentID   uint
	DepartmentName string
	Active         *bool
	Page           int
	Limit          int
}

// UserPage is one window of the user listing.
type UserPage struct {
	Users      []*dom.User `json:"users"`
	Pagination dom.Page    `json:"pagination"`
}

func (s *Service) ListUsers(ctx context.Context, actor dom.Actor, f UserFilter) (*UserPage, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	var where []dom.Predicate
	if f.Role != "" {
		r, err := dom.NormalizeRole(f.Role)
		if err != nil {
			return nil, err
		}
		where = append(where, dom.Where("u.role IN ?", storedNames(r)))
	}
	switch {
	case f.DepartmentID != 0:
		where = append(where, dom.Where("u.department_id = ?", f.DepartmentID))
	case f.DepartmentName != "":
		where = append(where, dom.Where("d.name = ?", f.DepartmentName))
	}
	if f.Active != nil {
		where = append(where, dom.Where("u.active = ?", *f.Active))
	}
	page, limit := min(max(f.Page, 1), dom.MaxPage), f.Limit
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	us, total, err := s.uow.Stores().Users.ListUsers(ctx, where, dom.Page{Page: page, Limit: limit})
	if err != nil {
		return nil, err
	}
	if us == nil {
		us = []*dom.User{}
	}
	return &UserPage{Users: us, Pagination: dom.NewPage(page, limit, total)}, nil
}

// ResetPassword sets a new password on another account.
func (s *Service) ResetPassword(ctx context.Context, actor dom.Actor, id uint, password string) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	if len(password) < 6 {
		return dom.Validation("weak_password", "Password must be at least 6 characters")
	}
	return s.uow.Do(ctx, func(ctx context.Context, tx dom.Stores) error {
		if err := tx.Users.SetPassword(ctx, id, password); err != nil {
			return err
		}
		return tx.Audit.Record(ctx, audit(actor.ID, "user:reset_password", "user", id, "Password reset", nil, s.now()))
	})
}

func (s *Service) Departments(ctx context.Context) ([]*dom.Department, error) {
	ds, err := s.uow.Stores().Users.ListDepartments(ctx)
	if ds == nil && err == nil {
		ds = []*dom.Department{}
	}
	return ds, err
}

func (s *Service) CreateDepartment(ctx context.Context, actor dom.Actor, name string, managerID *uint) (*dom.Department, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dom.Validation("missing_fields", "Department name is required")
	}
	var out *dom.Department
	err := s.uow.Do(ctx, func(ctx context.Context, tx dom.Stores) error {
		if _, err := tx.Users.FindDepartmentByName(ctx, name); err == nil {
			return dom.Conflict("department_exists", "Department already exists")
		} else if !dom.IsNotFound(err) {
			return err
		}
		if managerID != nil {
			m, err := tx.Users.GetUser(ctx, *managerID)
			if err != nil {
				return err
			}
			if m.Role != dom.RoleManager {
				return dom.Validation("not_a_manager", "Department manager must have the manager role")
			}
		}
		d := &dom.Department{Name: name, ManagerID: managerID}
		if err := tx.Users.CreateDepartment(ctx, d); err != nil {
			return err
		}
		if err := tx.Audit.Record(ctx, audit(actor.ID, "department:create", "department", d.ID, "Department created", map[string]any{"name": name}, s.now())); err != nil {
			return err
		}
		var err error
		out, err = tx.Users.GetDepartment(ctx, d.ID)
		return err
	})
	return out, err
}
