package users

import (
	"context"

	dom "github.com/cuihairu/govmsg/internal/ports"
)

// Directory lists the users a caller may address, grouped by role.
type Directory struct {
	Recipients []*dom.User `json:"recipients"`
	Grouped    struct {
		Admins    []*dom.User `json:"admins"`
		Managers  []*dom.User `json:"managers"`
		Employees []*dom.User `json:"employees"`
	} `json:"grouped"`
}

func storedNames(r dom.Role) []string {
	if r == dom.RoleEmployee {
		return []string{"employee", "user"}
	}
	return []string{r.String()}
}

// directoryScope restricts the active users an actor may pick as recipients.
// Admins see everyone. Managers see admins, other managers and the employees
// of their department. Employees see their department, every manager and
// every admin.
func directoryScope(a dom.Actor) []dom.Predicate {
	switch a.Role {
	case dom.RoleAdmin:
		return nil
	case dom.RoleManager:
		ps := []dom.Predicate{
			dom.Where("u.role = ?", "admin"),
			dom.Where("(u.role = ? AND u.id <> ?)", "manager", a.ID),
		}
		if a.DepartmentID != nil {
			ps = append(ps, dom.Where("(u.role IN ? AND u.department_id = ?)", storedNames(dom.RoleEmployee), *a.DepartmentID))
		}
		return []dom.Predicate{dom.AnyOf(ps...)}
	case dom.RoleEmployee:
		ps := []dom.Predicate{dom.Where("u.role IN ?", []string{"manager", "admin"})}
		if a.DepartmentID != nil {
			ps = append(ps, dom.Where("u.department_id = ?", *a.DepartmentID))
		}
		return []dom.Predicate{dom.AnyOf(ps...)}
	}
	return []dom.Predicate{dom.Never()}
}

func (s *Service) Recipients(ctx context.Context, actor dom.Actor) (*Directory, error) {
	us, err := s.uow.Stores().Users.ListActiveUsers(ctx, directoryScope(actor))
	if err != nil {
		return nil, err
	}
	d := &Directory{Recipients: []*dom.User{}}
	d.Grouped.Admins, d.Grouped.Managers, d.Grouped.Employees = []*dom.User{}, []*dom.User{}, []*dom.User{}
	for _, u := range us {
		d.Recipients = append(d.Recipients, u)
		switch u.Role {
		case dom.RoleAdmin:
			d.Grouped.Admins = append(d.Grouped.Admins, u)
		case dom.RoleManager:
			d.Grouped.Managers = append(d.Grouped.Managers, u)
		case dom.RoleEmployee:
			d.Grouped.Employees = append(d.Grouped.Employees, u)
		}
	}
	return d, nil
}
