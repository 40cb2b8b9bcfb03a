package users

import (
	"context"
	"fmt"
	"testing"

	dom "github.com/cuihairu/govmsg/internal/ports"
	"github.com/cuihairu/govmsg/internal/repo/gorm/uow"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type fakeSigner struct{}

func (fakeSigner) Sign(id uint, username, role string) (string, error) {
	return fmt.Sprintf("tok-%d-%s-%s", id, username, role), nil
}

func newService(t *testing.T) (*Service, *uow.UnitOfWork) {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := gdb.DB()
	sqlDB.SetMaxOpenConns(1)
	if err := uow.AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	u := uow.New(gdb)
	return NewService(u, fakeSigner{}), u
}

var root = dom.Actor{ID: 1000, Username: "root", Role: dom.RoleAdmin}

func wantKind(t *testing.T, err error, kind dom.Kind, code string) {
	t.Helper()
	e := dom.AsError(err)
	if err == nil || e.Kind != kind || (code != "" && e.Code != code) {
		t.Fatalf("want %s/%s, got %v", kind, code, err)
	}
}

func TestRegisterAndLogin(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()

	sess, err := s.Register(ctx, Registration{Username: "alice", Email: " Alice@Gov.test ", Password: "secret1", FullName: "Alice"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if sess.User.Role != dom.RoleEmployee || sess.User.Email != "alice@gov.test" || sess.Token == "" {
		t.Fatalf("session: %+v", sess)
	}

	_, err = s.Register(ctx, Registration{Username: "alice", Email: "other@gov.test", Password: "secret1", FullName: "A"})
	wantKind(t, err, dom.KindConflict, "user_exists")
	_, err = s.Register(ctx, Registration{Username: "bob", Email: "bob@gov.test", Password: "123", FullName: "Bob"})
	wantKind(t, err, dom.KindValidation, "weak_password")
	_, err = s.Register(ctx, Registration{Username: "bob", Email: "not-an-email", Password: "secret1", FullName: "Bob"})
	wantKind(t, err, dom.KindValidation, "invalid_email")

	if _, err := s.Login(ctx, "alice@gov.test", "secret1"); err != nil {
		t.Fatalf("login by email: %v", err)
	}
	_, err = s.Login(ctx, "alice", "wrong")
	wantKind(t, err, dom.KindAuthentication, "invalid_credentials")
	_, err = s.Login(ctx, "", "")
	wantKind(t, err, dom.KindValidation, "")
}

func TestCallerChecksAccount(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	off := false
	u, err := s.CreateUser(ctx, root, NewUser{Username: "ghost", Email: "ghost@gov.test", Password: "secret1", FullName: "Ghost", Active: &off})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err = s.Caller(ctx, u.ID)
	wantKind(t, err, dom.KindAuthorization, "account_inactive")
	_, err = s.Caller(ctx, 9999)
	wantKind(t, err, dom.KindAuthentication, "")
}

func TestCreateUserResolvesDepartment(t *testing.T) {
	s, u := newService(t)
	ctx := context.Background()

	mgr, err := s.CreateUser(ctx, root, NewUser{
		Username: "hana", Email: "hana@gov.test", Password: "secret1", FullName: "Hana",
		Role: "manager", DepartmentName: "Legal",
	})
	if err != nil {
		t.Fatalf("create manager: %v", err)
	}
	if mgr.DepartmentID == nil || mgr.DepartmentName != "Legal" {
		t.Fatalf("department not created: %+v", mgr)
	}
	d, err := u.Stores().Users.GetDepartment(ctx, *mgr.DepartmentID)
	if err != nil || d.ManagerID == nil || *d.ManagerID != mgr.ID {
		t.Fatalf("manager not assigned: %+v %v", d, err)
	}

	emp, err := s.CreateUser(ctx, root, NewUser{
		Username: "omar", Email: "omar@gov.test", Password: "secret1", FullName: "Omar",
		Role: "user", DepartmentName: "Legal",
	})
	if err != nil {
		t.Fatalf("create employee: %v", err)
	}
	if emp.Role != dom.RoleEmployee || *emp.DepartmentID != *mgr.DepartmentID {
		t.Fatalf("employee: %+v", emp)
	}

	missing := uint(77)
	_, err = s.CreateUser(ctx, root, NewUser{Username: "zed", Email: "zed@gov.test", Password: "secret1", FullName: "Zed", DepartmentID: &missing})
	wantKind(t, err, dom.KindNotFound, "department_not_found")
	_, err = s.CreateUser(ctx, root, NewUser{Username: "zed", Email: "zed@gov.test", Password: "secret1", FullName: "Zed", Role: "owner"})
	wantKind(t, err, dom.KindValidation, "invalid_role")
	_, err = s.CreateUser(ctx, dom.Actor{ID: mgr.ID, Role: dom.RoleManager}, NewUser{})
	wantKind(t, err, dom.KindAuthorization, "admin_required")

	page, err := s.ListUsers(ctx, root, UserFilter{Role: "employee"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Pagination.Total != 1 || page.Users[0].ID != emp.ID {
		t.Fatalf("employee filter: %+v", page.Pagination)
	}
}

func TestProfileAndPassword(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	a, _ := s.Register(ctx, Registration{Username: "alice", Email: "alice@gov.test", Password: "secret1", FullName: "Alice"})
	b, _ := s.Register(ctx, Registration{Username: "bob", Email: "bob@gov.test", Password: "secret1", FullName: "Bob"})
	actor := a.User.Actor()

	taken := "bob@gov.test"
	_, err := s.UpdateProfile(ctx, actor, ProfileChanges{Email: &taken})
	wantKind(t, err, dom.KindConflict, "email_taken")

	name := "Alice Q."
	u, err := s.UpdateProfile(ctx, actor, ProfileChanges{FullName: &name})
	if err != nil || u.FullName != name {
		t.Fatalf("update profile: %+v %v", u, err)
	}

	wantKind(t, s.ChangePassword(ctx, actor, "wrong", "secret2"), dom.KindValidation, "invalid_password")
	if err := s.ChangePassword(ctx, actor, "secret1", "secret2"); err != nil {
		t.Fatalf("change password: %v", err)
	}
	if _, err := s.Login(ctx, "alice", "secret2"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}

	if err := s.ResetPassword(ctx, root, b.User.ID, "reset-1"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if _, err := s.Login(ctx, "bob", "reset-1"); err != nil {
		t.Fatalf("login after reset: %v", err)
	}
}

func TestRecipientDirectory(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	mk := func(name, role, dept string) *dom.User {
		u, err := s.CreateUser(ctx, root, NewUser{Username: name, Email: name + "@gov.test", Password: "secret1", FullName: name, Role: role, DepartmentName: dept})
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		return u
	}
	admin := mk("admin1", "admin", "")
	mgrA := mk("mgra", "manager", "A")
	mk("mgrb", "manager", "B")
	empA := mk("empa", "employee", "A")
	mk("empb", "employee", "B")

	d, err := s.Recipients(ctx, empA.Actor())
	if err != nil {
		t.Fatalf("recipients: %v", err)
	}
	// own department, both managers and the admin; not the employee of B
	if len(d.Recipients) != 4 || len(d.Grouped.Managers) != 2 || len(d.Grouped.Admins) != 1 {
		t.Fatalf("employee directory: %d %+v", len(d.Recipients), d.Grouped)
	}

	d, _ = s.Recipients(ctx, mgrA.Actor())
	if len(d.Grouped.Employees) != 1 || len(d.Grouped.Managers) != 1 || len(d.Grouped.Admins) != 1 {
		t.Fatalf("manager directory: %+v", d.Grouped)
	}

	d, _ = s.Recipients(ctx, admin.Actor())
	if len(d.Recipients) != 5 {
		t.Fatalf("admin directory: %d", len(d.Recipients))
	}
}

func TestCreateDepartment(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	d, err := s.CreateDepartment(ctx, root, " Records ", nil)
	if err != nil || d.Name != "Records" {
		t.Fatalf("create: %+v %v", d, err)
	}
	_, err = s.CreateDepartment(ctx, root, "Records", nil)
	wantKind(t, err, dom.KindConflict, "department_exists")
	ds, _ := s.Departments(ctx)
	if len(ds) != 1 {
		t.Fatalf("departments: %d", len(ds))
	}
}
