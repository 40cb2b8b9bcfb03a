package admincmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	dom "github.com/cuihairu/govmsg/internal/ports"
	"github.com/cuihairu/govmsg/internal/repo/gorm/uow"
)

const seedYAML = `
departments:
  - HQ
  - HR
users:
  - username: admin
    email: Admin@Gov.test
    password: admin123
    full_name: System Admin
    role: admin
  - username: hrboss
    email: hrboss@gov.test
    password: manager1
    full_name: HR Boss
    role: manager
    department: HR
  - username: clerk
    email: clerk@gov.test
    password: clerk12
    full_name: Clerk
    role: user
    department: Archive
`

func newUoW(t *testing.T) *uow.UnitOfWork {
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
	return uow.New(gdb)
}

func TestSeedIsIdempotent(t *testing.T) {
	p := filepath.Join(t.TempDir(), "seed.yaml")
	if err := os.WriteFile(p, []byte(seedYAML), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	f, err := LoadSeed(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	u := newUoW(t)
	ctx := context.Background()

	rep, err := Seed(ctx, u, f)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if rep.Departments != 3 || rep.Users != 3 || rep.Skipped != 0 {
		t.Fatalf("first run: %+v", rep)
	}
	rep, err = Seed(ctx, u, f)
	if err != nil {
		t.Fatalf("reseed: %v", err)
	}
	if rep.Departments != 0 || rep.Users != 0 || rep.Skipped != 3 {
		t.Fatalf("second run: %+v", rep)
	}

	store := u.Stores().Users
	hr, err := store.FindDepartmentByName(ctx, "HR")
	if err != nil {
		t.Fatalf("find HR: %v", err)
	}
	boss, err := store.Authenticate(ctx, "hrboss", "manager1")
	if err != nil {
		t.Fatalf("login hrboss: %v", err)
	}
	if hr.ManagerID == nil || *hr.ManagerID != boss.ID {
		t.Fatalf("HR manager not assigned: %+v", hr)
	}
	clerk, err := store.Authenticate(ctx, "clerk@gov.test", "clerk12")
	if err != nil {
		t.Fatalf("login clerk: %v", err)
	}
	if clerk.Role != dom.RoleEmployee {
		t.Fatalf("legacy role should map to employee, got %v", clerk.Role)
	}
	if _, err := store.Authenticate(ctx, "admin@gov.test", "admin123"); err != nil {
		t.Fatalf("email should be stored lowercased: %v", err)
	}
}

func TestSeedRejectsUnknownRole(t *testing.T) {
	u := newUoW(t)
	_, err := Seed(context.Background(), u, &SeedFile{Users: []SeedUser{{
		Username: "x", Email: "x@gov.test", Password: "secret1", Role: "superuser",
	}}})
	if err == nil {
		t.Fatal("expected an error for an unknown role")
	}
	ds, err := u.Stores().Users.ListDepartments(context.Background())
	if err != nil || len(ds) != 0 {
		t.Fatalf("nothing should be written: %v %v", ds, err)
	}
}
