package admincmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	dom "github.com/cuihairu/govmsg/internal/ports"
)

// SeedFile lists the departments and accounts to bootstrap.
type SeedFile struct {
	Departments []string   `yaml:"departments"`
	Users       []SeedUser `yaml:"users"`
}

type SeedUser struct {
	Username   string `yaml:"username"`
	Email      string `yaml:"email"`
	Password   string `yaml:"password"`
	FullName   string `yaml:"full_name"`
	Role       string `yaml:"role"`
	Department string `yaml:"department"`
	Active     *bool  `yaml:"active"`
}

// SeedReport counts what Seed created.
type SeedReport struct {
	Departments int
	Users       int
	Skipped     int
}

func LoadSeed(path string) (*SeedFile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f SeedFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &f, nil
}

// Seed creates missing departments and users in one transaction. Existing
// rows are left alone, so the seed can be applied repeatedly. A manager
// becomes the manager of their department.
func Seed(ctx context.Context, uow dom.UnitOfWork, f *SeedFile) (SeedReport, error) {
	var rep SeedReport
	err := uow.Do(ctx, func(ctx context.Context, tx dom.Stores) error {
		rep = SeedReport{}
		depts := map[string]*dom.Department{}
		department := func(name string) (*dom.Department, error) {
			name = strings.TrimSpace(name)
			if d, ok := depts[name]; ok {
				return d, nil
			}
			d, err := tx.Users.FindDepartmentByName(ctx, name)
			if dom.IsNotFound(err) {
				d = &dom.Department{Name: name}
				if err = tx.Users.CreateDepartment(ctx, d); err == nil {
					rep.Departments++
				}
			}
			if err != nil {
				return nil, err
			}
			depts[name] = d
			return d, nil
		}
		for _, name := range f.Departments {
			if _, err := department(name); err != nil {
				return err
			}
		}
		for _, su := range f.Users {
			role, err := dom.NormalizeRole(su.Role)
			if err != nil {
				return fmt.Errorf("user %s: %w", su.Username, err)
			}
			email := strings.ToLower(strings.TrimSpace(su.Email))
			taken, err := tx.Users.Taken(ctx, su.Username, email, 0)
			if err != nil {
				return err
			}
			if taken {
				rep.Skipped++
				continue
			}
			if len(su.Password) < 6 {
				return fmt.Errorf("user %s: password must have at least 6 characters", su.Username)
			}
			u := &dom.User{Username: su.Username, Email: email, FullName: su.FullName, Role: role, Active: true}
			if su.Active != nil {
				u.Active = *su.Active
			}
			var d *dom.Department
			if su.Department != "" {
				if d, err = department(su.Department); err != nil {
					return err
				}
				u.DepartmentID = &d.ID
			}
			if err := tx.Users.CreateUser(ctx, u, su.Password); err != nil {
				return fmt.Errorf("user %s: %w", su.Username, err)
			}
			if role == dom.RoleManager && d != nil {
				if err := tx.Users.SetDepartmentManager(ctx, d.ID, u.ID); err != nil {
					return err
				}
			}
			rep.Users++
		}
		return nil
	})
	if err != nil {
		return SeedReport{}, err
	}
	slog.Info("seed applied", "departments", rep.Departments, "users", rep.Users, "skipped", rep.Skipped)
	return rep, nil
}
