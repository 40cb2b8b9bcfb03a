package usersgorm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cuihairu/govmsg/internal/ports"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Repo implements ports.UsersRepository. List predicates may reference the
// user table as "u" and its department as "d".
type Repo struct{ db *gorm.DB }

func New(db *gorm.DB) *Repo { return &Repo{db: db} }

var _ ports.UsersRepository = (*Repo)(nil)

type userRow struct {
	UserRecord
	DepartmentName string
}

type departmentRow struct {
	DepartmentRecord
	ManagerName string
}

func (r *Repo) users(ctx context.Context, where []ports.Predicate) *gorm.DB {
	q := r.db.WithContext(ctx).Table("users AS u").
		Joins("LEFT JOIN departments d ON d.id = u.department_id").
		Where("u.deleted_at IS NULL")
	for _, p := range where {
		q = q.Where(p.SQL, p.Args...)
	}
	return q
}

func (r *Repo) scanUsers(q *gorm.DB) ([]*ports.User, error) {
	var rows []userRow
	if err := q.Select("u.*, d.name AS department_name").Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*ports.User, 0, len(rows))
	for i := range rows {
		u, err := toUser(&rows[i].UserRecord, rows[i].DepartmentName)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

func toUser(rec *UserRecord, deptName string) (*ports.User, error) {
	role, err := ports.NormalizeRole(rec.Role)
	if err != nil {
		return nil, fmt.Errorf("user %d: %w", rec.ID, err)
	}
	return &ports.User{
		ID:             rec.ID,
		Username:       rec.Username,
		Email:          rec.Email,
		FullName:       rec.FullName,
		Role:           role,
		DepartmentID:   rec.DepartmentID,
		DepartmentName: deptName,
		Active:         rec.Active,
		CreatedAt:      rec.CreatedAt,
		UpdatedAt:      rec.UpdatedAt,
	}, nil
}

func (r *Repo) one(ctx context.Context, where ...ports.Predicate) (*ports.User, error) {
	arr, err := r.scanUsers(r.users(ctx, where).Order("u.id").Limit(1))
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if len(arr) == 0 {
		return nil, ports.NotFound("user_not_found", "User not found")
	}
	return arr[0], nil
}

func (r *Repo) GetUser(ctx context.Context, id uint) (*ports.User, error) {
	return r.one(ctx, ports.Where("u.id = ?", id))
}

func (r *Repo) FindUsers(ctx context.Context, ids []uint) ([]*ports.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	arr, err := r.scanUsers(r.users(ctx, []ports.Predicate{ports.Where("u.id IN ?", ids)}).Order("u.id"))
	if err != nil {
		return nil, fmt.Errorf("find users: %w", err)
	}
	return arr, nil
}

// roleNames lists the stored names that normalize to role.
func roleNames(role ports.Role) []string {
	if role == ports.RoleEmployee {
		return []string{"employee", "user"}
	}
	return []string{role.String()}
}

func (r *Repo) ActiveUserWithRole(ctx context.Context, role ports.Role, departmentID *uint) (*ports.User, error) {
	where := []ports.Predicate{
		ports.Where("u.role IN ?", roleNames(role)),
		ports.Where("u.active = ?", true),
	}
	if departmentID != nil {
		where = append(where, ports.Where("u.department_id = ?", *departmentID))
	}
	return r.one(ctx, where...)
}

func (r *Repo) CreateUser(ctx context.Context, u *ports.User, password string) error {
	if u == nil {
		return nil
	}
	h, err := hash(password)
	if err != nil {
		return err
	}
	rec := &UserRecord{
		Username:     u.Username,
		Email:        u.Email,
		FullName:     u.FullName,
		PasswordHash: h,
		Role:         u.Role.String(),
		DepartmentID: u.DepartmentID,
		Active:       u.Active,
	}
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	u.ID, u.CreatedAt, u.UpdatedAt = rec.ID, rec.CreatedAt, rec.UpdatedAt
	return nil
}

func hash(plain string) (string, error) {
	if strings.TrimSpace(plain) == "" {
		return "", ports.Validation("password_required", "Password is required")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

var errBadCredentials = ports.Unauthenticated("invalid_credentials", "Invalid credentials")

// Authenticate looks the account up by username or email and checks the password.
func (r *Repo) Authenticate(ctx context.Context, login, password string) (*ports.User, error) {
	var rec UserRecord
	err := r.db.WithContext(ctx).Where("username = ? OR email = ?", login, login).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errBadCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("authenticate: %w", err)
	}
	if rec.PasswordHash == "" || bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte(password)) != nil {
		return nil, errBadCredentials
	}
	if !rec.Active {
		return nil, ports.Forbidden("account_inactive", "Account is deactivated")
	}
	return r.GetUser(ctx, rec.ID)
}

func (r *Repo) CheckPassword(ctx context.Context, id uint, password string) error {
	var rec UserRecord
	err := r.db.WithContext(ctx).First(&rec, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ports.NotFound("user_not_found", "User not found")
	}
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte(password)) != nil {
		return ports.Unauthenticated("invalid_password", "Current password is incorrect")
	}
	return nil
}

func (r *Repo) SetPassword(ctx context.Context, id uint, password string) error {
	h, err := hash(password)
	if err != nil {
		return err
	}
	res := r.db.WithContext(ctx).Model(&UserRecord{}).Where("id = ?", id).Update("password_hash", h)
	if res.Error != nil {
		return fmt.Errorf("set password: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ports.NotFound("user_not_found", "User not found")
	}
	return nil
}

func (r *Repo) UpdateProfile(ctx context.Context, id uint, fullName, email *string) error {
	upd := map[string]any{}
	if fullName != nil {
		upd["full_name"] = *fullName
	}
	if email != nil {
		upd["email"] = *email
	}
	if len(upd) == 0 {
		return nil
	}
	res := r.db.WithContext(ctx).Model(&UserRecord{}).Where("id = ?", id).Updates(upd)
	if res.Error != nil {
		return fmt.Errorf("update profile: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ports.NotFound("user_not_found", "User not found")
	}
	return nil
}

// Taken reports whether another account already uses username or email.
func (r *Repo) Taken(ctx context.Context, username, email string, exceptID uint) (bool, error) {
	var n int64
	q := r.db.WithContext(ctx).Model(&UserRecord{}).Where("id <> ?", exceptID)
	switch {
	case username != "" && email != "":
		q = q.Where("username = ? OR email = ?", username, email)
	case username != "":
		q = q.Where("username = ?", username)
	case email != "":
		q = q.Where("email = ?", email)
	default:
		return false, nil
	}
	if err := q.Count(&n).Error; err != nil {
		return false, fmt.Errorf("check user uniqueness: %w", err)
	}
	return n > 0, nil
}

func (r *Repo) ListUsers(ctx context.Context, where []ports.Predicate, page ports.Page) ([]*ports.User, int64, error) {
	var total int64
	if err := r.users(ctx, where).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}
	arr, err := r.scanUsers(r.users(ctx, where).Order("u.created_at DESC, u.id DESC").Limit(page.Limit).Offset(page.Offset()))
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	return arr, total, nil
}

func (r *Repo) ListActiveUsers(ctx context.Context, where []ports.Predicate) ([]*ports.User, error) {
	where = append([]ports.Predicate{ports.Where("u.active = ?", true)}, where...)
	arr, err := r.scanUsers(r.users(ctx, where).Order("u.full_name, u.id"))
	if err != nil {
		return nil, fmt.Errorf("list active users: %w", err)
	}
	return arr, nil
}

// Departments

func (r *Repo) departments(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Table("departments AS d").
		Select("d.*, m.full_name AS manager_name").
		Joins("LEFT JOIN users m ON m.id = d.manager_id AND m.deleted_at IS NULL")
}

func toDepartment(row *departmentRow) *ports.Department {
	return &ports.Department{ID: row.ID, Name: row.Name, ManagerID: row.ManagerID, ManagerName: row.ManagerName}
}

func (r *Repo) ListDepartments(ctx context.Context) ([]*ports.Department, error) {
	var rows []departmentRow
	if err := r.departments(ctx).Order("d.name").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("list departments: %w", err)
	}
	out := make([]*ports.Department, 0, len(rows))
	for i := range rows {
		out = append(out, toDepartment(&rows[i]))
	}
	return out, nil
}

func (r *Repo) firstDepartment(q *gorm.DB) (*ports.Department, error) {
	var rows []departmentRow
	if err := q.Limit(1).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("load department: %w", err)
	}
	if len(rows) == 0 {
		return nil, ports.NotFound("department_not_found", "Department not found")
	}
	return toDepartment(&rows[0]), nil
}

func (r *Repo) GetDepartment(ctx context.Context, id uint) (*ports.Department, error) {
	return r.firstDepartment(r.departments(ctx).Where("d.id = ?", id))
}

func (r *Repo) FindDepartmentByName(ctx context.Context, name string) (*ports.Department, error) {
	return r.firstDepartment(r.departments(ctx).Where("d.name = ?", strings.TrimSpace(name)))
}

func (r *Repo) CreateDepartment(ctx context.Context, d *ports.Department) error {
	if d == nil {
		return nil
	}
	rec := &DepartmentRecord{Name: strings.TrimSpace(d.Name), ManagerID: d.ManagerID}
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("create department: %w", err)
	}
	d.ID = rec.ID
	return nil
}

func (r *Repo) SetDepartmentManager(ctx context.Context, departmentID, userID uint) error {
	res := r.db.WithContext(ctx).Model(&DepartmentRecord{}).Where("id = ?", departmentID).Update("manager_id", userID)
	if res.Error != nil {
		return fmt.Errorf("set department manager: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ports.NotFound("department_not_found", "Department not found")
	}
	return nil
}
