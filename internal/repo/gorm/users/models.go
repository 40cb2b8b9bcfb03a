package usersgorm

import (
	"time"

	"gorm.io/gorm"
)

// UserRecord is the DB model for an account. Role keeps the stored name and
// is normalized when read back.
type UserRecord struct {
	gorm.Model
	Username     string `gorm:"size:64;uniqueIndex;not null"`
	Email        string `gorm:"size:128;uniqueIndex;not null"`
	FullName     string `gorm:"size:128"`
	PasswordHash string `gorm:"size:255"`
	Role         string `gorm:"size:16;index;not null"`
	DepartmentID *uint  `gorm:"index"`
	Active       bool
}

func (UserRecord) TableName() string { return "users" }

type DepartmentRecord struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"size:128;uniqueIndex;not null"`
	ManagerID *uint  `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (DepartmentRecord) TableName() string { return "departments" }

// AutoMigrate creates or updates the users and departments tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&DepartmentRecord{}, &UserRecord{})
}
