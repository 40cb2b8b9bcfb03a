package auditgorm

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AuditLogRecord is an append-only audit row. Metadata holds the structured
// payload of lifecycle events.
type AuditLogRecord struct {
	ID          uint   `gorm:"primaryKey"`
	UserID      *uint  `gorm:"index"`
	Action      string `gorm:"size:255;not null"`
	ActionType  string `gorm:"size:100;index"`
	EntityType  string `gorm:"size:32;index"`
	EntityID    *uint  `gorm:"index"`
	Description string `gorm:"type:text"`
	Metadata    datatypes.JSON
	IPAddress   string    `gorm:"size:64"`
	UserAgent   string    `gorm:"size:255"`
	CreatedAt   time.Time `gorm:"index"`
}

func (AuditLogRecord) TableName() string { return "audit_logs" }

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&AuditLogRecord{})
}
