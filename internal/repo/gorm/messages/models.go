package messagesgorm

import (
	"time"

	"gorm.io/gorm"
)

type MessageRecord struct {
	ID                   uint       `gorm:"primaryKey"`
	Number               string     `gorm:"column:message_number;size:64;uniqueIndex;not null"`
	Subject              string     `gorm:"size:255;not null"`
	Content              string     `gorm:"type:text;not null"`
	Type                 string     `gorm:"column:message_type;size:16;not null"`
	Priority             string     `gorm:"size:16;not null"`
	SenderID             uint       `gorm:"index;not null"`
	SenderDepartmentID   *uint      `gorm:"index"`
	ReceiverDepartmentID *uint      `gorm:"index"`
	RequiresApproval     bool       `gorm:"not null"`
	Status               string     `gorm:"size:32;index;not null;check:chk_messages_status,status IN ('draft','pending_manager_approval','pending_admin_approval','approved','rejected','returned_for_revision','sent','received')"`
	ApprovedBy           *uint
	ApprovedAt           *time.Time
	SubmittedAt          *time.Time
	SentAt               *time.Time
	ReceivedAt           *time.Time
	CreatedAt            time.Time `gorm:"index"`
	UpdatedAt            time.Time
}

func (MessageRecord) TableName() string { return "messages" }

// ApprovalRecord is one approver's decision on a message. DecidedBy differs
// from ApproverID when another approver closed the row.
type ApprovalRecord struct {
	ID         uint   `gorm:"primaryKey"`
	MessageID  uint   `gorm:"index;not null"`
	ApproverID uint   `gorm:"index;not null"`
	Status     string `gorm:"size:16;index;not null"`
	Comments   string `gorm:"type:text"`
	DecidedBy  *uint
	CreatedAt  time.Time
	ApprovedAt *time.Time
	UpdatedAt  time.Time
}

func (ApprovalRecord) TableName() string { return "approvals" }

type RecipientRecord struct {
	ID        uint   `gorm:"primaryKey"`
	MessageID uint   `gorm:"index;not null"`
	UserID    *uint  `gorm:"column:recipient_id;index"`
	Email     string `gorm:"column:recipient_email;size:128"`
	Name      string `gorm:"column:recipient_name;size:128"`
	Kind      string `gorm:"column:recipient_type;size:16;not null"`
	Status    string `gorm:"size:16;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (RecipientRecord) TableName() string { return "recipients" }

// AutoMigrate creates or updates the message, approval and recipient tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&MessageRecord{}, &ApprovalRecord{}, &RecipientRecord{})
}
