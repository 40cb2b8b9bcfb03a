package ports

import (
	"context"
	"time"
)

// MessageChanges lists the editable fields of a message; nil fields are left untouched.
type MessageChanges struct {
	Subject              *string
	Content              *string
	Type                 *MessageType
	Priority             *Priority
	RequiresApproval     *bool
	ReceiverDepartmentID *uint
}

// Empty reports whether no field is set.
func (c MessageChanges) Empty() bool {
	return c.Subject == nil && c.Content == nil && c.Type == nil && c.Priority == nil &&
		c.RequiresApproval == nil && c.ReceiverDepartmentID == nil
}

// Transition moves a message from one status to another. The move only
// happens while the stored status still equals From.
type Transition struct {
	From                 Status
	To                   Status
	At                   time.Time
	SenderDepartmentID   *uint
	ReceiverDepartmentID *uint
	RequiresApproval     *bool
	ApprovedBy           *uint
	Submitted            bool
	Sent                 bool
	Received             bool
}

// Decision closes pending approval rows of one message.
// ApprovalID narrows it to a single row; otherwise ApproverID narrows it to
// the rows assigned to one approver; with both zero every pending row is closed.
type Decision struct {
	MessageID  uint
	ApprovalID uint
	ApproverID uint
	Status     ApprovalStatus
	Comments   string
	DecidedBy  uint
	At         time.Time
}

type MessagesRepository interface {
	CreateMessage(ctx context.Context, m *Message) error
	GetMessage(ctx context.Context, id uint) (*Message, error)
	ListMessages(ctx context.Context, where []Predicate, page Page) ([]*Message, int64, error)
	// UpdateMessage applies ch while the stored status still equals from.
	UpdateMessage(ctx context.Context, id uint, from Status, ch MessageChanges, at time.Time) error
	Transition(ctx context.Context, id uint, t Transition) error
	DeleteMessage(ctx context.Context, id uint) error

	ReplaceRecipients(ctx context.Context, messageID uint, rs []Recipient) error
	ListRecipients(ctx context.Context, messageID uint) ([]Recipient, error)
	IsRecipient(ctx context.Context, messageID, userID uint) (bool, error)
	MarkRecipients(ctx context.Context, messageID uint, st RecipientStatus) error

	ResetApprovals(ctx context.Context, messageID uint, approverID *uint, at time.Time) error
	EnsurePendingApproval(ctx context.Context, messageID, approverID uint, at time.Time) (bool, error)
	HasPendingApprovalFrom(ctx context.Context, messageID uint, role Role) (bool, error)
	Decide(ctx context.Context, d Decision) (int64, error)
	GetApproval(ctx context.Context, id uint) (*Approval, error)
	ListApprovals(ctx context.Context, where []Predicate, page Page) ([]*Approval, int64, error)
	MessageApprovals(ctx context.Context, messageID uint) ([]Approval, error)
}

// DirectoryRepository is the read side of users and departments used by the lifecycle.
type DirectoryRepository interface {
	GetUser(ctx context.Context, id uint) (*User, error)
	FindUsers(ctx context.Context, ids []uint) ([]*User, error)
	// ActiveUserWithRole returns one active user holding role, restricted to
	// departmentID when it is non-nil. NotFound when nobody matches.
	ActiveUserWithRole(ctx context.Context, role Role, departmentID *uint) (*User, error)
	GetDepartment(ctx context.Context, id uint) (*Department, error)
}

type UsersRepository interface {
	DirectoryRepository

	CreateUser(ctx context.Context, u *User, password string) error
	Authenticate(ctx context.Context, login, password string) (*User, error)
	CheckPassword(ctx context.Context, id uint, password string) error
	SetPassword(ctx context.Context, id uint, password string) error
	UpdateProfile(ctx context.Context, id uint, fullName, email *string) error
	Taken(ctx context.Context, username, email string, exceptID uint) (bool, error)
	ListUsers(ctx context.Context, where []Predicate, page Page) ([]*User, int64, error)
	ListActiveUsers(ctx context.Context, where []Predicate) ([]*User, error)

	ListDepartments(ctx context.Context) ([]*Department, error)
	FindDepartmentByName(ctx context.Context, name string) (*Department, error)
	CreateDepartment(ctx context.Context, d *Department) error
	SetDepartmentManager(ctx context.Context, departmentID, userID uint) error
}

// AuditRecorder appends audit entries.
type AuditRecorder interface {
	Record(ctx context.Context, e *AuditEntry) error
}

type CountBy struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

type UserCount struct {
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
	Count    int64  `json:"count"`
}

type AuditStats struct {
	EntityStats []CountBy   `json:"entity_stats"`
	ActionStats []CountBy   `json:"action_stats"`
	UserStats   []UserCount `json:"user_stats"`
	TodayCount  int64       `json:"today_count"`
}

type AuditRepository interface {
	AuditRecorder
	ListAudit(ctx context.Context, where []Predicate, page Page) ([]*AuditEntry, int64, error)
	Stats(ctx context.Context, since, today time.Time) (*AuditStats, error)
}

// Stores groups repositories bound to the same connection or transaction.
type Stores struct {
	Messages MessagesRepository
	Users    UsersRepository
	Audit    AuditRepository
}

// UnitOfWork runs work against one transaction. Do commits when fn returns
// nil and rolls back on error or panic.
type UnitOfWork interface {
	Stores() Stores
	Do(ctx context.Context, fn func(ctx context.Context, tx Stores) error) error
	Ping(ctx context.Context) error
}
