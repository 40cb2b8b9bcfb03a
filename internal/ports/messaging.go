package ports

import (
	"strings"
	"time"
)

// Status is the lifecycle state of a message.
type Status string

const (
	StatusDraft               Status = "draft"
	StatusPendingManager      Status = "pending_manager_approval"
	StatusPendingAdmin        Status = "pending_admin_approval"
	StatusApproved            Status = "approved"
	StatusRejected            Status = "rejected"
	StatusReturnedForRevision Status = "returned_for_revision"
	StatusSent                Status = "sent"
	StatusReceived            Status = "received"
)

// Statuses lists every persisted lifecycle state.
var Statuses = []Status{
	StatusDraft, StatusPendingManager, StatusPendingAdmin, StatusApproved,
	StatusRejected, StatusReturnedForRevision, StatusSent, StatusReceived,
}

func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// In reports whether s is one of set.
func (s Status) In(set ...Status) bool {
	for _, v := range set {
		if s == v {
			return true
		}
	}
	return false
}

// Pending reports whether the message waits for an approver.
func (s Status) Pending() bool { return s == StatusPendingManager || s == StatusPendingAdmin }

type MessageType string

const (
	TypeInternal MessageType = "internal"
	TypeExternal MessageType = "external"
	TypeOfficial MessageType = "official"
)

func (t MessageType) Valid() bool {
	return t == TypeInternal || t == TypeExternal || t == TypeOfficial
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

func (s ApprovalStatus) Valid() bool {
	return s == ApprovalPending || s == ApprovalApproved || s == ApprovalRejected
}

type RecipientKind string

const (
	RecipientUser     RecipientKind = "user"
	RecipientExternal RecipientKind = "external"
)

type RecipientStatus string

const (
	RecipientPending   RecipientStatus = "pending"
	RecipientSent      RecipientStatus = "sent"
	RecipientDelivered RecipientStatus = "delivered"
)

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID           uint
	Username     string
	Role         Role
	DepartmentID *uint
}

// InDepartment reports whether the actor belongs to department id.
func (a Actor) InDepartment(id *uint) bool {
	return a.DepartmentID != nil && id != nil && *a.DepartmentID == *id
}

type Message struct {
	ID                     uint        `json:"id"`
	Number                 string      `json:"message_number"`
	Subject                string      `json:"subject"`
	Content                string      `json:"content"`
	Type                   MessageType `json:"message_type"`
	Priority               Priority    `json:"priority"`
	SenderID               uint        `json:"sender_id"`
	SenderName             string      `json:"sender_name,omitempty"`
	SenderRole             string      `json:"sender_role,omitempty"`
	SenderDepartmentID     *uint       `json:"sender_department_id"`
	SenderDepartmentName   string      `json:"sender_department_name,omitempty"`
	ReceiverDepartmentID   *uint       `json:"receiver_department_id"`
	ReceiverDepartmentName string      `json:"receiver_department_name,omitempty"`
	RequiresApproval       bool        `json:"requires_approval"`
	Status                 Status      `json:"status"`
	ApprovedBy             *uint       `json:"approved_by"`
	ApproverName           string      `json:"approver_name,omitempty"`
	ApprovedAt             *time.Time  `json:"approved_at"`
	SubmittedAt            *time.Time  `json:"submitted_at"`
	SentAt                 *time.Time  `json:"sent_at"`
	ReceivedAt             *time.Time  `json:"received_at"`
	CreatedAt              time.Time   `json:"created_at"`
	UpdatedAt              time.Time   `json:"updated_at"`
}

// MessageDetail is a message with its recipients and approval history (newest first).
type MessageDetail struct {
	Message
	Recipients []Recipient `json:"recipients"`
	Approvals  []Approval  `json:"approvals"`
}

type Recipient struct {
	ID        uint            `json:"id"`
	MessageID uint            `json:"message_id"`
	UserID    *uint           `json:"recipient_id"`
	Email     string          `json:"recipient_email"`
	Name      string          `json:"recipient_name"`
	Kind      RecipientKind   `json:"recipient_type"`
	Status    RecipientStatus `json:"status"`
}

type Approval struct {
	ID             uint           `json:"id"`
	MessageID      uint           `json:"message_id"`
	ApproverID     uint           `json:"approver_id"`
	ApproverName   string         `json:"approver_name,omitempty"`
	Status         ApprovalStatus `json:"status"`
	Comments       string         `json:"comments"`
	DecidedBy      *uint          `json:"decided_by"`
	MessageSubject string         `json:"message_subject,omitempty"`
	MessageNumber  string         `json:"message_number,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	ApprovedAt     *time.Time     `json:"approved_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

type User struct {
	ID             uint      `json:"id"`
	Username       string    `json:"username"`
	Email          string    `json:"email"`
	FullName       string    `json:"full_name"`
	Role           Role      `json:"role"`
	DepartmentID   *uint     `json:"department_id"`
	DepartmentName string    `json:"department_name,omitempty"`
	Active         bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Actor returns the caller view of u.
func (u *User) Actor() Actor {
	return Actor{ID: u.ID, Username: u.Username, Role: u.Role, DepartmentID: u.DepartmentID}
}

type Department struct {
	ID          uint   `json:"id"`
	Name        string `json:"name"`
	ManagerID   *uint  `json:"manager_id"`
	ManagerName string `json:"manager_name"`
}

type AuditEntry struct {
	ID          uint           `json:"id"`
	UserID      *uint          `json:"user_id"`
	Username    string         `json:"username,omitempty"`
	Action      string         `json:"action"`
	ActionType  string         `json:"action_type"`
	EntityType  string         `json:"entity_type"`
	EntityID    *uint          `json:"entity_id"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	IPAddress   string         `json:"ip_address,omitempty"`
	UserAgent   string         `json:"user_agent,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Predicate is one parameterized SQL condition. Placeholders are '?'.
type Predicate struct {
	SQL  string
	Args []any
}

// Where builds a predicate from a clause and its arguments.
func Where(sql string, args ...any) Predicate { return Predicate{SQL: sql, Args: args} }

// AnyOf joins predicates with OR into a single parenthesized predicate.
// An empty list matches nothing.
func AnyOf(ps ...Predicate) Predicate {
	if len(ps) == 0 {
		return Never()
	}
	parts := make([]string, 0, len(ps))
	var args []any
	for _, p := range ps {
		parts = append(parts, p.SQL)
		args = append(args, p.Args...)
	}
	return Predicate{SQL: "(" + strings.Join(parts, " OR ") + ")", Args: args}
}

// Never is a predicate that matches no rows.
func Never() Predicate { return Predicate{SQL: "1 = 0"} }

// Page is a window over an ordered result.
type Page struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int64 `json:"pages"`
}

// NewPage computes the page count for total rows.
func NewPage(page, limit int, total int64) Page {
	p := Page{Page: page, Limit: limit, Total: total}
	if limit > 0 {
		p.Pages = (total + int64(limit) - 1) / int64(limit)
	}
	return p
}

// MaxPage bounds page numbers so offsets stay within int range.
const MaxPage = 100000

// Offset returns the row offset of the page.
func (p Page) Offset() int {
	page := min(max(p.Page, 1), MaxPage)
	return (page - 1) * p.Limit
}
