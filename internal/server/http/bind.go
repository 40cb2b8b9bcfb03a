package httpserver

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	dom "github.com/cuihairu/govmsg/internal/ports"
	"github.com/cuihairu/govmsg/internal/service/messages"
)

var registerOnce sync.Once

// registerValidators installs the message enum checks on gin's validator.
func registerValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("msgtype", func(fl validator.FieldLevel) bool {
			return dom.MessageType(strings.ToLower(fl.Field().String())).Valid()
		})
		_ = v.RegisterValidation("priority", func(fl validator.FieldLevel) bool {
			return dom.Priority(strings.ToLower(fl.Field().String())).Valid()
		})
		_ = v.RegisterValidation("msgstatus", func(fl validator.FieldLevel) bool {
			return dom.Status(fl.Field().String()).Valid()
		})
	})
}

// bindCode picks the error code for a payload rejected by the binder.
func bindCode(err error) string {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		switch ve[0].Tag() {
		case "msgtype":
			return "invalid_message_type"
		case "priority":
			return "invalid_priority"
		case "msgstatus":
			return "invalid_status"
		}
	}
	return "invalid_payload"
}

func bindMessage(err error) string {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		return fmt.Sprintf("invalid value for %s", ve[0].Field())
	}
	return "invalid request payload"
}

// recipientFields accepts both snake_case and camelCase recipient keys.
type recipientFields struct {
	RecipientIDs       []uint   `json:"recipient_ids"`
	RecipientIDsCamel  []uint   `json:"recipientIds"`
	RecipientEmails    []string `json:"recipient_emails"`
	RecipientEmailsCam []string `json:"recipientEmails"`
}

func (r recipientFields) present() bool {
	return r.RecipientIDs != nil || r.RecipientIDsCamel != nil ||
		r.RecipientEmails != nil || r.RecipientEmailsCam != nil
}

func (r recipientFields) recipients() messages.Recipients {
	return messages.Recipients{
		UserIDs: append(append([]uint{}, r.RecipientIDs...), r.RecipientIDsCamel...),
		Emails:  append(append([]string{}, r.RecipientEmails...), r.RecipientEmailsCam...),
	}
}

type createMessageRequest struct {
	Subject              string `json:"subject"`
	Content              string `json:"content"`
	MessageType          string `json:"message_type" binding:"omitempty,msgtype"`
	Priority             string `json:"priority" binding:"omitempty,priority"`
	RequiresApproval     *bool  `json:"requires_approval"`
	ReceiverDepartmentID *uint  `json:"receiver_department_id"`
	recipientFields
}

func (r createMessageRequest) draft() messages.Draft {
	return messages.Draft{
		Subject:              r.Subject,
		Content:              r.Content,
		Type:                 dom.MessageType(strings.ToLower(r.MessageType)),
		Priority:             dom.Priority(strings.ToLower(r.Priority)),
		RequiresApproval:     r.RequiresApproval,
		ReceiverDepartmentID: r.ReceiverDepartmentID,
		Recipients:           r.recipients(),
	}
}

type updateMessageRequest struct {
	Subject              *string `json:"subject"`
	Content              *string `json:"content"`
	MessageType          *string `json:"message_type" binding:"omitempty,msgtype"`
	Priority             *string `json:"priority" binding:"omitempty,priority"`
	RequiresApproval     *bool   `json:"requires_approval"`
	ReceiverDepartmentID *uint   `json:"receiver_department_id"`
	recipientFields
}

func (r updateMessageRequest) patch() messages.Patch {
	p := messages.Patch{
		Subject:              r.Subject,
		Content:              r.Content,
		RequiresApproval:     r.RequiresApproval,
		ReceiverDepartmentID: r.ReceiverDepartmentID,
	}
	if r.MessageType != nil {
		t := dom.MessageType(strings.ToLower(*r.MessageType))
		p.Type = &t
	}
	if r.Priority != nil {
		pr := dom.Priority(strings.ToLower(*r.Priority))
		p.Priority = &pr
	}
	if r.present() {
		rs := r.recipients()
		p.Recipients = &rs
	}
	return p
}

type notesRequest struct {
	Notes string `json:"notes"`
}

type commentsRequest struct {
	Comments string `json:"comments"`
}

type sendRequest struct {
	ReceiverDepartmentID *uint `json:"receiver_department_id"`
}

type messageQuery struct {
	Status               string `form:"status" binding:"omitempty,msgstatus"`
	MessageType          string `form:"message_type" binding:"omitempty,msgtype"`
	Priority             string `form:"priority" binding:"omitempty,priority"`
	SenderID             uint   `form:"sender_id"`
	ReceiverDepartmentID uint   `form:"receiver_department_id"`
	Page                 int    `form:"page"`
	Limit                int    `form:"limit"`
}

func (q messageQuery) filter() messages.Filter {
	return messages.Filter{
		Status:               dom.Status(q.Status),
		Type:                 dom.MessageType(strings.ToLower(q.MessageType)),
		Priority:             dom.Priority(strings.ToLower(q.Priority)),
		SenderID:             q.SenderID,
		ReceiverDepartmentID: q.ReceiverDepartmentID,
		Page:                 q.Page,
		Limit:                q.Limit,
	}
}

type approvalQuery struct {
	Status     string `form:"status" binding:"omitempty,oneof=pending approved rejected"`
	MessageID  uint   `form:"message_id"`
	ApproverID uint   `form:"approver_id"`
	Page       int    `form:"page"`
	Limit      int    `form:"limit"`
}

func (q approvalQuery) filter() messages.ApprovalFilter {
	return messages.ApprovalFilter{
		Status:     dom.ApprovalStatus(q.Status),
		MessageID:  q.MessageID,
		ApproverID: q.ApproverID,
		Page:       q.Page,
		Limit:      q.Limit,
	}
}

type registerRequest struct {
	Username     string `json:"username"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	FullName     string `json:"full_name"`
	DepartmentID *uint  `json:"department_id"`
}

type loginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// login returns the identifier the caller signed in with.
func (r loginRequest) login() string {
	if s := strings.TrimSpace(r.Username); s != "" {
		return s
	}
	return strings.TrimSpace(r.Email)
}

type profileRequest struct {
	FullName *string `json:"full_name"`
	Email    *string `json:"email"`
}

type passwordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type createUserRequest struct {
	Username       string `json:"username"`
	Email          string `json:"email"`
	Password       string `json:"password"`
	FullName       string `json:"full_name"`
	Role           string `json:"role"`
	DepartmentID   *uint  `json:"department_id"`
	DepartmentName string `json:"department"`
	Active         *bool  `json:"is_active"`
}

type userQuery struct {
	Role           string `form:"role"`
	DepartmentID   uint   `form:"department_id"`
	DepartmentName string `form:"department"`
	Active         *bool  `form:"is_active"`
	Page           int    `form:"page"`
	Limit          int    `form:"limit"`
}

type departmentRequest struct {
	Name      string `json:"name"`
	ManagerID *uint  `json:"manager_id"`
}

type resetPasswordRequest struct {
	NewPassword string `json:"new_password"`
}

type auditQuery struct {
	UserID     uint   `form:"user_id"`
	EntityType string `form:"entity_type"`
	EntityID   uint   `form:"entity_id"`
	Action     string `form:"action"`
	StartDate  string `form:"start_date"`
	EndDate    string `form:"end_date"`
	Page       int    `form:"page"`
	Limit      int    `form:"limit"`
}

// parseDate accepts a calendar date or an RFC3339 timestamp. A bare end
// date covers the whole day.
func parseDate(raw string, endOfDay bool) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", raw, time.Local)
	if err != nil {
		return time.Time{}, dom.Validation("invalid_date", fmt.Sprintf("invalid date %q", raw))
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}
