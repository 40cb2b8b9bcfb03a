package messagesgorm

import (
	"context"
	"fmt"
	"time"

	"github.com/cuihairu/govmsg/internal/ports"
	"gorm.io/gorm"
)

// Repo implements ports.MessagesRepository. Message list predicates may
// reference the message table as "m"; approval list predicates may reference
// the approval as "a", its message as "m" and its approver as "u".
type Repo struct{ db *gorm.DB }

func New(db *gorm.DB) *Repo { return &Repo{db: db} }

var _ ports.MessagesRepository = (*Repo)(nil)

var errStatusConflict = ports.Conflict("status_conflict", "Message status changed by another request")

const messageColumns = "m.*, s.full_name AS sender_name, s.role AS sender_role, " +
	"sd.name AS sender_department_name, rd.name AS receiver_department_name, ap.full_name AS approver_name"

type messageRow struct {
	MessageRecord
	SenderName             string
	SenderRole             string
	SenderDepartmentName   string
	ReceiverDepartmentName string
	ApproverName           string
}

func (r *Repo) messages(ctx context.Context, where []ports.Predicate) *gorm.DB {
	q := r.db.WithContext(ctx).Table("messages AS m").
		Joins("LEFT JOIN users s ON s.id = m.sender_id").
		Joins("LEFT JOIN departments sd ON sd.id = m.sender_department_id").
		Joins("LEFT JOIN departments rd ON rd.id = m.receiver_department_id").
		Joins("LEFT JOIN users ap ON ap.id = m.approved_by")
	for _, p := range where {
		q = q.Where(p.SQL, p.Args...)
	}
	return q
}

func toMessage(row *messageRow) *ports.Message {
	rec := &row.MessageRecord
	role := row.SenderRole
	if v, err := ports.NormalizeRole(role); err == nil {
		role = v.String()
	}
	return &ports.Message{
		ID:                     rec.ID,
		Number:                 rec.Number,
		Subject:                rec.Subject,
		Content:                rec.Content,
		Type:                   ports.MessageType(rec.Type),
		Priority:               ports.Priority(rec.Priority),
		SenderID:               rec.SenderID,
		SenderName:             row.SenderName,
		SenderRole:             role,
		SenderDepartmentID:     rec.SenderDepartmentID,
		SenderDepartmentName:   row.SenderDepartmentName,
		ReceiverDepartmentID:   rec.ReceiverDepartmentID,
		ReceiverDepartmentName: row.ReceiverDepartmentName,
		RequiresApproval:       rec.RequiresApproval,
		Status:                 ports.Status(rec.Status),
		ApprovedBy:             rec.ApprovedBy,
		ApproverName:           row.ApproverName,
		ApprovedAt:             rec.ApprovedAt,
		SubmittedAt:            rec.SubmittedAt,
		SentAt:                 rec.SentAt,
		ReceivedAt:             rec.ReceivedAt,
		CreatedAt:              rec.CreatedAt,
		UpdatedAt:              rec.UpdatedAt,
	}
}

func (r *Repo) CreateMessage(ctx context.Context, m *ports.Message) error {
	if m == nil {
		return nil
	}
	if !m.Status.Valid() {
		return ports.Validation("invalid_status", fmt.Sprintf("invalid status %q", m.Status))
	}
	rec := &MessageRecord{
		Number:               m.Number,
		Subject:              m.Subject,
		Content:              m.Content,
		Type:                 string(m.Type),
		Priority:             string(m.Priority),
		SenderID:             m.SenderID,
		SenderDepartmentID:   m.SenderDepartmentID,
		ReceiverDepartmentID: m.ReceiverDepartmentID,
		RequiresApproval:     m.RequiresApproval,
		Status:               string(m.Status),
		CreatedAt:            m.CreatedAt,
		UpdatedAt:            m.UpdatedAt,
	}
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	m.ID, m.CreatedAt, m.UpdatedAt = rec.ID, rec.CreatedAt, rec.UpdatedAt
	return nil
}

func (r *Repo) GetMessage(ctx context.Context, id uint) (*ports.Message, error) {
	var rows []messageRow
	if err := r.messages(ctx, nil).Select(messageColumns).Where("m.id = ?", id).Limit(1).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("load message: %w", err)
	}
	if len(rows) == 0 {
		return nil, ports.NotFound("message_not_found", "Message not found")
	}
	return toMessage(&rows[0]), nil
}

func (r *Repo) ListMessages(ctx context.Context, where []ports.Predicate, page ports.Page) ([]*ports.Message, int64, error) {
	var total int64
	if err := r.messages(ctx, where).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count messages: %w", err)
	}
	var rows []messageRow
	q := r.messages(ctx, where).Select(messageColumns).Order("m.created_at DESC, m.id DESC")
	if page.Limit > 0 {
		q = q.Limit(page.Limit).Offset(page.Offset())
	}
	if err := q.Scan(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("list messages: %w", err)
	}
	out := make([]*ports.Message, 0, len(rows))
	for i := range rows {
		out = append(out, toMessage(&rows[i]))
	}
	return out, total, nil
}

func (r *Repo) UpdateMessage(ctx context.Context, id uint, from ports.Status, ch ports.MessageChanges, at time.Time) error {
	upd := map[string]any{"updated_at": at}
	if ch.Subject != nil {
		upd["subject"] = *ch.Subject
	}
	if ch.Content != nil {
		upd["content"] = *ch.Content
	}
	if ch.Type != nil {
		upd["message_type"] = string(*ch.Type)
	}
	if ch.Priority != nil {
		upd["priority"] = string(*ch.Priority)
	}
	if ch.RequiresApproval != nil {
		upd["requires_approval"] = *ch.RequiresApproval
	}
	if ch.ReceiverDepartmentID != nil {
		upd["receiver_department_id"] = *ch.ReceiverDepartmentID
	}
	res := r.db.WithContext(ctx).Model(&MessageRecord{}).
		Where("id = ? AND status = ?", id, string(from)).
		Updates(upd)
	if res.Error != nil {
		return fmt.Errorf("update message: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return errStatusConflict
	}
	return nil
}

// Transition moves the message to t.To. Zero matched rows mean the status
// changed underneath the caller and yield a conflict.
func (r *Repo) Transition(ctx context.Context, id uint, t ports.Transition) error {
	if !t.To.Valid() {
		return ports.Validation("invalid_status", fmt.Sprintf("invalid status %q", t.To))
	}
	upd := map[string]any{"status": string(t.To), "updated_at": t.At}
	if t.SenderDepartmentID != nil {
		upd["sender_department_id"] = *t.SenderDepartmentID
	}
	if t.ReceiverDepartmentID != nil {
		upd["receiver_department_id"] = *t.ReceiverDepartmentID
	}
	if t.RequiresApproval != nil {
		upd["requires_approval"] = *t.RequiresApproval
	}
	if t.ApprovedBy != nil {
		upd["approved_by"] = *t.ApprovedBy
		upd["approved_at"] = t.At
	}
	if t.Submitted {
		upd["submitted_at"] = t.At
	}
	if t.Sent {
		upd["sent_at"] = t.At
	}
	if t.Received {
		upd["received_at"] = t.At
	}
	res := r.db.WithContext(ctx).Model(&MessageRecord{}).
		Where("id = ? AND status = ?", id, string(t.From)).
		Updates(upd)
	if res.Error != nil {
		return fmt.Errorf("transition message: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return errStatusConflict
	}
	return nil
}

// DeleteMessage removes the message with its approvals and recipients.
func (r *Repo) DeleteMessage(ctx context.Context, id uint) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("message_id = ?", id).Delete(&ApprovalRecord{}).Error; err != nil {
		return fmt.Errorf("delete approvals: %w", err)
	}
	if err := db.Where("message_id = ?", id).Delete(&RecipientRecord{}).Error; err != nil {
		return fmt.Errorf("delete recipients: %w", err)
	}
	res := db.Delete(&MessageRecord{}, id)
	if res.Error != nil {
		return fmt.Errorf("delete message: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ports.NotFound("message_not_found", "Message not found")
	}
	return nil
}

// Recipients

func (r *Repo) ReplaceRecipients(ctx context.Context, messageID uint, rs []ports.Recipient) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("message_id = ?", messageID).Delete(&RecipientRecord{}).Error; err != nil {
		return fmt.Errorf("clear recipients: %w", err)
	}
	if len(rs) == 0 {
		return nil
	}
	recs := make([]RecipientRecord, 0, len(rs))
	for _, x := range rs {
		st := x.Status
		if st == "" {
			st = ports.RecipientPending
		}
		recs = append(recs, RecipientRecord{
			MessageID: messageID,
			UserID:    x.UserID,
			Email:     x.Email,
			Name:      x.Name,
			Kind:      string(x.Kind),
			Status:    string(st),
		})
	}
	if err := db.Create(&recs).Error; err != nil {
		return fmt.Errorf("insert recipients: %w", err)
	}
	return nil
}

func (r *Repo) ListRecipients(ctx context.Context, messageID uint) ([]ports.Recipient, error) {
	var recs []RecipientRecord
	if err := r.db.WithContext(ctx).Where("message_id = ?", messageID).Order("id").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list recipients: %w", err)
	}
	out := make([]ports.Recipient, 0, len(recs))
	for _, x := range recs {
		out = append(out, ports.Recipient{
			ID:        x.ID,
			MessageID: x.MessageID,
			UserID:    x.UserID,
			Email:     x.Email,
			Name:      x.Name,
			Kind:      ports.RecipientKind(x.Kind),
			Status:    ports.RecipientStatus(x.Status),
		})
	}
	return out, nil
}

func (r *Repo) IsRecipient(ctx context.Context, messageID, userID uint) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&RecipientRecord{}).
		Where("message_id = ? AND recipient_id = ?", messageID, userID).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("check recipient: %w", err)
	}
	return n > 0, nil
}

func (r *Repo) MarkRecipients(ctx context.Context, messageID uint, st ports.RecipientStatus) error {
	err := r.db.WithContext(ctx).Model(&RecipientRecord{}).
		Where("message_id = ?", messageID).
		Update("status", string(st)).Error
	if err != nil {
		return fmt.Errorf("mark recipients: %w", err)
	}
	return nil
}

// Approvals

const approvalColumns = "a.*, u.full_name AS approver_name, m.subject AS message_subject, m.message_number AS message_number"

type approvalRow struct {
	ApprovalRecord
	ApproverName   string
	MessageSubject string
	MessageNumber  string
}

func (r *Repo) approvals(ctx context.Context, where []ports.Predicate) *gorm.DB {
	q := r.db.WithContext(ctx).Table("approvals AS a").
		Joins("LEFT JOIN messages m ON m.id = a.message_id").
		Joins("LEFT JOIN users u ON u.id = a.approver_id")
	for _, p := range where {
		q = q.Where(p.SQL, p.Args...)
	}
	return q
}

func toApproval(row *approvalRow) ports.Approval {
	return ports.Approval{
		ID:             row.ID,
		MessageID:      row.MessageID,
		ApproverID:     row.ApproverID,
		ApproverName:   row.ApproverName,
		Status:         ports.ApprovalStatus(row.Status),
		Comments:       row.Comments,
		DecidedBy:      row.DecidedBy,
		MessageSubject: row.MessageSubject,
		MessageNumber:  row.MessageNumber,
		CreatedAt:      row.CreatedAt,
		ApprovedAt:     row.ApprovedAt,
		UpdatedAt:      row.UpdatedAt,
	}
}

func (r *Repo) scanApprovals(q *gorm.DB) ([]approvalRow, error) {
	var rows []approvalRow
	if err := q.Select(approvalColumns).Order("a.created_at DESC, a.id DESC").Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ResetApprovals drops the approval history of a message and, when
// approverID is set, opens a single pending row for that approver.
func (r *Repo) ResetApprovals(ctx context.Context, messageID uint, approverID *uint, at time.Time) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("message_id = ?", messageID).Delete(&ApprovalRecord{}).Error; err != nil {
		return fmt.Errorf("clear approvals: %w", err)
	}
	if approverID == nil {
		return nil
	}
	rec := &ApprovalRecord{MessageID: messageID, ApproverID: *approverID, Status: string(ports.ApprovalPending), CreatedAt: at, UpdatedAt: at}
	if err := db.Create(rec).Error; err != nil {
		return fmt.Errorf("open approval: %w", err)
	}
	return nil
}

// EnsurePendingApproval opens a pending row for approverID unless one is
// already open. It reports whether a row was created.
func (r *Repo) EnsurePendingApproval(ctx context.Context, messageID, approverID uint, at time.Time) (bool, error) {
	db := r.db.WithContext(ctx)
	var n int64
	err := db.Model(&ApprovalRecord{}).
		Where("message_id = ? AND approver_id = ? AND status = ?", messageID, approverID, string(ports.ApprovalPending)).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("check pending approval: %w", err)
	}
	if n > 0 {
		return false, nil
	}
	rec := &ApprovalRecord{MessageID: messageID, ApproverID: approverID, Status: string(ports.ApprovalPending), CreatedAt: at, UpdatedAt: at}
	if err := db.Create(rec).Error; err != nil {
		return false, fmt.Errorf("open approval: %w", err)
	}
	return true, nil
}

func (r *Repo) HasPendingApprovalFrom(ctx context.Context, messageID uint, role ports.Role) (bool, error) {
	names := []string{role.String()}
	if role == ports.RoleEmployee {
		names = append(names, "user")
	}
	var n int64
	err := r.approvals(ctx, []ports.Predicate{
		ports.Where("a.message_id = ?", messageID),
		ports.Where("a.status = ?", string(ports.ApprovalPending)),
		ports.Where("u.role IN ?", names),
	}).Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("check pending approval: %w", err)
	}
	return n > 0, nil
}

// Decide closes pending rows selected by d and returns how many changed.
func (r *Repo) Decide(ctx context.Context, d ports.Decision) (int64, error) {
	if d.Status != ports.ApprovalApproved && d.Status != ports.ApprovalRejected {
		return 0, ports.Validation("invalid_decision", fmt.Sprintf("invalid decision %q", d.Status))
	}
	q := r.db.WithContext(ctx).Model(&ApprovalRecord{}).
		Where("message_id = ? AND status = ?", d.MessageID, string(ports.ApprovalPending))
	switch {
	case d.ApprovalID != 0:
		q = q.Where("id = ?", d.ApprovalID)
	case d.ApproverID != 0:
		q = q.Where("approver_id = ?", d.ApproverID)
	}
	res := q.Updates(map[string]any{
		"status":      string(d.Status),
		"comments":    d.Comments,
		"decided_by":  d.DecidedBy,
		"approved_at": d.At,
		"updated_at":  d.At,
	})
	if res.Error != nil {
		return 0, fmt.Errorf("decide approval: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *Repo) GetApproval(ctx context.Context, id uint) (*ports.Approval, error) {
	rows, err := r.scanApprovals(r.approvals(ctx, []ports.Predicate{ports.Where("a.id = ?", id)}).Limit(1))
	if err != nil {
		return nil, fmt.Errorf("load approval: %w", err)
	}
	if len(rows) == 0 {
		return nil, ports.NotFound("approval_not_found", "Approval not found")
	}
	a := toApproval(&rows[0])
	return &a, nil
}

func (r *Repo) ListApprovals(ctx context.Context, where []ports.Predicate, page ports.Page) ([]*ports.Approval, int64, error) {
	var total int64
	if err := r.approvals(ctx, where).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count approvals: %w", err)
	}
	q := r.approvals(ctx, where)
	if page.Limit > 0 {
		q = q.Limit(page.Limit).Offset(page.Offset())
	}
	rows, err := r.scanApprovals(q)
	if err != nil {
		return nil, 0, fmt.Errorf("list approvals: %w", err)
	}
	out := make([]*ports.Approval, 0, len(rows))
	for i := range rows {
		a := toApproval(&rows[i])
		out = append(out, &a)
	}
	return out, total, nil
}

// MessageApprovals returns the approval history of a message, newest first.
func (r *Repo) MessageApprovals(ctx context.Context, messageID uint) ([]ports.Approval, error) {
	rows, err := r.scanApprovals(r.approvals(ctx, []ports.Predicate{ports.Where("a.message_id = ?", messageID)}))
	if err != nil {
		return nil, fmt.Errorf("list message approvals: %w", err)
	}
	out := make([]ports.Approval, 0, len(rows))
	for i := range rows {
		out = append(out, toApproval(&rows[i]))
	}
	return out, nil
}
