package messages

import (
	"context"
	"strings"
	"time"

	dom "github.com/cuihairu/govmsg/internal/ports"
)

// Draft is the input of Create.
type Draft struct {
	Subject              string
	Content              string
	Type                 dom.MessageType
	Priority             dom.Priority
	RequiresApproval     *bool
	ReceiverDepartmentID *uint
	Recipients           Recipients
}

func (d *Draft) normalize() error {
	d.Subject = strings.TrimSpace(d.Subject)
	d.Content = strings.TrimSpace(d.Content)
	if d.Subject == "" || d.Content == "" {
		return dom.Validation("subject_content_required", "Subject and content are required")
	}
	if d.Type == "" {
		d.Type = dom.TypeInternal
	}
	if d.Priority == "" {
		d.Priority = dom.PriorityNormal
	}
	if !d.Type.Valid() {
		return dom.Validation("invalid_message_type", "Invalid message type")
	}
	if !d.Priority.Valid() {
		return dom.Validation("invalid_priority", "Invalid priority")
	}
	if d.Recipients.empty() {
		return errNoRecipients
	}
	return nil
}

var errReceiverMissing = dom.NotFound("department_not_found", "Receiver department not found")

func receiverExists(ctx context.Context, dir dom.DirectoryRepository, id uint) error {
	if _, err := dir.GetDepartment(ctx, id); err != nil {
		if dom.IsNotFound(err) {
			return errReceiverMissing
		}
		return err
	}
	return nil
}

// Create stores a new draft with its recipients.
func (s *Service) Create(ctx context.Context, actor dom.Actor, d Draft) (*dom.Message, error) {
	if err := d.normalize(); err != nil {
		return nil, err
	}
	requires := approvalRequired(actor.Role, d.RequiresApproval, d.Type)
	return s.run(ctx, "create", 0, actor, func(ctx context.Context, tx dom.Stores, out *outcome) error {
		rs, err := d.Recipients.resolve(ctx, tx.Users)
		if err != nil {
			return err
		}
		now := s.now()
		m := &dom.Message{
			Number:             s.number(now),
			Subject:            d.Subject,
			Content:            d.Content,
			Type:               d.Type,
			Priority:           d.Priority,
			SenderID:           actor.ID,
			SenderDepartmentID: actor.DepartmentID,
			RequiresApproval:   requires,
			Status:             dom.StatusDraft,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		// the receiver is chosen at send time when approval is needed
		if !requires && d.ReceiverDepartmentID != nil {
			if err := receiverExists(ctx, tx.Users, *d.ReceiverDepartmentID); err != nil {
				return err
			}
			m.ReceiverDepartmentID = d.ReceiverDepartmentID
		}
		if err := tx.Messages.CreateMessage(ctx, m); err != nil {
			return err
		}
		if err := tx.Messages.ReplaceRecipients(ctx, m.ID, rs); err != nil {
			return err
		}
		out.id, out.number, out.to = m.ID, m.Number, dom.StatusDraft
		out.audit = auditEntry(actor, "create", m.ID, "Message created", map[string]any{
			"messageNumber":    m.Number,
			"requiresApproval": requires,
			"recipients":       len(rs),
		}, now)
		return nil
	})
}

// Patch lists the fields Update replaces; nil fields are kept. A non-nil
// Recipients replaces the whole recipient list.
type Patch struct {
	Subject              *string
	Content              *string
	Type                 *dom.MessageType
	Priority             *dom.Priority
	RequiresApproval     *bool
	ReceiverDepartmentID *uint
	Recipients           *Recipients
}

func (p *Patch) changes(actor dom.Actor, m *dom.Message) (dom.MessageChanges, []string, error) {
	var (
		ch     dom.MessageChanges
		fields []string
	)
	if p.Subject != nil {
		v := strings.TrimSpace(*p.Subject)
		if v == "" {
			return ch, nil, dom.Validation("subject_content_required", "Subject and content are required")
		}
		ch.Subject, fields = &v, append(fields, "subject")
	}
	if p.Content != nil {
		v := strings.TrimSpace(*p.Content)
		if v == "" {
			return ch, nil, dom.Validation("subject_content_required", "Subject and content are required")
		}
		ch.Content, fields = &v, append(fields, "content")
	}
	if p.Type != nil {
		if !p.Type.Valid() {
			return ch, nil, dom.Validation("invalid_message_type", "Invalid message type")
		}
		ch.Type, fields = p.Type, append(fields, "message_type")
	}
	if p.Priority != nil {
		if !p.Priority.Valid() {
			return ch, nil, dom.Validation("invalid_priority", "Invalid priority")
		}
		ch.Priority, fields = p.Priority, append(fields, "priority")
	}
	typ := m.Type
	if ch.Type != nil {
		typ = *ch.Type
	}
	locked := approvalLocked(m, typ)
	if p.RequiresApproval != nil {
		if !*p.RequiresApproval && (locked || actor.Role == dom.RoleEmployee) {
			return ch, nil, dom.Validation("approval_mandatory", "Approval cannot be disabled for this message")
		}
		ch.RequiresApproval, fields = p.RequiresApproval, append(fields, "requires_approval")
	}
	if locked && !m.RequiresApproval && ch.RequiresApproval == nil {
		ch.RequiresApproval, fields = ptr(true), append(fields, "requires_approval")
	}
	if p.ReceiverDepartmentID != nil {
		ch.ReceiverDepartmentID, fields = p.ReceiverDepartmentID, append(fields, "receiver_department_id")
	}
	if p.Recipients != nil {
		fields = append(fields, "recipients")
	}
	return ch, fields, nil
}

// Update edits a message that has not entered approval.
func (s *Service) Update(ctx context.Context, actor dom.Actor, id uint, p Patch) (*dom.Message, error) {
	return s.run(ctx, "update", id, actor, func(ctx context.Context, tx dom.Stores, out *outcome) error {
		m, err := tx.Messages.GetMessage(ctx, id)
		if err != nil {
			return err
		}
		if err := editPolicy(actor, m); err != nil {
			return err
		}
		if !m.Status.In(editable...) {
			return dom.Conflict("not_editable", "Only draft or rejected messages can be edited")
		}
		ch, fields, err := p.changes(actor, m)
		if err != nil {
			return err
		}
		if ch.ReceiverDepartmentID != nil {
			if err := receiverExists(ctx, tx.Users, *ch.ReceiverDepartmentID); err != nil {
				return err
			}
		}
		now := s.now()
		if err := tx.Messages.UpdateMessage(ctx, id, m.Status, ch, now); err != nil {
			return err
		}
		if p.Recipients != nil {
			rs, err := p.Recipients.resolve(ctx, tx.Users)
			if err != nil {
				return err
			}
			if err := tx.Messages.ReplaceRecipients(ctx, id, rs); err != nil {
				return err
			}
		}
		out.moved(m, m.Status)
		out.audit = auditEntry(actor, "update", id, "Message updated", map[string]any{"fields": fields}, now)
		return nil
	})
}

// Submit routes the message to its approver, replacing any earlier approval history.
func (s *Service) Submit(ctx context.Context, actor dom.Actor, id uint) (*dom.Message, error) {
	return s.run(ctx, "submit", id, actor, func(ctx context.Context, tx dom.Stores, out *outcome) error {
		m, err := tx.Messages.GetMessage(ctx, id)
		if err != nil {
			return err
		}
		if err := submitPolicy(actor, m); err != nil {
			return err
		}
		if !m.Status.In(editable...) {
			return dom.Conflict("already_submitted", "Message already submitted")
		}
		dept := m.SenderDepartmentID
		if dept == nil {
			dept = actor.DepartmentID
		}
		adminRequired := s.adminRequired()
		c, err := lookupCandidates(ctx, tx.Users, actor.Role, dept, adminRequired)
		if err != nil {
			return err
		}
		res, err := ResolveApprover(actor.Role, dept, adminRequired, c)
		if err != nil {
			return err
		}
		now := s.now()
		tr := dom.Transition{
			From:               m.Status,
			To:                 res.Target,
			At:                 now,
			SenderDepartmentID: dept,
			RequiresApproval:   ptr(true),
			Submitted:          true,
		}
		if res.ApproverID == nil {
			tr.ApprovedBy = ptr(actor.ID)
		}
		if err := tx.Messages.Transition(ctx, id, tr); err != nil {
			return err
		}
		if err := tx.Messages.ResetApprovals(ctx, id, res.ApproverID, now); err != nil {
			return err
		}
		meta := map[string]any{"approverId": nil, "approverRole": nil}
		if res.ApproverID != nil {
			meta["approverId"] = *res.ApproverID
			meta["approverRole"] = res.ApproverRole.String()
		}
		out.moved(m, res.Target)
		out.audit = auditEntry(actor, "submit", id, "Message submitted for approval", meta, now)
		return nil
	})
}

var errDecisionConflict = dom.Conflict("approval_conflict", "Approval was already decided by another request")

// decideOnMessage closes the actor's own pending row, or every open row of
// the message when the actor holds none.
func decideOnMessage(ctx context.Context, tx dom.Stores, d dom.Decision) error {
	n, err := tx.Messages.Decide(ctx, d)
	if err != nil {
		return err
	}
	if n == 0 {
		d.ApproverID = 0
		if n, err = tx.Messages.Decide(ctx, d); err != nil {
			return err
		}
	}
	if n == 0 {
		return errDecisionConflict
	}
	return nil
}

// Approve records the actor's approval and advances the message.
func (s *Service) Approve(ctx context.Context, actor dom.Actor, id uint, notes string) (*dom.Message, error) {
	return s.run(ctx, "approve", id, actor, func(ctx context.Context, tx dom.Stores, out *outcome) error {
		m, err := tx.Messages.GetMessage(ctx, id)
		if err != nil {
			return err
		}
		if err := decisionPolicy(actor, m); err != nil {
			return err
		}
		now := s.now()
		err = decideOnMessage(ctx, tx, dom.Decision{
			MessageID: id, ApproverID: actor.ID, Status: dom.ApprovalApproved,
			Comments: strings.TrimSpace(notes), DecidedBy: actor.ID, At: now,
		})
		if err != nil {
			return err
		}
		return s.advanceApproved(ctx, tx, actor, m, now, notes, out)
	})
}

// advanceApproved moves m forward after an approval row was closed.
func (s *Service) advanceApproved(ctx context.Context, tx dom.Stores, actor dom.Actor, m *dom.Message, now time.Time, notes string, out *outcome) error {
	to := dom.StatusApproved
	tr := dom.Transition{From: m.Status, At: now}
	if actor.Role == dom.RoleManager && s.adminRequired() {
		to = dom.StatusPendingAdmin
		has, err := tx.Messages.HasPendingApprovalFrom(ctx, m.ID, dom.RoleAdmin)
		if err != nil {
			return err
		}
		if !has {
			admin, err := activeUser(ctx, tx.Users, dom.RoleAdmin, nil)
			if err != nil {
				return err
			}
			if admin == nil {
				return errNoAdmin
			}
			if _, err := tx.Messages.EnsurePendingApproval(ctx, m.ID, admin.ID, now); err != nil {
				return err
			}
		}
	} else {
		tr.ApprovedBy = ptr(actor.ID)
	}
	tr.To = to
	if err := tx.Messages.Transition(ctx, m.ID, tr); err != nil {
		return err
	}
	out.moved(m, to)
	out.audit = auditEntry(actor, "approve", m.ID, "Message approved", map[string]any{
		"notes":     strings.TrimSpace(notes),
		"newStatus": string(to),
	}, now)
	return nil
}

var errNotesRequired = dom.Validation("notes_required", "Rejection notes are required")

// Reject records the actor's rejection and routes the message back.
func (s *Service) Reject(ctx context.Context, actor dom.Actor, id uint, notes string) (*dom.Message, error) {
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return nil, errNotesRequired
	}
	return s.run(ctx, "reject", id, actor, func(ctx context.Context, tx dom.Stores, out *outcome) error {
		m, err := tx.Messages.GetMessage(ctx, id)
		if err != nil {
			return err
		}
		if err := decisionPolicy(actor, m); err != nil {
			return err
		}
		now := s.now()
		err = decideOnMessage(ctx, tx, dom.Decision{
			MessageID: id, ApproverID: actor.ID, Status: dom.ApprovalRejected,
			Comments: notes, DecidedBy: actor.ID, At: now,
		})
		if err != nil {
			return err
		}
		return s.routeRejected(ctx, tx, actor, m, now, notes, out)
	})
}

// routeRejected sends a manager rejection back to the sender. An admin
// rejection goes back to the department manager when one is active.
func (s *Service) routeRejected(ctx context.Context, tx dom.Stores, actor dom.Actor, m *dom.Message, now time.Time, notes string, out *outcome) error {
	to := dom.StatusReturnedForRevision
	if actor.Role == dom.RoleAdmin && m.SenderDepartmentID != nil {
		mgr, err := activeUser(ctx, tx.Users, dom.RoleManager, m.SenderDepartmentID)
		if err != nil {
			return err
		}
		if mgr != nil {
			to = dom.StatusPendingManager
			if _, err := tx.Messages.EnsurePendingApproval(ctx, m.ID, mgr.ID, now); err != nil {
				return err
			}
		}
	}
	if err := tx.Messages.Transition(ctx, m.ID, dom.Transition{From: m.Status, To: to, At: now}); err != nil {
		return err
	}
	out.moved(m, to)
	out.audit = auditEntry(actor, "reject", m.ID, "Message rejected", map[string]any{
		"notes":     notes,
		"newStatus": string(to),
	}, now)
	return nil
}

// Send dispatches the message to its receiving department.
func (s *Service) Send(ctx context.Context, actor dom.Actor, id uint, receiverDepartmentID *uint) (*dom.Message, error) {
	return s.run(ctx, "send", id, actor, func(ctx context.Context, tx dom.Stores, out *outcome) error {
		m, err := tx.Messages.GetMessage(ctx, id)
		if err != nil {
			return err
		}
		if m.Status.In(dom.StatusSent, dom.StatusReceived) {
			return dom.Conflict("already_sent", "Message already sent")
		}
		if err := sendPolicy(actor, m); err != nil {
			return err
		}
		if m.RequiresApproval && m.Status == dom.StatusDraft {
			return dom.Conflict("submission_required", "Message must be submitted for approval before sending")
		}
		if m.RequiresApproval && m.Status != dom.StatusApproved {
			return dom.Conflict("approval_required", "Message must be approved before sending")
		}
		dept := receiverDepartmentID
		if dept == nil || *dept == 0 {
			dept = m.ReceiverDepartmentID
		}
		if dept == nil {
			return dom.Validation("receiver_required", "Receiver department is required before sending")
		}
		if err := receiverExists(ctx, tx.Users, *dept); err != nil {
			return err
		}
		now := s.now()
		err = tx.Messages.Transition(ctx, id, dom.Transition{
			From: m.Status, To: dom.StatusSent, At: now,
			ReceiverDepartmentID: dept, Sent: true,
		})
		if err != nil {
			return err
		}
		if err := tx.Messages.MarkRecipients(ctx, id, dom.RecipientSent); err != nil {
			return err
		}
		out.moved(m, dom.StatusSent)
		out.audit = auditEntry(actor, "send", id, "Message sent", map[string]any{"receiverDepartmentId": *dept}, now)
		return nil
	})
}

// Receive acknowledges a sent message.
func (s *Service) Receive(ctx context.Context, actor dom.Actor, id uint) (*dom.Message, error) {
	return s.run(ctx, "receive", id, actor, func(ctx context.Context, tx dom.Stores, out *outcome) error {
		m, err := tx.Messages.GetMessage(ctx, id)
		if err != nil {
			return err
		}
		recipient := false
		if actor.Role != dom.RoleAdmin && !actor.InDepartment(m.ReceiverDepartmentID) {
			if recipient, err = tx.Messages.IsRecipient(ctx, id, actor.ID); err != nil {
				return err
			}
		}
		if err := receivePolicy(actor, m, recipient); err != nil {
			return err
		}
		if m.Status != dom.StatusSent {
			return dom.Conflict("not_sent", "Only sent messages can be marked as received")
		}
		now := s.now()
		if err := tx.Messages.Transition(ctx, id, dom.Transition{From: m.Status, To: dom.StatusReceived, At: now, Received: true}); err != nil {
			return err
		}
		if err := tx.Messages.MarkRecipients(ctx, id, dom.RecipientDelivered); err != nil {
			return err
		}
		out.moved(m, dom.StatusReceived)
		out.audit = auditEntry(actor, "receive", id, "Message received", nil, now)
		return nil
	})
}

// Delete removes a message with its approvals and recipients.
func (s *Service) Delete(ctx context.Context, actor dom.Actor, id uint) error {
	_, err := s.run(ctx, "delete", id, actor, func(ctx context.Context, tx dom.Stores, out *outcome) error {
		m, err := tx.Messages.GetMessage(ctx, id)
		if err != nil {
			return err
		}
		if err := deletePolicy(actor, m); err != nil {
			return err
		}
		if err := tx.Messages.DeleteMessage(ctx, id); err != nil {
			return err
		}
		out.moved(m, m.Status)
		out.gone = true
		out.audit = auditEntry(actor, "delete", id, "Message deleted", map[string]any{
			"messageNumber": m.Number,
			"status":        string(m.Status),
		}, s.now())
		return nil
	})
	return err
}
