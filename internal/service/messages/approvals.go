package messages

import (
	"context"
	"strings"

	dom "github.com/cuihairu/govmsg/internal/ports"
)

// ApprovalFilter narrows an approval listing.
type ApprovalFilter struct {
	Status     dom.ApprovalStatus
	MessageID  uint
	ApproverID uint
	Page       int
	Limit      int
}

// ApprovalPage is one window of an approval listing.
type ApprovalPage struct {
	Approvals  []*dom.Approval `json:"approvals"`
	Pagination dom.Page        `json:"pagination"`
}

func (f ApprovalFilter) predicates(a dom.Actor) ([]dom.Predicate, error) {
	var ps []dom.Predicate
	status := f.Status
	switch a.Role {
	case dom.RoleEmployee:
		ps = append(ps, dom.Where("a.approver_id = ?", a.ID))
	case dom.RoleManager, dom.RoleAdmin:
		if status == "" {
			status = dom.ApprovalPending
		}
		if f.ApproverID != 0 {
			ps = append(ps, dom.Where("a.approver_id = ?", f.ApproverID))
		}
	default:
		return nil, errUnknownRole
	}
	if status != "" {
		if !status.Valid() {
			return nil, dom.Validation("invalid_status", "Invalid approval status")
		}
		ps = append(ps, dom.Where("a.status = ?", string(status)))
	}
	if f.MessageID != 0 {
		ps = append(ps, dom.Where("a.message_id = ?", f.MessageID))
	}
	return ps, nil
}

// ListApprovals lists approval rows. Employees only see rows assigned to
// them; approvers see pending rows unless another status is asked for.
func (s *Service) ListApprovals(ctx context.Context, actor dom.Actor, f ApprovalFilter) (*ApprovalPage, error) {
	where, err := f.predicates(actor)
	if err != nil {
		return nil, err
	}
	page, limit := window(f.Page, f.Limit, defaultLimit)
	as, total, err := s.uow.Stores().Messages.ListApprovals(ctx, where, dom.Page{Page: page, Limit: limit})
	if err != nil {
		return nil, err
	}
	if as == nil {
		as = []*dom.Approval{}
	}
	return &ApprovalPage{Approvals: as, Pagination: dom.NewPage(page, limit, total)}, nil
}

// GetApproval returns one approval row.
func (s *Service) GetApproval(ctx context.Context, actor dom.Actor, id uint) (*dom.Approval, error) {
	a, err := s.uow.Stores().Messages.GetApproval(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role == dom.RoleEmployee && a.ApproverID != actor.ID {
		return nil, dom.Forbidden("forbidden", "You cannot view this approval")
	}
	return a, nil
}

// pendingApproval loads approval id and the message it belongs to, checking
// that the row is still open and that actor may decide it.
func pendingApproval(ctx context.Context, tx dom.Stores, actor dom.Actor, id uint) (*dom.Approval, *dom.Message, error) {
	a, err := tx.Messages.GetApproval(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if a.Status != dom.ApprovalPending {
		return nil, nil, dom.Conflict("approval_decided", "Approval already decided")
	}
	m, err := tx.Messages.GetMessage(ctx, a.MessageID)
	if err != nil {
		return nil, nil, err
	}
	if err := decisionPolicy(actor, m); err != nil {
		return nil, nil, err
	}
	return a, m, nil
}

func decideApproval(ctx context.Context, tx dom.Stores, d dom.Decision) error {
	n, err := tx.Messages.Decide(ctx, d)
	if err != nil {
		return err
	}
	if n == 0 {
		return errDecisionConflict
	}
	return nil
}

// ApproveApproval approves through an approval row rather than the message.
func (s *Service) ApproveApproval(ctx context.Context, actor dom.Actor, id uint, comments string) (*dom.Message, error) {
	return s.run(ctx, "approve", 0, actor, func(ctx context.Context, tx dom.Stores, out *outcome) error {
		a, m, err := pendingApproval(ctx, tx, actor, id)
		if err != nil {
			return err
		}
		out.id = m.ID
		now := s.now()
		err = decideApproval(ctx, tx, dom.Decision{
			MessageID: m.ID, ApprovalID: a.ID, Status: dom.ApprovalApproved,
			Comments: strings.TrimSpace(comments), DecidedBy: actor.ID, At: now,
		})
		if err != nil {
			return err
		}
		return s.advanceApproved(ctx, tx, actor, m, now, comments, out)
	})
}

// RejectApproval rejects through an approval row. Comments are required.
func (s *Service) RejectApproval(ctx context.Context, actor dom.Actor, id uint, comments string) (*dom.Message, error) {
	comments = strings.TrimSpace(comments)
	if comments == "" {
		return nil, errNotesRequired
	}
	return s.run(ctx, "reject", 0, actor, func(ctx context.Context, tx dom.Stores, out *outcome) error {
		a, m, err := pendingApproval(ctx, tx, actor, id)
		if err != nil {
			return err
		}
		out.id = m.ID
		now := s.now()
		err = decideApproval(ctx, tx, dom.Decision{
			MessageID: m.ID, ApprovalID: a.ID, Status: dom.ApprovalRejected,
			Comments: comments, DecidedBy: actor.ID, At: now,
		})
		if err != nil {
			return err
		}
		return s.routeRejected(ctx, tx, actor, m, now, comments, out)
	})
}
