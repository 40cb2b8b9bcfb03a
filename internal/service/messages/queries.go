package messages

import (
	"context"

	dom "github.com/cuihairu/govmsg/internal/ports"
)

// MessagePage is one window of a message listing.
type MessagePage struct {
	Messages   []*dom.Message `json:"messages"`
	Pagination dom.Page       `json:"pagination"`
}

// List returns the messages visible to actor, newest first.
func (s *Service) List(ctx context.Context, actor dom.Actor, f Filter) (*MessagePage, error) {
	where, err := f.Predicates(actor)
	if err != nil {
		return nil, err
	}
	page, limit := window(f.Page, f.Limit, defaultLimit)
	ms, total, err := s.uow.Stores().Messages.ListMessages(ctx, where, dom.Page{Page: page, Limit: limit})
	if err != nil {
		return nil, err
	}
	if ms == nil {
		ms = []*dom.Message{}
	}
	return &MessagePage{Messages: ms, Pagination: dom.NewPage(page, limit, total)}, nil
}

// Get returns a message with its recipients and approval history.
func (s *Service) Get(ctx context.Context, actor dom.Actor, id uint) (*dom.MessageDetail, error) {
	repo := s.uow.Stores().Messages
	m, err := repo.GetMessage(ctx, id)
	if err != nil {
		return nil, err
	}
	recipient := false
	if !owns(actor, m) && actor.Role == dom.RoleEmployee {
		if recipient, err = repo.IsRecipient(ctx, id, actor.ID); err != nil {
			return nil, err
		}
	}
	if !CanView(actor, m, recipient) {
		return nil, dom.Forbidden("forbidden", "You cannot view this message")
	}
	rs, err := repo.ListRecipients(ctx, id)
	if err != nil {
		return nil, err
	}
	as, err := repo.MessageApprovals(ctx, id)
	if err != nil {
		return nil, err
	}
	if rs == nil {
		rs = []dom.Recipient{}
	}
	if as == nil {
		as = []dom.Approval{}
	}
	return &dom.MessageDetail{Message: *m, Recipients: rs, Approvals: as}, nil
}
