package messages

import (
	"context"
	"strings"

	dom "github.com/cuihairu/govmsg/internal/ports"
)

// Recipients lists internal users by id and external addresses.
type Recipients struct {
	UserIDs []uint
	Emails  []string
}

func (r Recipients) empty() bool { return len(r.UserIDs) == 0 && len(r.Emails) == 0 }

var errNoRecipients = dom.Validation("recipients_required", "At least one recipient is required")

// resolve turns ids into user recipients, skipping unknown or inactive users,
// and appends the external addresses. Duplicates are dropped.
func (r Recipients) resolve(ctx context.Context, dir dom.DirectoryRepository) ([]dom.Recipient, error) {
	seenID := map[uint]struct{}{}
	ids := make([]uint, 0, len(r.UserIDs))
	for _, id := range r.UserIDs {
		if _, ok := seenID[id]; ok || id == 0 {
			continue
		}
		seenID[id] = struct{}{}
		ids = append(ids, id)
	}
	var out []dom.Recipient
	if len(ids) > 0 {
		users, err := dir.FindUsers(ctx, ids)
		if err != nil {
			return nil, err
		}
		for _, u := range users {
			if !u.Active {
				continue
			}
			out = append(out, dom.Recipient{
				UserID: ptr(u.ID),
				Email:  u.Email,
				Name:   u.FullName,
				Kind:   dom.RecipientUser,
				Status: dom.RecipientPending,
			})
		}
	}
	seenMail := map[string]struct{}{}
	for _, e := range r.Emails {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if _, ok := seenMail[e]; ok {
			continue
		}
		seenMail[e] = struct{}{}
		out = append(out, dom.Recipient{Email: e, Name: e, Kind: dom.RecipientExternal, Status: dom.RecipientPending})
	}
	if len(out) == 0 {
		return nil, errNoRecipients
	}
	return out, nil
}
