// Package audit serves the audit log to managers and admins.
package audit

import (
	"context"
	"strings"
	"time"

	dom "github.com/cuihairu/govmsg/internal/ports"
)

const (
	defaultLimit = 50
	maxLimit     = 200
	statsWindow  = 30 * 24 * time.Hour
)

type Service struct {
	repo dom.AuditRepository
	now  func() time.Time
}

func NewService(repo dom.AuditRepository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Filter narrows the audit listing. Zero values are ignored.
type Filter struct {
	UserID     uint
	EntityType string
	EntityID   uint
	Action     string
	Since      time.Time
	Until      time.Time
	Page       int
	Limit      int
}

type Page struct {
	Logs       []*dom.AuditEntry `json:"audit_logs"`
	Pagination dom.Page          `json:"pagination"`
}

func canRead(a dom.Actor) error {
	if !a.Role.IsApprover() {
		return dom.Forbidden("audit_forbidden", "Audit log is restricted to managers and admins")
	}
	return nil
}

func (f Filter) predicates() []dom.Predicate {
	var ps []dom.Predicate
	if f.UserID != 0 {
		ps = append(ps, dom.Where("al.user_id = ?", f.UserID))
	}
	if f.EntityType != "" {
		ps = append(ps, dom.Where("al.entity_type = ?", f.EntityType))
	}
	if f.EntityID != 0 {
		ps = append(ps, dom.Where("al.entity_id = ?", f.EntityID))
	}
	if a := strings.TrimSpace(f.Action); a != "" {
		ps = append(ps, dom.Where("al.action LIKE ?", "%"+a+"%"))
	}
	if !f.Since.IsZero() {
		ps = append(ps, dom.Where("al.created_at >= ?", f.Since))
	}
	if !f.Until.IsZero() {
		ps = append(ps, dom.Where("al.created_at <= ?", f.Until))
	}
	return ps
}

func (s *Service) List(ctx context.Context, actor dom.Actor, f Filter) (*Page, error) {
	if err := canRead(actor); err != nil {
		return nil, err
	}
	if !f.Since.IsZero() && !f.Until.IsZero() && f.Until.Before(f.Since) {
		return nil, dom.Validation("invalid_range", "end_date is before start_date")
	}
	page, limit := min(max(f.Page, 1), dom.MaxPage), f.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	logs, total, err := s.repo.ListAudit(ctx, f.predicates(), dom.Page{Page: page, Limit: limit})
	if err != nil {
		return nil, err
	}
	if logs == nil {
		logs = []*dom.AuditEntry{}
	}
	return &Page{Logs: logs, Pagination: dom.NewPage(page, limit, total)}, nil
}

// Stats summarizes the last thirty days and counts today's entries.
func (s *Service) Stats(ctx context.Context, actor dom.Actor) (*dom.AuditStats, error) {
	if err := canRead(actor); err != nil {
		return nil, err
	}
	now := s.now()
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	return s.repo.Stats(ctx, now.Add(-statsWindow), today)
}
