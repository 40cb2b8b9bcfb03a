// Package messages implements the message lifecycle: drafting, approval
// routing, sending and receipt, with every transition committed atomically
// together with its audit entry.
package messages

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/cuihairu/govmsg/internal/events"
	dom "github.com/cuihairu/govmsg/internal/ports"
	"github.com/cuihairu/govmsg/internal/telemetry"
)

// Options carries the optional collaborators of Service.
type Options struct {
	// AdminApprovalRequired is read at the moment of each decision, so the
	// flag can change while the process runs.
	AdminApprovalRequired func() bool
	Publisher             events.Publisher
	// Mirror receives a copy of every committed lifecycle audit entry.
	Mirror dom.AuditRecorder
	Tracer *telemetry.LifecycleTracer
	Now    func() time.Time
	Number func(time.Time) string
}

type Service struct {
	uow           dom.UnitOfWork
	adminRequired func() bool
	pub           events.Publisher
	mirror        dom.AuditRecorder
	tracer        *telemetry.LifecycleTracer
	now           func() time.Time
	number        func(time.Time) string
}

func NewService(uow dom.UnitOfWork, opts Options) *Service {
	s := &Service{
		uow:           uow,
		adminRequired: opts.AdminApprovalRequired,
		pub:           opts.Publisher,
		mirror:        opts.Mirror,
		tracer:        opts.Tracer,
		now:           opts.Now,
		number:        opts.Number,
	}
	if s.adminRequired == nil {
		s.adminRequired = func() bool { return false }
	}
	if s.pub == nil {
		s.pub = events.NewNoop()
	}
	if s.tracer == nil {
		s.tracer = telemetry.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.number == nil {
		s.number = MessageNumber
	}
	return s
}

// MessageNumber renders the human-readable number of a message created at t.
func MessageNumber(t time.Time) string {
	return fmt.Sprintf("MSG-%d-%d", t.UnixMilli(), rand.Intn(10000))
}

// outcome is filled by a lifecycle step and acted upon after commit.
type outcome struct {
	id     uint
	number string
	from   dom.Status
	to     dom.Status
	audit  *dom.AuditEntry
	result *dom.Message
	// gone skips reloading the message after a delete
	gone bool
}

// run executes step in one transaction. The audit entry the step prepares is
// written inside that transaction; events and mirrors follow the commit.
func (s *Service) run(ctx context.Context, action string, id uint, actor dom.Actor, step func(ctx context.Context, tx dom.Stores, out *outcome) error) (*dom.Message, error) {
	ctx, op := s.tracer.Start(ctx, action, id, actor)
	out := &outcome{id: id}
	err := s.uow.Do(ctx, func(ctx context.Context, tx dom.Stores) error {
		if err := step(ctx, tx, out); err != nil {
			return err
		}
		if out.audit != nil {
			if err := tx.Audit.Record(ctx, out.audit); err != nil {
				return err
			}
		}
		if out.gone {
			return nil
		}
		m, err := tx.Messages.GetMessage(ctx, out.id)
		if err != nil {
			return err
		}
		out.result = m
		return nil
	})
	op.End(ctx, err)
	if err != nil {
		return nil, err
	}
	if out.from != out.to {
		op.Transitioned(ctx, out.from, out.to)
	}
	s.afterCommit(ctx, action, actor, out)
	return out.result, nil
}

func (s *Service) afterCommit(ctx context.Context, action string, actor dom.Actor, out *outcome) {
	slog.Info("message transition", "action", action, "id", out.id, "from", string(out.from), "to", string(out.to), "actor", actor.ID, "role", actor.Role.String())
	if s.mirror != nil && out.audit != nil {
		if err := s.mirror.Record(ctx, out.audit); err != nil {
			slog.Warn("audit mirror failed", "action", action, "id", out.id, "error", err)
		}
	}
	evt := events.Event{
		Type:      "message." + action,
		MessageID: out.id,
		Number:    out.number,
		From:      out.from,
		To:        out.to,
		ActorID:   actor.ID,
		ActorRole: actor.Role.String(),
		At:        s.now().UTC(),
	}
	if err := s.pub.Publish(ctx, evt); err != nil {
		slog.Warn("publish event failed", "type", evt.Type, "id", out.id, "error", err)
	}
}

// moved records a status change on out.
func (out *outcome) moved(m *dom.Message, to dom.Status) {
	out.id, out.number, out.from, out.to = m.ID, m.Number, m.Status, to
}

func auditEntry(actor dom.Actor, action string, id uint, desc string, meta map[string]any, at time.Time) *dom.AuditEntry {
	uid, eid := actor.ID, id
	return &dom.AuditEntry{
		UserID:      &uid,
		Action:      "message:" + action,
		ActionType:  "message:" + action,
		EntityType:  "message",
		EntityID:    &eid,
		Description: desc,
		Metadata:    meta,
		CreatedAt:   at,
	}
}

// activeUser returns an active user with role, or nil when none exists.
func activeUser(ctx context.Context, dir dom.DirectoryRepository, role dom.Role, dept *uint) (*dom.User, error) {
	u, err := dir.ActiveUserWithRole(ctx, role, dept)
	if dom.IsNotFound(err) {
		return nil, nil
	}
	return u, err
}

func ptr[T any](v T) *T { return &v }
