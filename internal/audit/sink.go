// Package audit composes audit recorders: the transactional store, the
// best-effort request trail and optional file mirrors.
package audit

import (
	"context"
	"errors"
	"log/slog"

	"github.com/cuihairu/govmsg/internal/ports"
)

// BestEffort swallows recorder failures after logging them.
type BestEffort struct{ Inner ports.AuditRecorder }

func (b BestEffort) Record(ctx context.Context, e *ports.AuditEntry) error {
	if b.Inner == nil || e == nil {
		return nil
	}
	if err := b.Inner.Record(ctx, e); err != nil {
		slog.Warn("audit record dropped", "action", e.Action, "entity", e.EntityType, "error", err)
	}
	return nil
}

// Multi fans an entry out to every recorder and joins their errors.
type Multi []ports.AuditRecorder

func (m Multi) Record(ctx context.Context, e *ports.AuditEntry) error {
	var errs []error
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.Record(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
