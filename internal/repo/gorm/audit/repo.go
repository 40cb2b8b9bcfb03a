package auditgorm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cuihairu/govmsg/internal/ports"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Repo implements ports.AuditRepository. List predicates may reference the
// audit table as "al" and the acting user as "u".
type Repo struct{ db *gorm.DB }

func New(db *gorm.DB) *Repo { return &Repo{db: db} }

var _ ports.AuditRepository = (*Repo)(nil)

func (r *Repo) Record(ctx context.Context, e *ports.AuditEntry) error {
	if e == nil {
		return nil
	}
	rec := &AuditLogRecord{
		UserID:      e.UserID,
		Action:      e.Action,
		ActionType:  e.ActionType,
		EntityType:  e.EntityType,
		EntityID:    e.EntityID,
		Description: e.Description,
		IPAddress:   e.IPAddress,
		UserAgent:   e.UserAgent,
		CreatedAt:   e.CreatedAt,
	}
	if len(e.Metadata) > 0 {
		b, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("encode audit metadata: %w", err)
		}
		rec.Metadata = datatypes.JSON(b)
	}
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("record audit: %w", err)
	}
	e.ID, e.CreatedAt = rec.ID, rec.CreatedAt
	return nil
}

type auditRow struct {
	AuditLogRecord
	Username string
}

func (r *Repo) logs(ctx context.Context, where []ports.Predicate) *gorm.DB {
	q := r.db.WithContext(ctx).Table("audit_logs AS al").
		Joins("LEFT JOIN users u ON u.id = al.user_id")
	for _, p := range where {
		q = q.Where(p.SQL, p.Args...)
	}
	return q
}

func (r *Repo) ListAudit(ctx context.Context, where []ports.Predicate, page ports.Page) ([]*ports.AuditEntry, int64, error) {
	var total int64
	if err := r.logs(ctx, where).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count audit: %w", err)
	}
	var rows []auditRow
	q := r.logs(ctx, where).Select("al.*, u.username AS username").Order("al.created_at DESC, al.id DESC")
	if page.Limit > 0 {
		q = q.Limit(page.Limit).Offset(page.Offset())
	}
	if err := q.Scan(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("list audit: %w", err)
	}
	out := make([]*ports.AuditEntry, 0, len(rows))
	for i := range rows {
		x := &rows[i]
		e := &ports.AuditEntry{
			ID:          x.ID,
			UserID:      x.UserID,
			Username:    x.Username,
			Action:      x.Action,
			ActionType:  x.ActionType,
			EntityType:  x.EntityType,
			EntityID:    x.EntityID,
			Description: x.Description,
			IPAddress:   x.IPAddress,
			UserAgent:   x.UserAgent,
			CreatedAt:   x.CreatedAt,
		}
		if len(x.Metadata) > 0 {
			_ = json.Unmarshal(x.Metadata, &e.Metadata)
		}
		out = append(out, e)
	}
	return out, total, nil
}

type bucket struct {
	Bucket string
	Total  int64
}

type userBucket struct {
	UserID   uint
	Username string
	FullName string
	Total    int64
}

func (r *Repo) countBy(db *gorm.DB, column string, since time.Time) ([]ports.CountBy, error) {
	var rows []bucket
	err := db.Model(&AuditLogRecord{}).
		Select(column+" AS bucket, COUNT(*) AS total").
		Where("created_at >= ?", since).
		Group(column).Order("total DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]ports.CountBy, 0, len(rows))
	for _, x := range rows {
		out = append(out, ports.CountBy{Key: x.Bucket, Count: x.Total})
	}
	return out, nil
}

// Stats aggregates entries created at or after since; TodayCount counts
// entries at or after today.
func (r *Repo) Stats(ctx context.Context, since, today time.Time) (*ports.AuditStats, error) {
	db := r.db.WithContext(ctx)
	st := &ports.AuditStats{}
	var err error

	if st.EntityStats, err = r.countBy(db, "entity_type", since); err != nil {
		return nil, fmt.Errorf("audit entity stats: %w", err)
	}
	if st.ActionStats, err = r.countBy(db, "action_type", since); err != nil {
		return nil, fmt.Errorf("audit action stats: %w", err)
	}
	var users []userBucket
	err = db.Table("audit_logs AS al").
		Select("u.id AS user_id, u.username AS username, u.full_name AS full_name, COUNT(*) AS total").
		Joins("INNER JOIN users u ON u.id = al.user_id").
		Where("al.created_at >= ?", since).
		Group("u.id, u.username, u.full_name").Order("total DESC").Limit(10).
		Scan(&users).Error
	if err != nil {
		return nil, fmt.Errorf("audit user stats: %w", err)
	}
	st.UserStats = make([]ports.UserCount, 0, len(users))
	for _, x := range users {
		st.UserStats = append(st.UserStats, ports.UserCount{UserID: x.UserID, Username: x.Username, FullName: x.FullName, Count: x.Total})
	}
	if err := db.Model(&AuditLogRecord{}).Where("created_at >= ?", today).Count(&st.TodayCount).Error; err != nil {
		return nil, fmt.Errorf("audit today count: %w", err)
	}
	return st, nil
}
