package auditgorm

import (
	"context"
	"testing"
	"time"

	"github.com/cuihairu/govmsg/internal/ports"
	usersgorm "github.com/cuihairu/govmsg/internal/repo/gorm/users"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newRepo(t *testing.T) (*Repo, *usersgorm.Repo) {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := gdb.DB()
	sqlDB.SetMaxOpenConns(1)
	if err := usersgorm.AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate users: %v", err)
	}
	if err := AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate audit: %v", err)
	}
	return New(gdb), usersgorm.New(gdb)
}

func TestRecordAndList(t *testing.T) {
	r, users := newRepo(t)
	ctx := context.Background()
	u := &ports.User{Username: "auditor", Email: "a@gov.test", FullName: "Auditor", Role: ports.RoleAdmin, Active: true}
	if err := users.CreateUser(ctx, u, "pw-123456"); err != nil {
		t.Fatalf("user: %v", err)
	}
	msgID := uint(12)
	entries := []*ports.AuditEntry{
		{UserID: &u.ID, Action: "message:submit", ActionType: "message:submit", EntityType: "message", EntityID: &msgID, Metadata: map[string]any{"approverRole": "manager"}},
		{UserID: &u.ID, Action: "GET /api/messages", ActionType: "GET", EntityType: "message"},
		{Action: "POST /api/auth/login", ActionType: "POST", EntityType: "auth"},
	}
	for _, e := range entries {
		if err := r.Record(ctx, e); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	list, total, err := r.ListAudit(ctx, []ports.Predicate{ports.Where("al.entity_type = ?", "message")}, ports.Page{Page: 1, Limit: 50})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 2 || len(list) != 2 {
		t.Fatalf("want 2 message entries, got %d", total)
	}
	var submit *ports.AuditEntry
	for _, e := range list {
		if e.Action == "message:submit" {
			submit = e
		}
	}
	if submit == nil || submit.Username != "auditor" || submit.Metadata["approverRole"] != "manager" {
		t.Fatalf("metadata or username missing: %+v", submit)
	}
}

func TestStats(t *testing.T) {
	r, users := newRepo(t)
	ctx := context.Background()
	u := &ports.User{Username: "stat", Email: "s@gov.test", FullName: "Stat User", Role: ports.RoleManager, Active: true}
	if err := users.CreateUser(ctx, u, "pw-123456"); err != nil {
		t.Fatalf("user: %v", err)
	}
	now := time.Now()
	old := now.AddDate(0, 0, -40)
	for _, e := range []*ports.AuditEntry{
		{UserID: &u.ID, Action: "message:create", ActionType: "message:create", EntityType: "message", CreatedAt: now},
		{UserID: &u.ID, Action: "message:send", ActionType: "message:send", EntityType: "message", CreatedAt: now},
		{Action: "POST /api/auth/login", ActionType: "POST", EntityType: "auth", CreatedAt: now},
		{UserID: &u.ID, Action: "message:create", ActionType: "message:create", EntityType: "message", CreatedAt: old},
	} {
		if err := r.Record(ctx, e); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	st, err := r.Stats(ctx, now.AddDate(0, 0, -30), now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if len(st.EntityStats) != 2 || st.EntityStats[0].Key != "message" || st.EntityStats[0].Count != 2 {
		t.Fatalf("entity stats: %+v", st.EntityStats)
	}
	if len(st.UserStats) != 1 || st.UserStats[0].Count != 2 || st.UserStats[0].Username != "stat" {
		t.Fatalf("user stats: %+v", st.UserStats)
	}
	if st.TodayCount != 3 {
		t.Fatalf("today count: %d", st.TodayCount)
	}
}
