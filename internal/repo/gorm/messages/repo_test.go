package messagesgorm

import (
	"context"
	"testing"
	"time"

	"github.com/cuihairu/govmsg/internal/ports"
	usersgorm "github.com/cuihairu/govmsg/internal/repo/gorm/users"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type fixture struct {
	db    *gorm.DB
	repo  *Repo
	users *usersgorm.Repo
	dept  *ports.Department
	emp   *ports.User
	mgr   *ports.User
	admin *ports.User
}

func newFixture(t *testing.T) *fixture {
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
		t.Fatalf("migrate messages: %v", err)
	}
	f := &fixture{db: gdb, repo: New(gdb), users: usersgorm.New(gdb)}
	ctx := context.Background()
	f.dept = &ports.Department{Name: "Operations"}
	if err := f.users.CreateDepartment(ctx, f.dept); err != nil {
		t.Fatalf("department: %v", err)
	}
	mk := func(name string, role ports.Role, dept *uint) *ports.User {
		u := &ports.User{Username: name, Email: name + "@gov.test", FullName: name, Role: role, DepartmentID: dept, Active: true}
		if err := f.users.CreateUser(ctx, u, "pw-123456"); err != nil {
			t.Fatalf("user %s: %v", name, err)
		}
		return u
	}
	f.emp = mk("emp", ports.RoleEmployee, &f.dept.ID)
	f.mgr = mk("mgr", ports.RoleManager, &f.dept.ID)
	f.admin = mk("root", ports.RoleAdmin, nil)
	return f
}

func (f *fixture) draft(t *testing.T, number string) *ports.Message {
	t.Helper()
	m := &ports.Message{
		Number: number, Subject: "Budget", Content: "Q3 figures",
		Type: ports.TypeInternal, Priority: ports.PriorityNormal,
		SenderID: f.emp.ID, SenderDepartmentID: &f.dept.ID,
		RequiresApproval: true, Status: ports.StatusDraft,
	}
	if err := f.repo.CreateMessage(context.Background(), m); err != nil {
		t.Fatalf("create message: %v", err)
	}
	return m
}

func TestGetMessageJoinsNames(t *testing.T) {
	f := newFixture(t)
	m := f.draft(t, "MSG-1")
	got, err := f.repo.GetMessage(context.Background(), m.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.SenderName != "emp" || got.SenderRole != "employee" || got.SenderDepartmentName != "Operations" {
		t.Fatalf("joined fields missing: %+v", got)
	}
	if got.Status != ports.StatusDraft || got.Number != "MSG-1" {
		t.Fatalf("unexpected message: %+v", got)
	}
	if _, err := f.repo.GetMessage(context.Background(), 404); !ports.IsNotFound(err) {
		t.Fatalf("want not found, got %v", err)
	}
}

func TestTransitionIsGuardedByStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.draft(t, "MSG-2")
	now := time.Now()
	tr := ports.Transition{From: ports.StatusDraft, To: ports.StatusPendingManager, At: now, Submitted: true}
	if err := f.repo.Transition(ctx, m.ID, tr); err != nil {
		t.Fatalf("first transition: %v", err)
	}
	err := f.repo.Transition(ctx, m.ID, tr)
	if ports.KindOf(err) != ports.KindConflict {
		t.Fatalf("want conflict on stale transition, got %v", err)
	}
	got, _ := f.repo.GetMessage(ctx, m.ID)
	if got.Status != ports.StatusPendingManager || got.SubmittedAt == nil {
		t.Fatalf("unexpected state: %+v", got)
	}
	if err := f.repo.Transition(ctx, m.ID, ports.Transition{From: ports.StatusPendingManager, To: "archived", At: now}); ports.KindOf(err) != ports.KindValidation {
		t.Fatalf("want validation error for unknown status, got %v", err)
	}
}

func TestStatusColumnRejectsUnknownValues(t *testing.T) {
	f := newFixture(t)
	m := f.draft(t, "MSG-3")
	err := f.db.Exec("UPDATE messages SET status = ? WHERE id = ?", "archived", m.ID).Error
	if err == nil {
		t.Fatal("expected check constraint violation")
	}
}

func TestUpdateMessageRequiresExpectedStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.draft(t, "MSG-4")
	subj := "Revised"
	if err := f.repo.UpdateMessage(ctx, m.ID, ports.StatusDraft, ports.MessageChanges{Subject: &subj}, time.Now()); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := f.repo.UpdateMessage(ctx, m.ID, ports.StatusRejected, ports.MessageChanges{Subject: &subj}, time.Now()); ports.KindOf(err) != ports.KindConflict {
		t.Fatalf("want conflict, got %v", err)
	}
	got, _ := f.repo.GetMessage(ctx, m.ID)
	if got.Subject != subj {
		t.Fatalf("subject not updated: %q", got.Subject)
	}
}

func TestApprovalRowsStayUniquePerApprover(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.draft(t, "MSG-5")
	now := time.Now()

	if err := f.repo.ResetApprovals(ctx, m.ID, &f.mgr.ID, now); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if err := f.repo.ResetApprovals(ctx, m.ID, &f.mgr.ID, now); err != nil {
		t.Fatalf("reset again: %v", err)
	}
	created, err := f.repo.EnsurePendingApproval(ctx, m.ID, f.mgr.ID, now)
	if err != nil || created {
		t.Fatalf("ensure must not duplicate: created=%v err=%v", created, err)
	}
	rows, _ := f.repo.MessageApprovals(ctx, m.ID)
	if len(rows) != 1 || rows[0].Status != ports.ApprovalPending || rows[0].ApproverName != "mgr" {
		t.Fatalf("want one pending row, got %+v", rows)
	}
	ok, err := f.repo.HasPendingApprovalFrom(ctx, m.ID, ports.RoleManager)
	if err != nil || !ok {
		t.Fatalf("manager row not detected: %v", err)
	}
	ok, _ = f.repo.HasPendingApprovalFrom(ctx, m.ID, ports.RoleAdmin)
	if ok {
		t.Fatal("no admin row expected")
	}
}

func TestDecideReportsZeroRowsOnSecondCall(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.draft(t, "MSG-6")
	now := time.Now()
	_ = f.repo.ResetApprovals(ctx, m.ID, &f.mgr.ID, now)

	d := ports.Decision{MessageID: m.ID, ApproverID: f.mgr.ID, Status: ports.ApprovalApproved, Comments: "ok", DecidedBy: f.mgr.ID, At: now}
	n, err := f.repo.Decide(ctx, d)
	if err != nil || n != 1 {
		t.Fatalf("first decide: n=%d err=%v", n, err)
	}
	n, err = f.repo.Decide(ctx, d)
	if err != nil || n != 0 {
		t.Fatalf("second decide must affect nothing: n=%d err=%v", n, err)
	}

	// an admin with no own row closes whatever is still open
	_, _ = f.repo.EnsurePendingApproval(ctx, m.ID, f.mgr.ID, now)
	n, _ = f.repo.Decide(ctx, ports.Decision{MessageID: m.ID, Status: ports.ApprovalRejected, Comments: "no", DecidedBy: f.admin.ID, At: now})
	if n != 1 {
		t.Fatalf("want the open row closed, got %d", n)
	}
	list, total, err := f.repo.ListApprovals(ctx, []ports.Predicate{ports.Where("a.message_id = ?", m.ID)}, ports.Page{Page: 1, Limit: 10})
	if err != nil || total != 2 || len(list) != 2 {
		t.Fatalf("list approvals: total=%d err=%v", total, err)
	}
	if list[0].MessageNumber != "MSG-6" {
		t.Fatalf("message number not joined: %+v", list[0])
	}
}

func TestRecipientsLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.draft(t, "MSG-7")
	rs := []ports.Recipient{
		{UserID: &f.mgr.ID, Email: f.mgr.Email, Name: f.mgr.FullName, Kind: ports.RecipientUser},
		{Email: "ext@example.org", Name: "ext@example.org", Kind: ports.RecipientExternal},
	}
	if err := f.repo.ReplaceRecipients(ctx, m.ID, rs); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if ok, _ := f.repo.IsRecipient(ctx, m.ID, f.mgr.ID); !ok {
		t.Fatal("manager should be a recipient")
	}
	if err := f.repo.ReplaceRecipients(ctx, m.ID, rs[1:]); err != nil {
		t.Fatalf("replace again: %v", err)
	}
	if ok, _ := f.repo.IsRecipient(ctx, m.ID, f.mgr.ID); ok {
		t.Fatal("replace must not merge")
	}
	if err := f.repo.MarkRecipients(ctx, m.ID, ports.RecipientSent); err != nil {
		t.Fatalf("mark: %v", err)
	}
	got, _ := f.repo.ListRecipients(ctx, m.ID)
	if len(got) != 1 || got[0].Status != ports.RecipientSent {
		t.Fatalf("unexpected recipients: %+v", got)
	}
}

func TestDeleteMessageCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.draft(t, "MSG-8")
	_ = f.repo.ResetApprovals(ctx, m.ID, &f.mgr.ID, time.Now())
	_ = f.repo.ReplaceRecipients(ctx, m.ID, []ports.Recipient{{Email: "x@y.z", Kind: ports.RecipientExternal}})
	if err := f.repo.DeleteMessage(ctx, m.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	var n int64
	f.db.Model(&ApprovalRecord{}).Where("message_id = ?", m.ID).Count(&n)
	if n != 0 {
		t.Fatalf("approvals left behind: %d", n)
	}
	if err := f.repo.DeleteMessage(ctx, m.ID); !ports.IsNotFound(err) {
		t.Fatalf("want not found, got %v", err)
	}
}

func TestListMessagesAppliesPredicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.draft(t, "MSG-9")
	f.draft(t, "MSG-10")
	other := &ports.Message{Number: "MSG-11", Subject: "s", Content: "c", Type: ports.TypeInternal, Priority: ports.PriorityLow, SenderID: f.admin.ID, Status: ports.StatusDraft}
	if err := f.repo.CreateMessage(ctx, other); err != nil {
		t.Fatalf("create: %v", err)
	}
	where := []ports.Predicate{ports.AnyOf(ports.Where("m.sender_department_id = ?", f.dept.ID), ports.Where("m.receiver_department_id = ?", f.dept.ID))}
	arr, total, err := f.repo.ListMessages(ctx, where, ports.Page{Page: 1, Limit: 1})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 2 || len(arr) != 1 {
		t.Fatalf("want 1 of 2, got %d of %d", len(arr), total)
	}
	_, total, _ = f.repo.ListMessages(ctx, []ports.Predicate{ports.Never()}, ports.Page{Page: 1, Limit: 10})
	if total != 0 {
		t.Fatalf("never predicate matched %d rows", total)
	}
}
