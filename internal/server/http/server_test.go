package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/cuihairu/govmsg/internal/auth/token"
	dom "github.com/cuihairu/govmsg/internal/ports"
	"github.com/cuihairu/govmsg/internal/repo/gorm/uow"
	auditsvc "github.com/cuihairu/govmsg/internal/service/audit"
	"github.com/cuihairu/govmsg/internal/service/messages"
	"github.com/cuihairu/govmsg/internal/service/users"
)

func init() { gin.SetMode(gin.TestMode) }

type fixture struct {
	srv     *Server
	h       http.Handler
	uow     *uow.UnitOfWork
	tokens  *token.Manager
	ops     *dom.Department
	finance *dom.Department
	emp     *dom.User
	mgr     *dom.User
	fmgr    *dom.User
	admin   *dom.User
}

func newFixture(t *testing.T, cors CORSConfig) *fixture {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := gdb.DB()
	sqlDB.SetMaxOpenConns(1)
	if err := uow.AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	f := &fixture{uow: uow.New(gdb), tokens: token.NewManager("test-secret-0123456789abcdef", time.Hour)}
	ctx := context.Background()
	store := f.uow.Stores().Users
	dept := func(name string) *dom.Department {
		d := &dom.Department{Name: name}
		if err := store.CreateDepartment(ctx, d); err != nil {
			t.Fatalf("department %s: %v", name, err)
		}
		return d
	}
	user := func(name string, role dom.Role, d *dom.Department) *dom.User {
		u := &dom.User{Username: name, Email: name + "@gov.test", FullName: name, Role: role, Active: true}
		if d != nil {
			u.DepartmentID = &d.ID
		}
		if err := store.CreateUser(ctx, u, "pw-123456"); err != nil {
			t.Fatalf("user %s: %v", name, err)
		}
		return u
	}
	f.ops, f.finance = dept("Operations"), dept("Finance")
	f.emp = user("emp", dom.RoleEmployee, f.ops)
	f.mgr = user("mgr", dom.RoleManager, f.ops)
	f.fmgr = user("fmgr", dom.RoleManager, f.finance)
	f.admin = user("root", dom.RoleAdmin, nil)

	f.srv, err = NewServer(Deps{
		Messages: messages.NewService(f.uow, messages.Options{}),
		Users:    users.NewService(f.uow, f.tokens),
		Audit:    auditsvc.NewService(f.uow.Stores().Audit),
		Tokens:   f.tokens,
		UoW:      f.uow,
		CORS:     cors,
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	f.h = f.srv.Handler()
	return f
}

func (f *fixture) token(t *testing.T, u *dom.User) string {
	t.Helper()
	tok, err := f.tokens.Sign(u.ID, u.Username, u.Role.String())
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

type reply struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

// do sends a request as u (anonymous when nil) and decodes the envelope.
func (f *fixture) do(t *testing.T, u *dom.User, method, path string, body any) (int, reply) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if u != nil {
		req.Header.Set("Authorization", "Bearer "+f.token(t, u))
	}
	w := httptest.NewRecorder()
	f.h.ServeHTTP(w, req)
	var r reply
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &r); err != nil {
			t.Fatalf("%s %s: decode %q: %v", method, path, w.Body.String(), err)
		}
	}
	return w.Code, r
}

func (f *fixture) expect(t *testing.T, u *dom.User, method, path string, body any, status int, code string) reply {
	t.Helper()
	got, r := f.do(t, u, method, path, body)
	if got != status || r.Error != code {
		t.Fatalf("%s %s: want %d %q, got %d %q (%s)", method, path, status, code, got, r.Error, r.Message)
	}
	return r
}

func decode[T any](t *testing.T, r reply) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(r.Data, &v); err != nil {
		t.Fatalf("decode data %s: %v", r.Data, err)
	}
	return v
}

func TestHealth(t *testing.T) {
	f := newFixture(t, CORSConfig{})
	r := f.expect(t, nil, http.MethodGet, "/health", nil, http.StatusOK, "")
	body := decode[map[string]any](t, r)
	if body["status"] != "healthy" || body["database"] != "connected" {
		t.Fatalf("unexpected health body: %v", body)
	}
}

func TestAuthenticationRequired(t *testing.T) {
	f := newFixture(t, CORSConfig{})
	f.expect(t, nil, http.MethodGet, "/api/messages", nil, http.StatusUnauthorized, "token_required")

	req := httptest.NewRequest(http.MethodGet, "/api/messages", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	w := httptest.NewRecorder()
	f.h.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("forged token: want 401, got %d", w.Code)
	}

	ghost := &dom.User{ID: 9999, Username: "ghost", Role: dom.RoleAdmin}
	f.expect(t, ghost, http.MethodGet, "/api/messages", nil, http.StatusUnauthorized, "user_not_found")
}

func TestLoginAndProfile(t *testing.T) {
	f := newFixture(t, CORSConfig{})
	f.expect(t, nil, http.MethodPost, "/api/auth/login", map[string]string{"username": "emp", "password": "wrong"}, http.StatusUnauthorized, "invalid_credentials")
	r := f.expect(t, nil, http.MethodPost, "/api/auth/login", map[string]string{"email": "emp@gov.test", "password": "pw-123456"}, http.StatusOK, "")
	sess := decode[struct {
		User  dom.User `json:"user"`
		Token string   `json:"token"`
	}](t, r)
	if sess.Token == "" || sess.User.ID != f.emp.ID {
		t.Fatalf("unexpected session: %+v", sess)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/auth/profile", nil)
	req.Header.Set("Authorization", "Bearer "+sess.Token)
	w := httptest.NewRecorder()
	f.h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("profile: want 200, got %d %s", w.Code, w.Body.String())
	}

	r = f.expect(t, nil, http.MethodPost, "/api/auth/register", map[string]string{
		"username": "newbie", "email": "newbie@gov.test", "password": "secret1", "full_name": "New Bie",
	}, http.StatusCreated, "")
	reg := decode[struct {
		User dom.User `json:"user"`
	}](t, r)
	if reg.User.Role != dom.RoleEmployee {
		t.Fatalf("self registration must create an employee, got %v", reg.User.Role)
	}
}

func TestMessageLifecycleOverHTTP(t *testing.T) {
	f := newFixture(t, CORSConfig{})
	r := f.expect(t, f.emp, http.MethodPost, "/api/messages", map[string]any{
		"subject":      "Budget",
		"content":      "Q3 figures",
		"priority":     "HIGH",
		"recipientIds": []uint{f.fmgr.ID},
	}, http.StatusCreated, "")
	m := decode[dom.Message](t, r)
	if m.Status != dom.StatusDraft || !m.RequiresApproval || m.Priority != dom.PriorityHigh {
		t.Fatalf("unexpected draft: %+v", m)
	}
	base := fmt.Sprintf("/api/messages/%d", m.ID)

	f.expect(t, f.emp, http.MethodPost, base+"/send", map[string]any{"receiver_department_id": f.finance.ID}, http.StatusConflict, "submission_required")
	r = f.expect(t, f.emp, http.MethodPost, base+"/submit", nil, http.StatusOK, "")
	if got := decode[dom.Message](t, r).Status; got != dom.StatusPendingManager {
		t.Fatalf("submit: want pending_manager_approval, got %s", got)
	}
	f.expect(t, f.emp, http.MethodPost, base+"/send", nil, http.StatusConflict, "approval_required")
	f.expect(t, f.emp, http.MethodPost, base+"/approve", nil, http.StatusForbidden, "approver_required")
	f.expect(t, f.fmgr, http.MethodPost, base+"/approve", nil, http.StatusForbidden, "department_mismatch")

	r = f.expect(t, f.mgr, http.MethodGet, "/api/approvals", nil, http.StatusOK, "")
	page := decode[messages.ApprovalPage](t, r)
	if len(page.Approvals) != 1 || page.Approvals[0].MessageID != m.ID {
		t.Fatalf("want one pending approval for %d, got %+v", m.ID, page.Approvals)
	}
	approval := fmt.Sprintf("/api/approvals/%d", page.Approvals[0].ID)
	f.expect(t, f.emp, http.MethodPost, approval+"/approve", nil, http.StatusForbidden, "forbidden")
	r = f.expect(t, f.mgr, http.MethodPost, approval+"/approve", map[string]string{"comments": "ok"}, http.StatusOK, "")
	if got := decode[dom.Message](t, r).Status; got != dom.StatusApproved {
		t.Fatalf("approve: want approved, got %s", got)
	}
	f.expect(t, f.mgr, http.MethodPost, approval+"/approve", nil, http.StatusConflict, "approval_decided")
	f.expect(t, f.mgr, http.MethodPost, base+"/approve", nil, http.StatusConflict, "not_pending")

	r = f.expect(t, f.emp, http.MethodPost, base+"/send", map[string]any{"receiver_department_id": f.finance.ID}, http.StatusOK, "")
	if got := decode[dom.Message](t, r).Status; got != dom.StatusSent {
		t.Fatalf("send: want sent, got %s", got)
	}
	r = f.expect(t, f.fmgr, http.MethodPost, base+"/receive", nil, http.StatusOK, "")
	if got := decode[dom.Message](t, r).Status; got != dom.StatusReceived {
		t.Fatalf("receive: want received, got %s", got)
	}

	r = f.expect(t, f.emp, http.MethodGet, base, nil, http.StatusOK, "")
	detail := decode[dom.MessageDetail](t, r)
	if len(detail.Recipients) != 1 || detail.Recipients[0].Status != dom.RecipientDelivered {
		t.Fatalf("unexpected recipients: %+v", detail.Recipients)
	}
	if len(detail.Approvals) != 1 || detail.Approvals[0].Status != dom.ApprovalApproved {
		t.Fatalf("unexpected approvals: %+v", detail.Approvals)
	}
}

func TestRequestValidation(t *testing.T) {
	f := newFixture(t, CORSConfig{})
	f.expect(t, f.emp, http.MethodPost, "/api/messages", map[string]any{
		"subject": "s", "content": "c", "message_type": "memo",
	}, http.StatusBadRequest, "invalid_message_type")
	f.expect(t, f.emp, http.MethodPost, "/api/messages", map[string]any{"subject": " "}, http.StatusBadRequest, "subject_content_required")
	f.expect(t, f.emp, http.MethodGet, "/api/messages?status=archived", nil, http.StatusBadRequest, "invalid_status")
	f.expect(t, f.emp, http.MethodGet, "/api/messages/abc", nil, http.StatusBadRequest, "invalid_id")
	f.expect(t, f.emp, http.MethodGet, "/api/messages/4242", nil, http.StatusNotFound, "message_not_found")
}

func TestRoutePolicy(t *testing.T) {
	f := newFixture(t, CORSConfig{})
	f.expect(t, f.emp, http.MethodGet, "/api/users", nil, http.StatusForbidden, "forbidden")
	f.expect(t, f.emp, http.MethodGet, "/api/audit", nil, http.StatusForbidden, "forbidden")
	f.expect(t, f.mgr, http.MethodGet, "/api/audit/stats", nil, http.StatusOK, "")
	f.expect(t, f.emp, http.MethodGet, "/api/users/recipients", nil, http.StatusOK, "")
	r := f.expect(t, f.emp, http.MethodGet, "/api/users/meta/departments", nil, http.StatusOK, "")
	ds := decode[struct {
		Departments []dom.Department `json:"departments"`
	}](t, r)
	if len(ds.Departments) != 2 {
		t.Fatalf("want 2 departments, got %d", len(ds.Departments))
	}

	r = f.expect(t, f.admin, http.MethodPost, "/api/users", map[string]any{
		"username": "clerk", "email": "clerk@gov.test", "password": "secret1",
		"full_name": "Clerk", "role": "employee", "department": "Legal",
	}, http.StatusCreated, "")
	clerk := decode[dom.User](t, r)
	f.expect(t, f.admin, http.MethodPost, fmt.Sprintf("/api/users/%d/reset-password", clerk.ID), map[string]string{"new_password": "fresh-pass"}, http.StatusOK, "")
	f.expect(t, nil, http.MethodPost, "/api/auth/login", map[string]string{"username": "clerk", "password": "fresh-pass"}, http.StatusOK, "")
}

func TestRequestTrailRecorded(t *testing.T) {
	f := newFixture(t, CORSConfig{})
	f.expect(t, f.emp, http.MethodGet, "/api/messages", nil, http.StatusOK, "")
	f.expect(t, nil, http.MethodPost, "/api/auth/login", map[string]string{"username": "emp", "password": "pw-123456"}, http.StatusOK, "")
	// anonymous reads are not kept
	f.do(t, nil, http.MethodGet, "/api/messages", nil)

	logs, total, err := f.uow.Stores().Audit.ListAudit(context.Background(), []dom.Predicate{
		dom.Where("al.action_type = ?", "request"),
	}, dom.Page{Page: 1, Limit: 10})
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	if total != 2 {
		t.Fatalf("want 2 request entries, got %d: %+v", total, logs)
	}
	for _, l := range logs {
		if l.Action == "GET /api/messages" && (l.UserID == nil || *l.UserID != f.emp.ID || l.EntityType != "message") {
			t.Fatalf("unexpected entry: %+v", l)
		}
	}
}

func TestCORSDefaultWildcardAndPreflight(t *testing.T) {
	f := newFixture(t, CORSConfig{})
	w := httptest.NewRecorder()
	f.h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("expected wildcard origin, got %q", got)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected a request id header")
	}

	w = httptest.NewRecorder()
	f.h.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/api/messages", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", w.Code)
	}
}

func TestCORSCredentialsEchoOrigin(t *testing.T) {
	f := newFixture(t, CORSConfig{AllowOrigins: []string{"*"}, AllowCredentials: true})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://example.com")
	f.h.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://example.com" {
		t.Fatalf("expected echo origin, got %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Fatalf("expected allow-credentials true, got %q", got)
	}
}

type ctxKey struct{}

func TestHandlerContextFollowsRequest(t *testing.T) {
	f := newFixture(t, CORSConfig{})
	r := f.srv.ginEngine()
	r.GET("/ctx", func(c *gin.Context) {
		var ctx context.Context = c
		if ctx.Value(ctxKey{}) != "span" {
			c.Status(http.StatusInternalServerError)
			return
		}
		select {
		case <-ctx.Done():
			c.Status(http.StatusNoContent)
		default:
			c.Status(http.StatusConflict)
		}
	})
	reqCtx, cancel := context.WithCancel(context.WithValue(context.Background(), ctxKey{}, "span"))
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/ctx", nil).WithContext(reqCtx)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("handler context lost request values or cancellation: %d", w.Code)
	}
}

func TestStatusOf(t *testing.T) {
	cases := []struct {
		err  *dom.Error
		want int
	}{
		{dom.Validation("x", ""), http.StatusBadRequest},
		{dom.Unauthenticated("x", ""), http.StatusUnauthorized},
		{dom.Forbidden("x", ""), http.StatusForbidden},
		{dom.NotFound("x", ""), http.StatusNotFound},
		{dom.Conflict("x", ""), http.StatusConflict},
		{dom.Misconfigured("x", ""), http.StatusBadRequest},
		{dom.Unresolvable("x", ""), http.StatusConflict},
		{dom.Infra("x", fmt.Errorf("boom")), http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := StatusOf(c.err); got != c.want {
			t.Fatalf("%v: want %d, got %d", c.err, c.want, got)
		}
	}
}
