package messages

import (
	"math"
	"strings"
	"testing"

	dom "github.com/cuihairu/govmsg/internal/ports"
)

func TestVisibility(t *testing.T) {
	dept := uint(4)
	if ps := Visibility(dom.Actor{ID: 1, Role: dom.RoleAdmin}); len(ps) != 0 {
		t.Fatalf("admin should be unrestricted, got %v", ps)
	}

	ps := Visibility(dom.Actor{ID: 2, Role: dom.RoleManager, DepartmentID: &dept})
	if len(ps) != 1 || !strings.Contains(ps[0].SQL, "sender_department_id") || len(ps[0].Args) != 2 {
		t.Fatalf("manager predicate: %+v", ps)
	}
	ps = Visibility(dom.Actor{ID: 2, Role: dom.RoleManager})
	if len(ps) != 1 || ps[0].SQL != dom.Never().SQL {
		t.Fatalf("manager without department should see nothing: %+v", ps)
	}

	ps = Visibility(dom.Actor{ID: 3, Role: dom.RoleEmployee})
	if len(ps) != 1 || len(ps[0].Args) != 2 {
		t.Fatalf("employee predicate: %+v", ps)
	}
	ps = Visibility(dom.Actor{ID: 3, Role: dom.RoleEmployee, DepartmentID: &dept})
	if len(ps[0].Args) != 4 {
		t.Fatalf("employee with department should match four ways: %+v", ps)
	}
	for _, p := range ps {
		if strings.Count(p.SQL, "?") != len(p.Args) {
			t.Fatalf("placeholders and args disagree: %+v", p)
		}
	}
}

func TestCanView(t *testing.T) {
	d1, d2 := uint(1), uint(2)
	m := &dom.Message{SenderID: 9, SenderDepartmentID: &d1, ReceiverDepartmentID: &d2}

	if !CanView(dom.Actor{ID: 9, Role: dom.RoleEmployee}, m, false) {
		t.Fatal("sender must see own message")
	}
	if !CanView(dom.Actor{ID: 5, Role: dom.RoleManager, DepartmentID: &d2}, m, false) {
		t.Fatal("receiving manager must see message")
	}
	if CanView(dom.Actor{ID: 5, Role: dom.RoleEmployee}, m, false) {
		t.Fatal("unrelated employee must not see message")
	}
	if !CanView(dom.Actor{ID: 5, Role: dom.RoleEmployee}, m, true) {
		t.Fatal("recipient must see message")
	}
}

func TestFilterPredicates(t *testing.T) {
	a := dom.Actor{ID: 1, Role: dom.RoleAdmin}
	ps, err := Filter{Status: dom.StatusSent, Priority: dom.PriorityHigh, SenderID: 7}.Predicates(a)
	if err != nil {
		t.Fatalf("predicates: %v", err)
	}
	if len(ps) != 3 {
		t.Fatalf("want 3 predicates, got %d", len(ps))
	}
	if _, err := (Filter{Status: "archived"}).Predicates(a); dom.KindOf(err) != dom.KindValidation {
		t.Fatalf("want validation error, got %v", err)
	}
}

func TestWindow(t *testing.T) {
	if p, l := window(0, 0, 10); p != 1 || l != 10 {
		t.Fatalf("defaults: %d %d", p, l)
	}
	if _, l := window(2, 1000, 10); l != maxLimit {
		t.Fatalf("limit not clamped: %d", l)
	}
	p, l := window(math.MaxInt, maxLimit, 10)
	if p != dom.MaxPage {
		t.Fatalf("page not clamped: %d", p)
	}
	if off := (dom.Page{Page: p, Limit: l}).Offset(); off < 0 {
		t.Fatalf("offset overflowed: %d", off)
	}
}
