package messages

import (
	dom "github.com/cuihairu/govmsg/internal/ports"
)

const recipientClause = "EXISTS (SELECT 1 FROM recipients r WHERE r.message_id = m.id AND r.recipient_id = ?)"

// Visibility returns the predicates limiting which messages a may read.
// Admins get none.
func Visibility(a dom.Actor) []dom.Predicate {
	switch a.Role {
	case dom.RoleAdmin:
		return nil
	case dom.RoleManager:
		if a.DepartmentID == nil {
			return []dom.Predicate{dom.Never()}
		}
		d := *a.DepartmentID
		return []dom.Predicate{dom.AnyOf(
			dom.Where("m.sender_department_id = ?", d),
			dom.Where("m.receiver_department_id = ?", d),
		)}
	case dom.RoleEmployee:
		ps := []dom.Predicate{
			dom.Where("m.sender_id = ?", a.ID),
			dom.Where(recipientClause, a.ID),
		}
		if a.DepartmentID != nil {
			d := *a.DepartmentID
			ps = append(ps,
				dom.Where("m.sender_department_id = ?", d),
				dom.Where("m.receiver_department_id = ?", d),
			)
		}
		return []dom.Predicate{dom.AnyOf(ps...)}
	}
	return []dom.Predicate{dom.Never()}
}

// CanView evaluates the same rule as Visibility for one loaded message.
// The sender always sees their own message.
func CanView(a dom.Actor, m *dom.Message, recipient bool) bool {
	if owns(a, m) {
		return true
	}
	switch a.Role {
	case dom.RoleAdmin:
		return true
	case dom.RoleManager:
		return a.InDepartment(m.SenderDepartmentID) || a.InDepartment(m.ReceiverDepartmentID)
	case dom.RoleEmployee:
		return recipient || a.InDepartment(m.SenderDepartmentID) || a.InDepartment(m.ReceiverDepartmentID)
	}
	return false
}

// Filter narrows a message listing.
type Filter struct {
	Status               dom.Status
	Type                 dom.MessageType
	Priority             dom.Priority
	SenderID             uint
	ReceiverDepartmentID uint
	Page                 int
	Limit                int
}

const (
	defaultLimit = 10
	maxLimit     = 100
)

// window clamps page and limit.
func window(page, limit, def int) (int, int) {
	page = min(max(page, 1), dom.MaxPage)
	if limit <= 0 {
		limit = def
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return page, limit
}

// Predicates combines the visibility rule for a with the filter.
func (f Filter) Predicates(a dom.Actor) ([]dom.Predicate, error) {
	ps := Visibility(a)
	if f.Status != "" {
		if !f.Status.Valid() {
			return nil, dom.Validation("invalid_status", "Invalid status filter")
		}
		ps = append(ps, dom.Where("m.status = ?", string(f.Status)))
	}
	if f.Type != "" {
		if !f.Type.Valid() {
			return nil, dom.Validation("invalid_message_type", "Invalid message type filter")
		}
		ps = append(ps, dom.Where("m.message_type = ?", string(f.Type)))
	}
	if f.Priority != "" {
		if !f.Priority.Valid() {
			return nil, dom.Validation("invalid_priority", "Invalid priority filter")
		}
		ps = append(ps, dom.Where("m.priority = ?", string(f.Priority)))
	}
	if f.SenderID != 0 {
		ps = append(ps, dom.Where("m.sender_id = ?", f.SenderID))
	}
	if f.ReceiverDepartmentID != 0 {
		ps = append(ps, dom.Where("m.receiver_department_id = ?", f.ReceiverDepartmentID))
	}
	return ps, nil
}
