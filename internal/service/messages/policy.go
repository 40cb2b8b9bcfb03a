package messages

import (
	dom "github.com/cuihairu/govmsg/internal/ports"
)

// Each lifecycle operation has one policy function switching over the closed
// role set. A policy answers "may this actor act on this message"; status
// gates that apply to every role live with the operation.

var (
	errForbidden   = dom.Forbidden("forbidden", "Forbidden")
	errUnknownRole = dom.Forbidden("unknown_role", "Unknown role")

	editable  = []dom.Status{dom.StatusDraft, dom.StatusRejected, dom.StatusReturnedForRevision}
	deletable = []dom.Status{dom.StatusDraft, dom.StatusRejected}
)

func owns(a dom.Actor, m *dom.Message) bool { return m.SenderID == a.ID }

// managesSender reports whether a is a manager of the message's sender department.
func managesSender(a dom.Actor, m *dom.Message) bool {
	return a.Role == dom.RoleManager && a.InDepartment(m.SenderDepartmentID)
}

func editPolicy(a dom.Actor, m *dom.Message) error {
	switch a.Role {
	case dom.RoleAdmin:
		return nil
	case dom.RoleManager:
		if owns(a, m) || (managesSender(a, m) && m.Status == dom.StatusDraft) {
			return nil
		}
		return errForbidden
	case dom.RoleEmployee:
		if owns(a, m) {
			return nil
		}
		return errForbidden
	}
	return errUnknownRole
}

func submitPolicy(a dom.Actor, m *dom.Message) error {
	switch a.Role {
	case dom.RoleAdmin, dom.RoleManager:
		return nil
	case dom.RoleEmployee:
		if owns(a, m) {
			return nil
		}
		return errForbidden
	}
	return errUnknownRole
}

// decisionPolicy gates approve and reject.
func decisionPolicy(a dom.Actor, m *dom.Message) error {
	switch a.Role {
	case dom.RoleAdmin:
		if !m.Status.Pending() {
			return dom.Conflict("not_pending", "Message is not pending approval")
		}
		return nil
	case dom.RoleManager:
		if m.Status != dom.StatusPendingManager {
			return dom.Conflict("not_pending", "Message is not pending manager approval")
		}
		if !a.InDepartment(m.SenderDepartmentID) {
			return dom.Forbidden("department_mismatch", "Managers can approve only messages from their department")
		}
		return nil
	case dom.RoleEmployee:
		return dom.Forbidden("approver_required", "Only managers and admins can decide approvals")
	}
	return errUnknownRole
}

func sendPolicy(a dom.Actor, m *dom.Message) error {
	switch a.Role {
	case dom.RoleAdmin:
		return nil
	case dom.RoleManager:
		if owns(a, m) || managesSender(a, m) {
			return nil
		}
		return errForbidden
	case dom.RoleEmployee:
		if owns(a, m) {
			return nil
		}
		return errForbidden
	}
	return errUnknownRole
}

func receivePolicy(a dom.Actor, m *dom.Message, recipient bool) error {
	switch a.Role {
	case dom.RoleAdmin:
		return nil
	case dom.RoleManager, dom.RoleEmployee:
		if recipient || a.InDepartment(m.ReceiverDepartmentID) {
			return nil
		}
		return errForbidden
	}
	return errUnknownRole
}

func deletePolicy(a dom.Actor, m *dom.Message) error {
	switch a.Role {
	case dom.RoleAdmin:
		return nil
	case dom.RoleManager:
		if owns(a, m) {
			return deletableStatus(m)
		}
		if managesSender(a, m) && m.Status.In(deletable...) {
			return nil
		}
		return errForbidden
	case dom.RoleEmployee:
		if owns(a, m) {
			return deletableStatus(m)
		}
		return errForbidden
	}
	return errUnknownRole
}

func deletableStatus(m *dom.Message) error {
	if !m.Status.In(deletable...) {
		return dom.Conflict("not_deletable", "Only draft or rejected messages can be deleted")
	}
	return nil
}

// approvalRequired reports whether a message created by role must pass approval.
// approvalLocked reports whether approval must stay on for m once its type
// is typ. Official messages and employee senders always need approval; an
// unreadable sender role keeps the stored flag.
func approvalLocked(m *dom.Message, typ dom.MessageType) bool {
	if typ == dom.TypeOfficial {
		return true
	}
	role, err := dom.NormalizeRole(m.SenderRole)
	if err != nil {
		return m.RequiresApproval
	}
	return role == dom.RoleEmployee
}

func approvalRequired(role dom.Role, requested *bool, typ dom.MessageType) bool {
	switch role {
	case dom.RoleEmployee:
		return true
	case dom.RoleManager, dom.RoleAdmin:
		return (requested != nil && *requested) || typ == dom.TypeOfficial
	}
	return true
}
