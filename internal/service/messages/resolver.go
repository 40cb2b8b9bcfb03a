package messages

import (
	"context"

	dom "github.com/cuihairu/govmsg/internal/ports"
)

// Candidates are the active users approver resolution may pick from.
type Candidates struct {
	// Manager is an active manager of the submitter's department.
	Manager *dom.User
	// Admin is any active admin.
	Admin *dom.User
}

// Resolution names who must act next and the status the message moves to.
// ApproverID is nil when no further approval is needed.
type Resolution struct {
	ApproverID   *uint
	ApproverRole dom.Role
	Target       dom.Status
}

var (
	errDepartmentRequired = dom.Misconfigured("department_required", "Sender department is required before submitting")
	errNoApprover         = dom.Unresolvable("no_approver", "No approver configured for department")
	errNoAdmin            = dom.Unresolvable("no_admin_approver", "No active admin available for approval")
)

// ResolveApprover decides the approval route of a submission made by role on
// behalf of departmentID. It performs no lookups; c carries whatever active
// users exist.
func ResolveApprover(role dom.Role, departmentID *uint, adminRequired bool, c Candidates) (Resolution, error) {
	switch role {
	case dom.RoleEmployee:
		if departmentID == nil {
			return Resolution{}, errDepartmentRequired
		}
		if c.Manager != nil {
			return Resolution{ApproverID: ptr(c.Manager.ID), ApproverRole: dom.RoleManager, Target: dom.StatusPendingManager}, nil
		}
		if c.Admin != nil {
			return Resolution{ApproverID: ptr(c.Admin.ID), ApproverRole: dom.RoleAdmin, Target: dom.StatusPendingAdmin}, nil
		}
		return Resolution{}, errNoApprover
	case dom.RoleManager:
		if !adminRequired {
			return Resolution{Target: dom.StatusApproved}, nil
		}
		if c.Admin != nil {
			return Resolution{ApproverID: ptr(c.Admin.ID), ApproverRole: dom.RoleAdmin, Target: dom.StatusPendingAdmin}, nil
		}
		return Resolution{}, errNoAdmin
	case dom.RoleAdmin:
		return Resolution{Target: dom.StatusApproved}, nil
	}
	return Resolution{}, errUnknownRole
}

// lookupCandidates loads only the users ResolveApprover can use for role.
func lookupCandidates(ctx context.Context, dir dom.DirectoryRepository, role dom.Role, departmentID *uint, adminRequired bool) (Candidates, error) {
	var (
		c   Candidates
		err error
	)
	switch role {
	case dom.RoleEmployee:
		if departmentID == nil {
			return c, nil
		}
		if c.Manager, err = activeUser(ctx, dir, dom.RoleManager, departmentID); err != nil || c.Manager != nil {
			return c, err
		}
		c.Admin, err = activeUser(ctx, dir, dom.RoleAdmin, nil)
	case dom.RoleManager:
		if adminRequired {
			c.Admin, err = activeUser(ctx, dir, dom.RoleAdmin, nil)
		}
	}
	return c, err
}
