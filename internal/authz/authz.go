// Package authz holds the pure access predicates. Each function takes the
// acting user and a resource and returns allow/deny; callers translate a
// deny into the right HTTP error for the resource type.
package authz

import (
	"praxis/api/internal/hierarchy"
	"praxis/api/internal/store"
)

const AdminRole = "admin"

func IsAdmin(u *store.User) bool {
	return u != nil && hierarchy.Normalize(u.AccountType) == AdminRole
}

// CanViewMatter allows admins, the creator, the lead attorney, and any
// shared attorney. Lead and shared sets must be unioned: the lead is stored
// as a scalar and is not guaranteed to appear in the shared list.
func CanViewMatter(u *store.User, m *store.Matter) bool {
	if u == nil || m == nil {
		return false
	}
	if IsAdmin(u) || u.ID == m.CreatedBy || u.ID == m.ResponsibleAttorneyID {
		return true
	}
	for _, id := range m.SharedAttorneyIDs {
		if id == u.ID {
			return true
		}
	}
	return false
}

func CanEditMatter(u *store.User, m *store.Matter) bool {
	return CanViewMatter(u, m)
}

// CanAssignTo reports whether the acting user may assign work to someone
// holding candidateRole, per the role forest.
func CanAssignTo(u *store.User, candidateRole string, forest []*hierarchy.Node) bool {
	if u == nil {
		return false
	}
	set := hierarchy.AssignableRoles(forest, u.AccountType, IsAdmin(u))
	return set.Contains(candidateRole)
}

// CanChangeTaskStatus is creator-only: the creator approves its own tasks,
// assignees cannot mark their own work done.
func CanChangeTaskStatus(u *store.User, t *store.Task) bool {
	return u != nil && t != nil && u.ID == t.CreatedBy
}

func CanEditTask(u *store.User, t *store.Task) bool {
	if u == nil || t == nil {
		return false
	}
	return IsAdmin(u) || u.ID == t.CreatedBy
}

func CanViewTask(u *store.User, t *store.Task) bool {
	if u == nil || t == nil {
		return false
	}
	return IsAdmin(u) || u.ID == t.CreatedBy || u.ID == t.AssigneeID
}

func CanApproveCostJournal(u *store.User, a *store.CostJournalApproval) bool {
	if u == nil || a == nil {
		return false
	}
	return IsAdmin(u) || u.ID == a.ApproverID
}
