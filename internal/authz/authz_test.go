package authz

import (
	"testing"

	"praxis/api/internal/hierarchy"
	"praxis/api/internal/store"
)

func TestCanViewMatter(t *testing.T) {
	matter := &store.Matter{
		ID:                    "mat_1",
		CreatedBy:             "usr_creator",
		ResponsibleAttorneyID: "usr_lead",
		SharedAttorneyIDs:     []string{"usr_shared"},
	}
	cases := []struct {
		name string
		user *store.User
		want bool
	}{
		{"admin", &store.User{ID: "usr_x", AccountType: "Admin"}, true},
		{"creator", &store.User{ID: "usr_creator", AccountType: "staff"}, true},
		{"lead attorney", &store.User{ID: "usr_lead", AccountType: "attorney"}, true},
		{"shared attorney", &store.User{ID: "usr_shared", AccountType: "attorney"}, true},
		{"outsider", &store.User{ID: "usr_other", AccountType: "attorney"}, false},
		{"nil user", nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanViewMatter(tc.user, matter); got != tc.want {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCanAssignTo(t *testing.T) {
	forest := []*hierarchy.Node{
		{Title: "Partner", Children: []*hierarchy.Node{
			{Title: "Associate", Children: []*hierarchy.Node{{Title: "Paralegal"}}},
		}},
	}
	associate := &store.User{ID: "usr_a", AccountType: "associate"}
	if !CanAssignTo(associate, "paralegal", forest) {
		t.Error("associate should assign to paralegal")
	}
	if !CanAssignTo(associate, "associate", forest) {
		t.Error("associate should assign to its own role")
	}
	if CanAssignTo(associate, "partner", forest) {
		t.Error("associate should not assign upward")
	}
	admin := &store.User{ID: "usr_b", AccountType: "admin"}
	if !CanAssignTo(admin, "partner", forest) {
		t.Error("admin is unrestricted")
	}
}

func TestCanChangeTaskStatus(t *testing.T) {
	task := &store.Task{ID: "tsk_1", CreatedBy: "usr_creator", AssigneeID: "usr_assignee"}
	if !CanChangeTaskStatus(&store.User{ID: "usr_creator"}, task) {
		t.Error("creator should change status")
	}
	if CanChangeTaskStatus(&store.User{ID: "usr_assignee"}, task) {
		t.Error("assignee must not change status")
	}
	if CanChangeTaskStatus(&store.User{ID: "usr_x", AccountType: "admin"}, task) {
		t.Error("even admins are not creators here")
	}
}

func TestCanApproveCostJournal(t *testing.T) {
	approval := &store.CostJournalApproval{ID: "apr_1", ApproverID: "usr_approver"}
	if !CanApproveCostJournal(&store.User{ID: "usr_approver"}, approval) {
		t.Error("designated approver should approve")
	}
	if !CanApproveCostJournal(&store.User{ID: "usr_x", AccountType: "admin"}, approval) {
		t.Error("admin should approve")
	}
	if CanApproveCostJournal(&store.User{ID: "usr_y", AccountType: "staff"}, approval) {
		t.Error("unrelated user must not approve")
	}
}
