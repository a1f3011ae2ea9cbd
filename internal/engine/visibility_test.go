package engine

import (
	"testing"

	"opsight/internal/domain"
	"opsight/internal/repo"
)

func strp(s string) *string { return &s }

func TestIsTaskVisible(t *testing.T) {
	g1, g2 := "g1", "g2"
	cc := "CC"
	cases := []struct {
		name string
		p    domain.Principal
		task domain.Task
		want bool
	}{
		{"everyone visible to anyone", domain.Principal{UserID: "u1", Role: domain.RoleUser},
			domain.Task{AssignmentKind: domain.AssignEveryone}, true},
		{"user task visible to target", domain.Principal{UserID: "u1", Role: domain.RoleUser},
			domain.Task{AssignmentKind: domain.AssignUser, AssignedUserID: strp("u1")}, true},
		{"user task hidden from others", domain.Principal{UserID: "u2", Role: domain.RoleUser},
			domain.Task{AssignmentKind: domain.AssignUser, AssignedUserID: strp("u1")}, false},
		{"group task visible to member", domain.Principal{UserID: "u1", Role: domain.RoleUser, GroupID: &g1},
			domain.Task{AssignmentKind: domain.AssignGroup, TargetGroupID: &g1}, true},
		{"group task hidden from other group", domain.Principal{UserID: "u1", Role: domain.RoleUser, GroupID: &g2},
			domain.Task{AssignmentKind: domain.AssignGroup, TargetGroupID: &g1}, false},
		{"group task hidden from group-less user", domain.Principal{UserID: "u1", Role: domain.RoleUser},
			domain.Task{AssignmentKind: domain.AssignGroup, TargetGroupID: &g1}, false},
		{"identity task visible to class member", domain.Principal{UserID: "u1", Role: domain.RoleUser, IdentityClass: &cc},
			domain.Task{AssignmentKind: domain.AssignIdentity, TargetIdentity: &cc}, true},
		{"identity task hidden without class", domain.Principal{UserID: "u1", Role: domain.RoleUser},
			domain.Task{AssignmentKind: domain.AssignIdentity, TargetIdentity: &cc}, false},
		{"admin gets no elevation on single task", domain.Principal{UserID: "a1", Role: domain.RoleAdmin, GroupID: &g2},
			domain.Task{AssignmentKind: domain.AssignGroup, TargetGroupID: &g1}, false},
		{"super admin sees everything", domain.Principal{UserID: "s1", Role: domain.RoleSuperAdmin},
			domain.Task{AssignmentKind: domain.AssignGroup, TargetGroupID: &g1}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsTaskVisible(tc.p, tc.task); got != tc.want {
				t.Fatalf("IsTaskVisible=%v, want %v", got, tc.want)
			}
		})
	}
}

func TestCanParticipateAdminOverride(t *testing.T) {
	g1, g2 := "g1", "g2"
	task := domain.Task{AssignmentKind: domain.AssignGroup, TargetGroupID: &g1}
	admin := domain.Principal{UserID: "a1", Role: domain.RoleAdmin, GroupID: &g2}
	if IsTaskVisible(admin, task) {
		t.Fatalf("expected task hidden from out-of-group admin")
	}
	if !CanParticipate(admin, task) {
		t.Fatalf("expected admin to be allowed to participate anyway")
	}
	user := domain.Principal{UserID: "u1", Role: domain.RoleUser, GroupID: &g2}
	if CanParticipate(user, task) {
		t.Fatalf("expected regular user blocked")
	}
}

func TestRecordScope(t *testing.T) {
	g1 := "g1"
	cc := "CC"
	groupTask := domain.Task{AssignmentKind: domain.AssignGroup, TargetGroupID: &g1}
	identityTask := domain.Task{AssignmentKind: domain.AssignIdentity, TargetIdentity: &cc}

	user := domain.Principal{UserID: "u1", Role: domain.RoleUser, GroupID: &g1}
	if s := recordScope(user, groupTask); s != (repo.RecordScope{}) {
		t.Fatalf("regular users see the unscoped set, got %+v", s)
	}
	super := domain.Principal{UserID: "s1", Role: domain.RoleSuperAdmin}
	if s := recordScope(super, groupTask); s != (repo.RecordScope{}) {
		t.Fatalf("super admins see the unscoped set, got %+v", s)
	}
	admin := domain.Principal{UserID: "a1", Role: domain.RoleAdmin, GroupID: &g1}
	if s := recordScope(admin, groupTask); s.GroupID != "g1" {
		t.Fatalf("expected group scope, got %+v", s)
	}
	groupless := domain.Principal{UserID: "a2", Role: domain.RoleAdmin}
	if s := recordScope(groupless, groupTask); !s.Impossible {
		t.Fatalf("group-less admin on group task should match nothing, got %+v", s)
	}
	if s := recordScope(admin, identityTask); !s.Impossible {
		t.Fatalf("class-less admin on identity task should match nothing, got %+v", s)
	}
	withClass := domain.Principal{UserID: "a3", Role: domain.RoleAdmin, IdentityClass: &cc}
	if s := recordScope(withClass, identityTask); s.IdentityClass != "CC" {
		t.Fatalf("expected identity scope, got %+v", s)
	}
}

func TestTaskListScope(t *testing.T) {
	g1 := "g1"
	super := domain.Principal{UserID: "s1", Role: domain.RoleSuperAdmin}
	if clause, args := taskListScope(super); clause != "" || args != nil {
		t.Fatalf("super admin scope should be unrestricted")
	}
	plain := domain.Principal{UserID: "u1", Role: domain.RoleUser}
	clause, args := taskListScope(plain)
	if len(args) != 1 || args[0] != "u1" {
		t.Fatalf("expected single user arg, got %v", args)
	}
	member := domain.Principal{UserID: "u1", Role: domain.RoleUser, GroupID: &g1}
	clause, args = taskListScope(member)
	if len(args) != 2 || args[1] != "g1" {
		t.Fatalf("expected group arg, got %v", args)
	}
	if clause == "" {
		t.Fatalf("expected non-empty clause")
	}
}

func TestProgressOf(t *testing.T) {
	if got := progressOf(50, 100); got != 50 {
		t.Fatalf("got %v", got)
	}
	if got := progressOf(150, 100); got != 100 {
		t.Fatalf("expected clamp to 100, got %v", got)
	}
	if got := progressOf(-5, 100); got != 0 {
		t.Fatalf("expected clamp to 0, got %v", got)
	}
	if got := progressOf(10, 0); got != 0 {
		t.Fatalf("no target means no progress, got %v", got)
	}
}

func TestChainViewsKeepTruePositions(t *testing.T) {
	all := []domain.ChainEntry{
		{ID: "e1", UserID: "u1"},
		{ID: "e2", UserID: "u2"},
		{ID: "e3", UserID: "u1"},
	}
	visible := []domain.ChainEntry{all[0], all[2]}
	views := chainViews(all, visible)
	if len(views) != 2 {
		t.Fatalf("expected 2 views, got %d", len(views))
	}
	if views[0].Sequence != 1 || views[1].Sequence != 3 {
		t.Fatalf("expected sequences 1 and 3, got %d and %d", views[0].Sequence, views[1].Sequence)
	}
}

func TestIsReportVisible(t *testing.T) {
	g1, g2 := "g1", "g2"
	author := domain.User{ID: "u1", GroupID: &g1}
	if !IsReportVisible(domain.Principal{UserID: "u1", Role: domain.RoleUser}, author) {
		t.Fatalf("authors see their own reports")
	}
	if IsReportVisible(domain.Principal{UserID: "u2", Role: domain.RoleUser, GroupID: &g1}, author) {
		t.Fatalf("peers do not see each other's reports")
	}
	if !IsReportVisible(domain.Principal{UserID: "a1", Role: domain.RoleAdmin, GroupID: &g1}, author) {
		t.Fatalf("group admin sees group reports")
	}
	if IsReportVisible(domain.Principal{UserID: "a2", Role: domain.RoleAdmin, GroupID: &g2}, author) {
		t.Fatalf("other-group admin blocked")
	}
	if !IsReportVisible(domain.Principal{UserID: "a3", Role: domain.RoleAdmin}, author) {
		t.Fatalf("group-less admin falls through to full visibility")
	}
	if !IsReportVisible(domain.Principal{UserID: "s1", Role: domain.RoleSuperAdmin}, author) {
		t.Fatalf("super admin sees all reports")
	}
}
