package engine

import (
	"opsight/internal/domain"
	"opsight/internal/repo"
)

// IsTaskVisible reports whether the task is in the principal's visible set.
// Admins follow the same per-task rule as regular users here; admin elevation
// only affects list scope and cross-user aggregation.
func IsTaskVisible(p domain.Principal, t domain.Task) bool {
	if p.IsSuperAdmin() {
		return true
	}
	switch t.AssignmentKind {
	case domain.AssignEveryone:
		return true
	case domain.AssignUser:
		return t.AssignedUserID != nil && *t.AssignedUserID == p.UserID
	case domain.AssignGroup:
		return p.GroupID != nil && t.TargetGroupID != nil && *t.TargetGroupID == *p.GroupID
	case domain.AssignIdentity:
		return p.IdentityClass != nil && t.TargetIdentity != nil && *t.TargetIdentity == *p.IdentityClass
	}
	return false
}

// CanParticipate is the write-path check: admins may always submit, everyone
// else needs read visibility. Fails closed on malformed assignment state.
func CanParticipate(p domain.Principal, t domain.Task) bool {
	return p.IsAdmin() || IsTaskVisible(p, t)
}

// taskListScope produces the SQL predicate equivalent of IsTaskVisible for
// list queries. An empty clause means no restriction.
func taskListScope(p domain.Principal) (string, []any) {
	if p.IsSuperAdmin() {
		return "", nil
	}
	clause := `assignment_kind='everyone' OR (assignment_kind='user' AND assigned_user_id=?)`
	args := []any{p.UserID}
	if p.GroupID != nil {
		clause += ` OR (assignment_kind='group' AND target_group_id=?)`
		args = append(args, *p.GroupID)
	}
	if p.IdentityClass != nil {
		clause += ` OR (assignment_kind='identity' AND target_identity=?)`
		args = append(args, *p.IdentityClass)
	}
	return clause, args
}

// IsReportVisible evaluates report visibility against the loaded author.
// A group-less admin falls through to full visibility.
func IsReportVisible(p domain.Principal, author domain.User) bool {
	if p.IsSuperAdmin() {
		return true
	}
	if p.IsAdmin() {
		if p.GroupID == nil {
			return true
		}
		return author.GroupID != nil && *author.GroupID == *p.GroupID
	}
	return author.ID == p.UserID
}

// reportListScope narrows report list queries to the principal's view.
func reportListScope(p domain.Principal, f *repo.ReportFilters) {
	if p.IsSuperAdmin() {
		return
	}
	if p.IsAdmin() {
		if p.GroupID != nil {
			f.GroupID = *p.GroupID
		}
		return
	}
	f.UserID = p.UserID
}

// recordScope restricts "all participants" sub-views for non-super admins,
// following the task's own assignment kind. Regular users and super admins
// see the unscoped set.
func recordScope(p domain.Principal, t domain.Task) repo.RecordScope {
	if !p.IsAdmin() || p.IsSuperAdmin() {
		return repo.RecordScope{}
	}
	switch t.AssignmentKind {
	case domain.AssignGroup:
		if p.GroupID == nil {
			return repo.RecordScope{Impossible: true}
		}
		return repo.RecordScope{GroupID: *p.GroupID}
	case domain.AssignIdentity:
		if p.IdentityClass == nil {
			return repo.RecordScope{Impossible: true}
		}
		return repo.RecordScope{IdentityClass: *p.IdentityClass}
	}
	return repo.RecordScope{}
}
