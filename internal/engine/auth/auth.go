package auth

import (
	"context"
	"database/sql"
	"fmt"

	"opsight/internal/domain"
	"opsight/internal/repo"
)

// ForbiddenError indicates the principal may not perform the action.
type ForbiddenError struct {
	Action string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("not permitted: %s", e.Action)
}

// Service provides SQL-backed authorization checks that need user state
// beyond what the principal carries.
type Service struct {
	DB *sql.DB
}

// CanFilterByUser enforces the record-filter contract: super admins may
// filter by any user, admins only by users in their own group, regular users
// only by themselves. Returns the target user's existence error unchanged so
// callers can surface NotFound.
func (s Service) CanFilterByUser(ctx context.Context, p domain.Principal, targetID string) error {
	if targetID == p.UserID {
		return nil
	}
	if p.IsSuperAdmin() {
		return s.ensureUserExists(ctx, targetID)
	}
	if !p.IsAdmin() {
		return ForbiddenError{Action: "filter records by another user"}
	}
	if p.GroupID == nil {
		return ForbiddenError{Action: "filter records outside own group"}
	}
	var groupID sql.NullString
	err := s.DB.QueryRowContext(ctx, `SELECT group_id FROM users WHERE id=?`, targetID).Scan(&groupID)
	if err == sql.ErrNoRows {
		return repo.ErrNotFound
	}
	if err != nil {
		return err
	}
	if !groupID.Valid || groupID.String != *p.GroupID {
		return ForbiddenError{Action: "filter records outside own group"}
	}
	return nil
}

func (s Service) ensureUserExists(ctx context.Context, id string) error {
	var n int
	err := s.DB.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id=? LIMIT 1`, id).Scan(&n)
	if err == sql.ErrNoRows {
		return repo.ErrNotFound
	}
	return err
}
