package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"opsight/internal/domain"
	"opsight/internal/events"
	"opsight/internal/repo"
)

const (
	bootstrapUsername  = "admin"
	bootstrapGroupName = "Default Team"
)

// EnsureBootstrap seeds an empty store with a default group and a super
// admin account so the first operator can log in and create everyone else.
// Subsequent runs are no-ops.
func EnsureBootstrap(ctx context.Context, r repo.Repo) (domain.User, error) {
	if u, err := r.GetUserByUsername(ctx, bootstrapUsername); err == nil {
		return u, nil
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, err
	}
	counts, err := r.CountUsersByRole(ctx)
	if err != nil {
		return domain.User{}, err
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	if total > 0 {
		return domain.User{}, fmt.Errorf("store already has users but no %q account", bootstrapUsername)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()

	groupID := uuid.NewString()
	if _, err := tx.ExecContext(ctx, `INSERT INTO user_groups(id,name,description,created_at) VALUES (?,?,?,?)`,
		groupID, bootstrapGroupName, "seeded on first run", now); err != nil {
		return domain.User{}, fmt.Errorf("seed group: %w", err)
	}
	u := domain.User{
		ID:          uuid.NewString(),
		Username:    bootstrapUsername,
		DisplayName: "Administrator",
		Role:        domain.RoleSuperAdmin,
		GroupID:     &groupID,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := r.InsertUserTx(ctx, tx, u); err != nil {
		return domain.User{}, fmt.Errorf("seed user: %w", err)
	}
	w := events.Writer{DB: r.DB}
	if err := w.Append(ctx, tx, "user.created", "user", u.ID, u.ID, events.EventPayload{"username": u.Username, "seeded": true}); err != nil {
		return domain.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, err
	}
	return u, nil
}
