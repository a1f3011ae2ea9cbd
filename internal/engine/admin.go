package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"opsight/internal/domain"
	"opsight/internal/engine/auth"
	"opsight/internal/events"
	"opsight/internal/repo"
)

// UserDraft carries input for user creation.
type UserDraft struct {
	Username      string
	DisplayName   string
	Role          string
	GroupID       string
	IdentityClass string
}

func (e Engine) CreateUser(ctx context.Context, p domain.Principal, draft UserDraft) (domain.User, error) {
	if !p.IsAdmin() {
		return domain.User{}, auth.ForbiddenError{Action: "create users"}
	}
	if draft.Username == "" {
		return domain.User{}, ValidationError{Field: "username", Reason: "required"}
	}
	role := domain.RoleUser
	if draft.Role != "" {
		parsed, err := domain.ParseRole(draft.Role)
		if err != nil {
			return domain.User{}, ValidationError{Field: "role", Reason: err.Error()}
		}
		role = parsed
	}
	if role != domain.RoleUser && !p.IsSuperAdmin() {
		return domain.User{}, auth.ForbiddenError{Action: "grant elevated roles"}
	}
	if _, err := e.Repo.GetUserByUsername(ctx, draft.Username); err == nil {
		return domain.User{}, ValidationError{Field: "username", Reason: "already taken"}
	} else if err != repo.ErrNotFound {
		return domain.User{}, err
	}
	now := e.nowString()
	u := domain.User{
		ID:          uuid.NewString(),
		Username:    draft.Username,
		DisplayName: draft.DisplayName,
		Role:        role,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if draft.GroupID != "" {
		if _, err := e.Repo.GetGroup(ctx, draft.GroupID); err != nil {
			return domain.User{}, err
		}
		if !p.IsSuperAdmin() && (p.GroupID == nil || *p.GroupID != draft.GroupID) {
			return domain.User{}, auth.ForbiddenError{Action: "place users outside own group"}
		}
		u.GroupID = &draft.GroupID
	}
	if draft.IdentityClass != "" {
		class := domain.NormalizeIdentityClass(draft.IdentityClass)
		if e.Config != nil && !e.Config.KnownIdentityClass(class) {
			return domain.User{}, ValidationError{Field: "identity_class", Reason: fmt.Sprintf("unknown identity class %s", class)}
		}
		u.IdentityClass = &class
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertUserTx(ctx, tx, u); err != nil {
		return domain.User{}, err
	}
	err = e.Events.Append(ctx, tx, "user.created", "user", u.ID, p.UserID, events.EventPayload{
		"username": u.Username,
		"role":     u.Role,
	})
	if err != nil {
		return domain.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// UserUpdate carries partial user edits. Empty-string pointer values clear
// the field.
type UserUpdate struct {
	ID            string
	DisplayName   *string
	Role          *string
	GroupID       *string
	IdentityClass *string
	IsActive      *bool
}

func (e Engine) UpdateUser(ctx context.Context, p domain.Principal, upd UserUpdate) (domain.User, error) {
	u, err := e.Repo.GetUser(ctx, upd.ID)
	if err != nil {
		return domain.User{}, err
	}
	self := u.ID == p.UserID
	if !self && !p.IsAdmin() {
		return domain.User{}, auth.ForbiddenError{Action: "edit other users"}
	}
	if !self && p.IsAdmin() && !p.IsSuperAdmin() {
		if p.GroupID == nil || u.GroupID == nil || *u.GroupID != *p.GroupID {
			return domain.User{}, auth.ForbiddenError{Action: "edit users outside own group"}
		}
	}
	if upd.Role != nil {
		if !p.IsSuperAdmin() {
			return domain.User{}, auth.ForbiddenError{Action: "change roles"}
		}
		role, err := domain.ParseRole(*upd.Role)
		if err != nil {
			return domain.User{}, ValidationError{Field: "role", Reason: err.Error()}
		}
		u.Role = role
	}
	if upd.GroupID != nil {
		if !p.IsAdmin() {
			return domain.User{}, auth.ForbiddenError{Action: "change group membership"}
		}
		if *upd.GroupID == "" {
			u.GroupID = nil
		} else {
			if _, err := e.Repo.GetGroup(ctx, *upd.GroupID); err != nil {
				return domain.User{}, err
			}
			if !p.IsSuperAdmin() && (p.GroupID == nil || *p.GroupID != *upd.GroupID) {
				return domain.User{}, auth.ForbiddenError{Action: "move users outside own group"}
			}
			u.GroupID = upd.GroupID
		}
	}
	if upd.IdentityClass != nil {
		if !p.IsAdmin() {
			return domain.User{}, auth.ForbiddenError{Action: "change identity class"}
		}
		if *upd.IdentityClass == "" {
			u.IdentityClass = nil
		} else {
			class := domain.NormalizeIdentityClass(*upd.IdentityClass)
			if e.Config != nil && !e.Config.KnownIdentityClass(class) {
				return domain.User{}, ValidationError{Field: "identity_class", Reason: fmt.Sprintf("unknown identity class %s", class)}
			}
			u.IdentityClass = &class
		}
	}
	if upd.DisplayName != nil {
		u.DisplayName = *upd.DisplayName
	}
	if upd.IsActive != nil {
		if !p.IsAdmin() {
			return domain.User{}, auth.ForbiddenError{Action: "change active state"}
		}
		u.IsActive = *upd.IsActive
	}
	u.UpdatedAt = e.nowString()
	if err := e.Repo.UpdateUser(ctx, u); err != nil {
		return domain.User{}, err
	}
	// Deactivated users lose their open sessions immediately.
	if upd.IsActive != nil && !*upd.IsActive {
		if err := e.Repo.DeleteSessionsForUser(ctx, u.ID); err != nil {
			return domain.User{}, err
		}
	}
	return u, nil
}

// GetUserProfile returns a user record if the caller may see it: self,
// group-mates for admins, anyone for super admins.
func (e Engine) GetUserProfile(ctx context.Context, p domain.Principal, id string) (domain.User, error) {
	if id != p.UserID {
		if err := e.Auth.CanFilterByUser(ctx, p, id); err != nil {
			return domain.User{}, err
		}
	}
	return e.Repo.GetUser(ctx, id)
}

// UserListOptions filter the user listing.
type UserListOptions struct {
	GroupID         string
	Role            string
	ActiveOnly      bool
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

// ListUsers is an admin operation. Non-super admins with a group are pinned
// to it; group-less admins see all users.
func (e Engine) ListUsers(ctx context.Context, p domain.Principal, opts UserListOptions) ([]domain.User, error) {
	if !p.IsAdmin() {
		return nil, auth.ForbiddenError{Action: "list users"}
	}
	f := repo.UserFilters{
		GroupID:         opts.GroupID,
		Role:            opts.Role,
		ActiveOnly:      opts.ActiveOnly,
		Limit:           opts.Limit,
		CursorCreatedAt: opts.CursorCreatedAt,
		CursorID:        opts.CursorID,
	}
	if !p.IsSuperAdmin() && p.GroupID != nil {
		if f.GroupID != "" && f.GroupID != *p.GroupID {
			return nil, auth.ForbiddenError{Action: "list users outside own group"}
		}
		f.GroupID = *p.GroupID
	}
	return e.Repo.ListUsers(ctx, f)
}

func (e Engine) CreateGroup(ctx context.Context, p domain.Principal, name, description string) (domain.UserGroup, error) {
	if !p.IsAdmin() {
		return domain.UserGroup{}, auth.ForbiddenError{Action: "create groups"}
	}
	if name == "" {
		return domain.UserGroup{}, ValidationError{Field: "name", Reason: "required"}
	}
	g := domain.UserGroup{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		CreatedAt:   e.nowString(),
	}
	if err := e.Repo.InsertGroup(ctx, g); err != nil {
		return domain.UserGroup{}, err
	}
	return g, nil
}

func (e Engine) ListGroups(ctx context.Context) ([]domain.UserGroup, error) {
	return e.Repo.ListGroups(ctx)
}

func (e Engine) DeleteGroup(ctx context.Context, p domain.Principal, id string) error {
	if !p.IsSuperAdmin() {
		return auth.ForbiddenError{Action: "delete groups"}
	}
	return e.Repo.DeleteGroup(ctx, id)
}

// CreateSession exchanges an authenticated identity for an opaque session
// token. Only the hash is stored; the raw token is returned once.
func (e Engine) CreateSession(ctx context.Context, userID string) (string, domain.Session, error) {
	if _, err := e.Repo.GetUser(ctx, userID); err != nil {
		return "", domain.Session{}, err
	}
	token := uuid.NewString() + uuid.NewString()
	ttlHours := 72
	if e.Config != nil && e.Config.Auth.SessionTTLHours > 0 {
		ttlHours = e.Config.Auth.SessionTTLHours
	}
	now := e.now().UTC()
	s := domain.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		TokenHash: repo.HashToken(token),
		CreatedAt: now.Format(time.RFC3339),
		ExpiresAt: now.Add(time.Duration(ttlHours) * time.Hour).Format(time.RFC3339),
	}
	if err := e.Repo.InsertSession(ctx, s); err != nil {
		return "", domain.Session{}, err
	}
	return token, s, nil
}

// LoginByUsername resolves an active user by name and opens a session for
// them. Unknown and deactivated usernames both surface as ErrNotFound so the
// caller cannot tell them apart.
func (e Engine) LoginByUsername(ctx context.Context, username string) (domain.User, string, domain.Session, error) {
	u, err := e.Repo.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return domain.User{}, "", domain.Session{}, err
	}
	if !u.IsActive {
		return domain.User{}, "", domain.Session{}, repo.ErrNotFound
	}
	token, s, err := e.CreateSession(ctx, u.ID)
	if err != nil {
		return domain.User{}, "", domain.Session{}, err
	}
	return u, token, s, nil
}

// RevokeSession removes the session matching the raw token. Unknown tokens
// are ignored.
func (e Engine) RevokeSession(ctx context.Context, token string) error {
	s, err := e.Repo.GetSessionByHash(ctx, repo.HashToken(token))
	if err == repo.ErrNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	return e.Repo.DeleteSession(ctx, s.ID)
}

// CreateAPIKey mints a key for a user. Users mint their own keys; super
// admins may mint for anyone. The raw key is returned once.
func (e Engine) CreateAPIKey(ctx context.Context, p domain.Principal, forUserID, name string) (string, domain.APIKey, error) {
	if forUserID == "" {
		forUserID = p.UserID
	}
	if forUserID != p.UserID && !p.IsSuperAdmin() {
		return "", domain.APIKey{}, auth.ForbiddenError{Action: "mint keys for other users"}
	}
	if _, err := e.Repo.GetUser(ctx, forUserID); err != nil {
		return "", domain.APIKey{}, err
	}
	raw := "osk_" + uuid.NewString()
	key := domain.APIKey{
		ID:        uuid.NewString(),
		UserID:    forUserID,
		Name:      name,
		KeyHash:   repo.HashToken(raw),
		CreatedAt: e.nowString(),
	}
	if err := e.Repo.InsertAPIKey(ctx, key); err != nil {
		return "", domain.APIKey{}, err
	}
	return raw, key, nil
}

func (e Engine) ListAPIKeys(ctx context.Context, p domain.Principal, forUserID string) ([]domain.APIKey, error) {
	if forUserID == "" {
		forUserID = p.UserID
	}
	if forUserID != p.UserID && !p.IsSuperAdmin() {
		return nil, auth.ForbiddenError{Action: "list keys of other users"}
	}
	return e.Repo.ListAPIKeys(ctx, forUserID)
}

func (e Engine) DeleteAPIKey(ctx context.Context, p domain.Principal, id string) error {
	keys, err := e.Repo.ListAPIKeys(ctx, p.UserID)
	if err != nil {
		return err
	}
	owned := false
	for _, k := range keys {
		if k.ID == id {
			owned = true
			break
		}
	}
	if !owned && !p.IsSuperAdmin() {
		return auth.ForbiddenError{Action: "delete keys of other users"}
	}
	return e.Repo.DeleteAPIKey(ctx, id)
}

// EventListOptions filter the audit trail listing.
type EventListOptions struct {
	Type       string
	EntityKind string
	EntityID   string
	Limit      int
	Cursor     int64
}

// ListEvents exposes the audit trail to admins.
func (e Engine) ListEvents(ctx context.Context, p domain.Principal, opts EventListOptions) ([]domain.Event, error) {
	if !p.IsAdmin() {
		return nil, auth.ForbiddenError{Action: "read the audit trail"}
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	return e.Repo.LatestEvents(ctx, limit, opts.Cursor, opts.Type, opts.EntityKind, opts.EntityID)
}

// Stats summarizes the store for admins.
type Stats struct {
	TasksByStatus map[string]int `json:"tasks_by_status"`
	UsersByRole   map[string]int `json:"users_by_role"`
}

func (e Engine) GetStats(ctx context.Context, p domain.Principal) (Stats, error) {
	if !p.IsAdmin() {
		return Stats{}, auth.ForbiddenError{Action: "read stats"}
	}
	tasks, err := e.Repo.CountTasksByStatus(ctx)
	if err != nil {
		return Stats{}, err
	}
	users, err := e.Repo.CountUsersByRole(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{TasksByStatus: tasks, UsersByRole: users}, nil
}
