package repo

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"strings"

	"opsight/internal/domain"
)

// HashToken returns a stable SHA-256 hex digest for a session token or API
// key. Raw tokens are never stored.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(token)))
	return hex.EncodeToString(sum[:])
}

func (r Repo) InsertSession(ctx context.Context, s domain.Session) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO sessions(id,user_id,token_hash,created_at,expires_at) VALUES (?,?,?,?,?)`,
		s.ID, s.UserID, s.TokenHash, s.CreatedAt, s.ExpiresAt)
	return err
}

func (r Repo) GetSessionByHash(ctx context.Context, hash string) (domain.Session, error) {
	var s domain.Session
	err := r.DB.QueryRowContext(ctx, `SELECT id,user_id,token_hash,created_at,expires_at FROM sessions WHERE token_hash=? LIMIT 1`, hash).
		Scan(&s.ID, &s.UserID, &s.TokenHash, &s.CreatedAt, &s.ExpiresAt)
	if err == sql.ErrNoRows {
		return domain.Session{}, ErrNotFound
	}
	return s, err
}

func (r Repo) DeleteSession(ctx context.Context, id string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM sessions WHERE id=?`, id)
	return err
}

func (r Repo) DeleteSessionsForUser(ctx context.Context, userID string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM sessions WHERE user_id=?`, userID)
	return err
}

// PruneSessions removes sessions that expired before the given instant.
func (r Repo) PruneSessions(ctx context.Context, before string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < ?`, before)
	return err
}
