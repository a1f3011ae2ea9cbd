package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"opsight/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const userColumns = `id,username,COALESCE(display_name,''),role,group_id,identity_class,is_active,created_at,updated_at`

func scanUser(scan func(dest ...any) error) (domain.User, error) {
	var u domain.User
	var groupID, identityClass sql.NullString
	var active int
	err := scan(&u.ID, &u.Username, &u.DisplayName, &u.Role, &groupID, &identityClass, &active, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	if err != nil {
		return u, err
	}
	if groupID.Valid {
		u.GroupID = &groupID.String
	}
	if identityClass.Valid {
		u.IdentityClass = &identityClass.String
	}
	u.IsActive = active != 0
	return u, nil
}

func (r Repo) InsertUser(ctx context.Context, u domain.User) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := r.InsertUserTx(ctx, tx, u); err != nil {
		return err
	}
	return tx.Commit()
}

func (r Repo) InsertUserTx(ctx context.Context, tx *sql.Tx, u domain.User) error {
	active := 0
	if u.IsActive {
		active = 1
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO users(id,username,display_name,role,group_id,identity_class,is_active,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		u.ID, u.Username, nullable(u.DisplayName), u.Role, nullableStringPtr(u.GroupID), nullableStringPtr(u.IdentityClass), active, u.CreatedAt, u.UpdatedAt)
	return err
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id)
	return scanUser(row.Scan)
}

func (r Repo) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username=?`, username)
	return scanUser(row.Scan)
}

type UserFilters struct {
	GroupID         string
	Role            string
	ActiveOnly      bool
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListUsers(ctx context.Context, f UserFilters) ([]domain.User, error) {
	var clauses []string
	var args []any
	if f.GroupID != "" {
		clauses = append(clauses, "group_id=?")
		args = append(args, f.GroupID)
	}
	if f.Role != "" {
		clauses = append(clauses, "role=?")
		args = append(args, f.Role)
	}
	if f.ActiveOnly {
		clauses = append(clauses, "is_active=1")
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + userColumns + ` FROM users ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		u, err := scanUser(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

func (r Repo) UpdateUser(ctx context.Context, u domain.User) error {
	active := 0
	if u.IsActive {
		active = 1
	}
	res, err := r.DB.ExecContext(ctx, `UPDATE users SET display_name=?, role=?, group_id=?, identity_class=?, is_active=?, updated_at=? WHERE id=?`,
		nullable(u.DisplayName), u.Role, nullableStringPtr(u.GroupID), nullableStringPtr(u.IdentityClass), active, u.UpdatedAt, u.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountActiveUsers counts active users, optionally narrowed to a group or an
// identity class. Used to size the audience of checkbox tasks.
func (r Repo) CountActiveUsers(ctx context.Context, groupID, identityClass string) (int, error) {
	query := `SELECT COUNT(*) FROM users WHERE is_active=1`
	var args []any
	if groupID != "" {
		query += ` AND group_id=?`
		args = append(args, groupID)
	}
	if identityClass != "" {
		query += ` AND identity_class=?`
		args = append(args, identityClass)
	}
	var n int
	err := r.DB.QueryRowContext(ctx, query, args...).Scan(&n)
	return n, err
}

func (r Repo) CountUsersByRole(ctx context.Context) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT role, count(*) FROM users GROUP BY role`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var role string
		var count int
		if err := rows.Scan(&role, &count); err != nil {
			return nil, err
		}
		res[role] = count
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func nullableIntPtr(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableFloatPtr(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
