package repo

import (
	"context"
	"database/sql"

	"opsight/internal/domain"
)

func (r Repo) InsertGroup(ctx context.Context, g domain.UserGroup) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO user_groups(id,name,description,created_at) VALUES (?,?,?,?)`,
		g.ID, g.Name, nullable(g.Description), g.CreatedAt)
	return err
}

func (r Repo) GetGroup(ctx context.Context, id string) (domain.UserGroup, error) {
	var g domain.UserGroup
	var desc sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,description,created_at FROM user_groups WHERE id=?`, id).
		Scan(&g.ID, &g.Name, &desc, &g.CreatedAt)
	if err == sql.ErrNoRows {
		return g, ErrNotFound
	}
	if err != nil {
		return g, err
	}
	if desc.Valid {
		g.Description = desc.String
	}
	return g, nil
}

func (r Repo) ListGroups(ctx context.Context) ([]domain.UserGroup, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,description,created_at FROM user_groups ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.UserGroup
	for rows.Next() {
		var g domain.UserGroup
		var desc sql.NullString
		if err := rows.Scan(&g.ID, &g.Name, &desc, &g.CreatedAt); err != nil {
			return nil, err
		}
		if desc.Valid {
			g.Description = desc.String
		}
		res = append(res, g)
	}
	return res, rows.Err()
}

func (r Repo) DeleteGroup(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM user_groups WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
