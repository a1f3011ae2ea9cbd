package repo

import (
	"context"
	"database/sql"
	"strings"

	"opsight/internal/domain"
)

// RecordScope restricts event-table queries to the viewer's reachable users.
// Impossible yields an empty result set (a group-scoped admin with no group).
type RecordScope struct {
	UserID        string
	GroupID       string
	IdentityClass string
	Impossible    bool
}

func (s RecordScope) clauses(alias string) (string, []any, bool) {
	var clauses []string
	var args []any
	join := false
	if s.Impossible {
		clauses = append(clauses, "1=0")
	}
	if s.UserID != "" {
		clauses = append(clauses, alias+".user_id=?")
		args = append(args, s.UserID)
	}
	if s.GroupID != "" {
		join = true
		clauses = append(clauses, "u.group_id=?")
		args = append(args, s.GroupID)
	}
	if s.IdentityClass != "" {
		join = true
		clauses = append(clauses, "u.identity_class=?")
		args = append(args, s.IdentityClass)
	}
	return strings.Join(clauses, " AND "), args, join
}

func scopedQuery(base, alias string, scope RecordScope, tail string) (string, []any) {
	clause, args, join := scope.clauses(alias)
	query := base
	if join {
		query += " JOIN users u ON u.id=" + alias + ".user_id"
	}
	query += " WHERE " + alias + ".task_id=?"
	if clause != "" {
		query += " AND " + clause
	}
	if tail != "" {
		query += " " + tail
	}
	return query, args
}

func (r Repo) InsertAmountQuantityRecord(ctx context.Context, tx *sql.Tx, rec domain.AmountQuantityRecord) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO amount_quantity_records(id,task_id,user_id,value,note,created_at) VALUES (?,?,?,?,?,?)`,
		rec.ID, rec.TaskID, rec.UserID, rec.Value, nullableStringPtr(rec.Note), rec.CreatedAt)
	return err
}

func (r Repo) ListAmountQuantityRecords(ctx context.Context, taskID string, scope RecordScope) ([]domain.AmountQuantityRecord, error) {
	query, scopeArgs := scopedQuery(`SELECT r.id,r.task_id,r.user_id,r.value,r.note,r.created_at FROM amount_quantity_records r`, "r", scope, "ORDER BY r.created_at DESC, r.id DESC")
	args := append([]any{taskID}, scopeArgs...)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.AmountQuantityRecord
	for rows.Next() {
		var rec domain.AmountQuantityRecord
		var note sql.NullString
		if err := rows.Scan(&rec.ID, &rec.TaskID, &rec.UserID, &rec.Value, &note, &rec.CreatedAt); err != nil {
			return nil, err
		}
		if note.Valid {
			rec.Note = &note.String
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

func (r Repo) SumRecordValues(ctx context.Context, taskID string) (float64, error) {
	var sum float64
	err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(SUM(value),0) FROM amount_quantity_records WHERE task_id=?`, taskID).Scan(&sum)
	return sum, err
}

func (r Repo) SumRecordValuesForUser(ctx context.Context, taskID, userID string) (float64, error) {
	var sum float64
	err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(SUM(value),0) FROM amount_quantity_records WHERE task_id=? AND user_id=?`, taskID, userID).Scan(&sum)
	return sum, err
}

func (r Repo) CountRecordParticipants(ctx context.Context, taskID string, scope RecordScope) (int, error) {
	query, scopeArgs := scopedQuery(`SELECT COUNT(DISTINCT r.user_id) FROM amount_quantity_records r`, "r", scope, "")
	args := append([]any{taskID}, scopeArgs...)
	var n int
	err := r.DB.QueryRowContext(ctx, query, args...).Scan(&n)
	return n, err
}

func (r Repo) InsertChainEntry(ctx context.Context, tx *sql.Tx, e domain.ChainEntry) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO chain_entries(id,task_id,user_id,external_id,note,intention,created_at) VALUES (?,?,?,?,?,?,?)`,
		e.ID, e.TaskID, e.UserID, e.ExternalID, nullableStringPtr(e.Note), nullableStringPtr(e.Intention), e.CreatedAt)
	return err
}

// ListChainEntries returns entries in created_at order; an entry's 1-based
// position in this order is its display sequence number.
func (r Repo) ListChainEntries(ctx context.Context, taskID string, scope RecordScope) ([]domain.ChainEntry, error) {
	query, scopeArgs := scopedQuery(`SELECT c.id,c.task_id,c.user_id,c.external_id,c.note,c.intention,c.created_at FROM chain_entries c`, "c", scope, "ORDER BY c.created_at ASC, c.id ASC")
	args := append([]any{taskID}, scopeArgs...)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ChainEntry
	for rows.Next() {
		var e domain.ChainEntry
		var note, intention sql.NullString
		if err := rows.Scan(&e.ID, &e.TaskID, &e.UserID, &e.ExternalID, &note, &intention, &e.CreatedAt); err != nil {
			return nil, err
		}
		if note.Valid {
			e.Note = &note.String
		}
		if intention.Valid {
			e.Intention = &intention.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (r Repo) CountChainEntries(ctx context.Context, taskID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM chain_entries WHERE task_id=?`, taskID).Scan(&n)
	return n, err
}

func (r Repo) CountChainEntriesForUser(ctx context.Context, taskID, userID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM chain_entries WHERE task_id=? AND user_id=?`, taskID, userID).Scan(&n)
	return n, err
}

func (r Repo) CountChainParticipants(ctx context.Context, taskID string, scope RecordScope) (int, error) {
	query, scopeArgs := scopedQuery(`SELECT COUNT(DISTINCT c.user_id) FROM chain_entries c`, "c", scope, "")
	args := append([]any{taskID}, scopeArgs...)
	var n int
	err := r.DB.QueryRowContext(ctx, query, args...).Scan(&n)
	return n, err
}

func (r Repo) InsertCheckboxCompletion(ctx context.Context, tx *sql.Tx, c domain.CheckboxCompletion) error {
	completed := 0
	if c.IsCompleted {
		completed = 1
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO checkbox_completions(id,task_id,user_id,is_completed,completion_value,completion_data_json,completed_at) VALUES (?,?,?,?,?,?,?)`,
		c.ID, c.TaskID, c.UserID, completed, nullableFloatPtr(c.CompletionValue), nullableStringPtr(c.CompletionDataJSON), c.CompletedAt)
	return err
}

func (r Repo) ListCheckboxCompletions(ctx context.Context, taskID string, scope RecordScope) ([]domain.CheckboxCompletion, error) {
	query, scopeArgs := scopedQuery(`SELECT b.id,b.task_id,b.user_id,b.is_completed,b.completion_value,b.completion_data_json,b.completed_at FROM checkbox_completions b`, "b", scope, "AND b.is_completed=1 ORDER BY b.completed_at DESC, b.id DESC")
	args := append([]any{taskID}, scopeArgs...)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.CheckboxCompletion
	for rows.Next() {
		var c domain.CheckboxCompletion
		var completed int
		var value sql.NullFloat64
		var data sql.NullString
		if err := rows.Scan(&c.ID, &c.TaskID, &c.UserID, &completed, &value, &data, &c.CompletedAt); err != nil {
			return nil, err
		}
		c.IsCompleted = completed != 0
		if value.Valid {
			c.CompletionValue = &value.Float64
		}
		if data.Valid {
			c.CompletionDataJSON = &data.String
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r Repo) HasCompleted(ctx context.Context, taskID, userID string) (bool, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT 1 FROM checkbox_completions WHERE task_id=? AND user_id=? AND is_completed=1 LIMIT 1`, taskID, userID).Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func (r Repo) CountCompletedUsers(ctx context.Context, taskID string, scope RecordScope) (int, error) {
	query, scopeArgs := scopedQuery(`SELECT COUNT(DISTINCT b.user_id) FROM checkbox_completions b`, "b", scope, "AND b.is_completed=1")
	args := append([]any{taskID}, scopeArgs...)
	var n int
	err := r.DB.QueryRowContext(ctx, query, args...).Scan(&n)
	return n, err
}
