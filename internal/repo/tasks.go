package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"opsight/internal/domain"
)

const taskColumns = `id,title,description,task_kind,assignment_kind,assigned_user_id,target_group_id,target_identity,status,priority,target_value,current_value,chain_target_count,chain_current_count,due_date,start_time,end_time,tags_json,created_by,created_at,updated_at`

func scanTask(scan func(dest ...any) error) (domain.Task, error) {
	var t domain.Task
	var description, assignedUser, targetGroup, targetIdentity, dueDate, startTime, endTime, tagsJSON sql.NullString
	var targetValue sql.NullFloat64
	var chainTarget sql.NullInt64
	err := scan(&t.ID, &t.Title, &description, &t.TaskKind, &t.AssignmentKind, &assignedUser, &targetGroup, &targetIdentity,
		&t.Status, &t.Priority, &targetValue, &t.CurrentValue, &chainTarget, &t.ChainCurrentCount,
		&dueDate, &startTime, &endTime, &tagsJSON, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if description.Valid {
		t.Description = description.String
	}
	if assignedUser.Valid {
		t.AssignedUserID = &assignedUser.String
	}
	if targetGroup.Valid {
		t.TargetGroupID = &targetGroup.String
	}
	if targetIdentity.Valid {
		t.TargetIdentity = &targetIdentity.String
	}
	if targetValue.Valid {
		t.TargetValue = &targetValue.Float64
	}
	if chainTarget.Valid {
		v := int(chainTarget.Int64)
		t.ChainTargetCount = &v
	}
	if dueDate.Valid {
		t.DueDate = &dueDate.String
	}
	if startTime.Valid {
		t.StartTime = &startTime.String
	}
	if endTime.Valid {
		t.EndTime = &endTime.String
	}
	if tagsJSON.Valid && tagsJSON.String != "" {
		_ = json.Unmarshal([]byte(tagsJSON.String), &t.Tags)
	}
	return t, nil
}

func marshalTags(tags []string) any {
	if len(tags) == 0 {
		return nil
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return nil
	}
	return string(b)
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO tasks(`+taskColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.Title, nullable(t.Description), t.TaskKind, t.AssignmentKind,
		nullableStringPtr(t.AssignedUserID), nullableStringPtr(t.TargetGroupID), nullableStringPtr(t.TargetIdentity),
		t.Status, t.Priority, nullableFloatPtr(t.TargetValue), t.CurrentValue,
		nullableIntPtr(t.ChainTargetCount), t.ChainCurrentCount,
		nullableStringPtr(t.DueDate), nullableStringPtr(t.StartTime), nullableStringPtr(t.EndTime),
		marshalTags(t.Tags), t.CreatedBy, t.CreatedAt, t.UpdatedAt)
	return err
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id)
	return scanTask(row.Scan)
}

func (r Repo) GetTaskTx(ctx context.Context, tx *sql.Tx, id string) (domain.Task, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id)
	return scanTask(row.Scan)
}

func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET title=?, description=?, assigned_user_id=?, target_group_id=?, target_identity=?, status=?, priority=?, target_value=?, chain_target_count=?, due_date=?, start_time=?, end_time=?, tags_json=?, updated_at=? WHERE id=?`,
		t.Title, nullable(t.Description), nullableStringPtr(t.AssignedUserID), nullableStringPtr(t.TargetGroupID), nullableStringPtr(t.TargetIdentity),
		t.Status, t.Priority, nullableFloatPtr(t.TargetValue), nullableIntPtr(t.ChainTargetCount),
		nullableStringPtr(t.DueDate), nullableStringPtr(t.StartTime), nullableStringPtr(t.EndTime),
		marshalTags(t.Tags), t.UpdatedAt, t.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteTask(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AddTaskValue atomically adds delta to the cached value counter and marks
// the task done when the target is reached. The pre-update value is never
// read into the application, so concurrent ingests cannot lose updates.
func (r Repo) AddTaskValue(ctx context.Context, tx *sql.Tx, id string, delta float64, now string) error {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET
current_value = current_value + ?,
status = CASE WHEN target_value IS NOT NULL AND current_value + ? >= target_value AND status NOT IN ('done','cancelled') THEN 'done' ELSE status END,
updated_at = ?
WHERE id=?`, delta, delta, now, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AddChainCount atomically increments the chain entry counter.
func (r Repo) AddChainCount(ctx context.Context, tx *sql.Tx, id string, now string) error {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET
chain_current_count = chain_current_count + 1,
status = CASE WHEN chain_target_count IS NOT NULL AND chain_current_count + 1 >= chain_target_count AND status NOT IN ('done','cancelled') THEN 'done' ELSE status END,
updated_at = ?
WHERE id=?`, now, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) SetTaskStatus(ctx context.Context, tx *sql.Tx, id, status, now string) error {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET status=?, updated_at=? WHERE id=?`, status, now, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type TaskFilters struct {
	Status          string
	Priority        string
	TaskKind        string
	AssignedUserID  string
	CreatedBy       string
	ScopeClause     string
	ScopeArgs       []any
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Priority != "" {
		clauses = append(clauses, "priority=?")
		args = append(args, f.Priority)
	}
	if f.TaskKind != "" {
		clauses = append(clauses, "task_kind=?")
		args = append(args, f.TaskKind)
	}
	if f.AssignedUserID != "" {
		clauses = append(clauses, "assignment_kind='user' AND assigned_user_id=?")
		args = append(args, f.AssignedUserID)
	}
	if f.CreatedBy != "" {
		clauses = append(clauses, "created_by=?")
		args = append(args, f.CreatedBy)
	}
	if f.ScopeClause != "" {
		clauses = append(clauses, "("+f.ScopeClause+")")
		args = append(args, f.ScopeArgs...)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + taskColumns + ` FROM tasks ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) CountTasksByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, count(*) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		res[status] = count
	}
	return res, rows.Err()
}
