package repo

import (
	"context"
	"database/sql"
	"strings"

	"opsight/internal/domain"
)

const reportColumns = `id,user_id,work_date,title,content,work_hours,mood_score,efficiency_score,created_at,updated_at`

func scanReport(scan func(dest ...any) error) (domain.DailyReport, error) {
	var rep domain.DailyReport
	var content sql.NullString
	var hours sql.NullFloat64
	var mood, efficiency sql.NullInt64
	err := scan(&rep.ID, &rep.UserID, &rep.WorkDate, &rep.Title, &content, &hours, &mood, &efficiency, &rep.CreatedAt, &rep.UpdatedAt)
	if err == sql.ErrNoRows {
		return rep, ErrNotFound
	}
	if err != nil {
		return rep, err
	}
	if content.Valid {
		rep.Content = content.String
	}
	if hours.Valid {
		rep.WorkHours = &hours.Float64
	}
	if mood.Valid {
		v := int(mood.Int64)
		rep.MoodScore = &v
	}
	if efficiency.Valid {
		v := int(efficiency.Int64)
		rep.EfficiencyScore = &v
	}
	return rep, nil
}

// UpsertReport inserts or replaces the author's report for the work date.
// One report per user per date.
func (r Repo) UpsertReport(ctx context.Context, tx *sql.Tx, rep domain.DailyReport) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO daily_reports(`+reportColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(user_id, work_date) DO UPDATE SET title=excluded.title, content=excluded.content, work_hours=excluded.work_hours, mood_score=excluded.mood_score, efficiency_score=excluded.efficiency_score, updated_at=excluded.updated_at`,
		rep.ID, rep.UserID, rep.WorkDate, rep.Title, nullable(rep.Content),
		nullableFloatPtr(rep.WorkHours), nullableIntPtr(rep.MoodScore), nullableIntPtr(rep.EfficiencyScore),
		rep.CreatedAt, rep.UpdatedAt)
	return err
}

func (r Repo) GetReport(ctx context.Context, id string) (domain.DailyReport, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM daily_reports WHERE id=?`, id)
	return scanReport(row.Scan)
}

func (r Repo) GetReportByDate(ctx context.Context, userID, workDate string) (domain.DailyReport, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM daily_reports WHERE user_id=? AND work_date=?`, userID, workDate)
	return scanReport(row.Scan)
}

type ReportFilters struct {
	UserID          string
	GroupID         string
	From            string
	To              string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListReports(ctx context.Context, f ReportFilters) ([]domain.DailyReport, error) {
	var clauses []string
	var args []any
	join := ""
	if f.GroupID != "" {
		join = ` JOIN users u ON u.id=d.user_id`
		clauses = append(clauses, "u.group_id=?")
		args = append(args, f.GroupID)
	}
	if f.UserID != "" {
		clauses = append(clauses, "d.user_id=?")
		args = append(args, f.UserID)
	}
	if f.From != "" {
		clauses = append(clauses, "d.work_date >= ?")
		args = append(args, f.From)
	}
	if f.To != "" {
		clauses = append(clauses, "d.work_date <= ?")
		args = append(args, f.To)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(d.created_at < ? OR (d.created_at = ? AND d.id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}
	cols := strings.ReplaceAll(reportColumns, ",", ",d.")
	query := `SELECT d.` + cols + ` FROM daily_reports d` + join + where + ` ORDER BY d.work_date DESC, d.id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.DailyReport
	for rows.Next() {
		rep, err := scanReport(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, rep)
	}
	return res, rows.Err()
}
