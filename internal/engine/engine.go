package engine

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"opsight/internal/config"
	"opsight/internal/domain"
	"opsight/internal/engine/auth"
	"opsight/internal/events"
	"opsight/internal/repo"
)

// Engine owns the task visibility and aggregation rules. Every mutation that
// touches a cached counter runs the event insert and the counter update in
// one transaction.
type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Auth   auth.Service
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Auth:   auth.Service{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) nowString() string {
	return e.now().UTC().Format(time.RFC3339)
}

// InvalidTaskKindError signals an operation aimed at a task of the wrong kind.
type InvalidTaskKindError struct {
	Kind string
	Op   string
}

func (e InvalidTaskKindError) Error() string {
	return fmt.Sprintf("task kind %s does not support %s", e.Kind, e.Op)
}

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// TaskDraft carries caller input for task creation. Kind and assignment
// strings are normalized here, once, at the boundary.
type TaskDraft struct {
	Title            string
	Description      string
	TaskKind         string
	AssignmentKind   string
	AssignedUserID   string
	TargetGroupID    string
	TargetIdentity   string
	Priority         string
	TargetValue      *float64
	ChainTargetCount *int
	DueDate          string
	StartTime        string
	EndTime          string
	Tags             []string
}

func (e Engine) CreateTask(ctx context.Context, p domain.Principal, draft TaskDraft) (domain.Task, error) {
	if !p.IsAdmin() {
		return domain.Task{}, auth.ForbiddenError{Action: "create tasks"}
	}
	if draft.Title == "" {
		return domain.Task{}, ValidationError{Field: "title", Reason: "required"}
	}
	kind, err := domain.ParseTaskKind(draft.TaskKind)
	if err != nil {
		return domain.Task{}, ValidationError{Field: "task_kind", Reason: err.Error()}
	}
	assignment, err := domain.ParseAssignmentKind(draft.AssignmentKind)
	if err != nil {
		return domain.Task{}, ValidationError{Field: "assignment_kind", Reason: err.Error()}
	}
	priority := domain.PriorityMedium
	if draft.Priority != "" {
		priority, err = domain.ParsePriority(draft.Priority)
		if err != nil {
			return domain.Task{}, ValidationError{Field: "priority", Reason: err.Error()}
		}
	}
	now := e.nowString()
	t := domain.Task{
		ID:             uuid.NewString(),
		Title:          draft.Title,
		Description:    draft.Description,
		TaskKind:       kind,
		AssignmentKind: assignment,
		Status:         domain.StatusPending,
		Priority:       priority,
		Tags:           draft.Tags,
		CreatedBy:      p.UserID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if draft.DueDate != "" {
		t.DueDate = &draft.DueDate
	}
	if draft.StartTime != "" {
		t.StartTime = &draft.StartTime
	}
	if draft.EndTime != "" {
		t.EndTime = &draft.EndTime
	}
	if err := e.applyAssignmentTarget(ctx, &t, draft); err != nil {
		return domain.Task{}, err
	}
	if err := applyKindTargets(&t, draft); err != nil {
		return domain.Task{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	err = e.Events.Append(ctx, tx, "task.created", "task", t.ID, p.UserID, events.EventPayload{
		"task_kind":       t.TaskKind,
		"assignment_kind": t.AssignmentKind,
		"title":           t.Title,
	})
	if err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// applyAssignmentTarget enforces that exactly the target matching the
// assignment kind is set, and that the target exists.
func (e Engine) applyAssignmentTarget(ctx context.Context, t *domain.Task, draft TaskDraft) error {
	switch t.AssignmentKind {
	case domain.AssignUser:
		if draft.AssignedUserID == "" {
			return ValidationError{Field: "assigned_user_id", Reason: "required for user assignment"}
		}
		if _, err := e.Repo.GetUser(ctx, draft.AssignedUserID); err != nil {
			return err
		}
		t.AssignedUserID = &draft.AssignedUserID
	case domain.AssignGroup:
		if draft.TargetGroupID == "" {
			return ValidationError{Field: "target_group_id", Reason: "required for group assignment"}
		}
		if _, err := e.Repo.GetGroup(ctx, draft.TargetGroupID); err != nil {
			return err
		}
		t.TargetGroupID = &draft.TargetGroupID
	case domain.AssignIdentity:
		if draft.TargetIdentity == "" {
			return ValidationError{Field: "target_identity", Reason: "required for identity assignment"}
		}
		class := domain.NormalizeIdentityClass(draft.TargetIdentity)
		if e.Config != nil && !e.Config.KnownIdentityClass(class) {
			return ValidationError{Field: "target_identity", Reason: fmt.Sprintf("unknown identity class %s", class)}
		}
		t.TargetIdentity = &class
	case domain.AssignEveryone:
		if draft.AssignedUserID != "" || draft.TargetGroupID != "" || draft.TargetIdentity != "" {
			return ValidationError{Field: "assignment_kind", Reason: "everyone-tasks take no target"}
		}
	}
	return nil
}

func applyKindTargets(t *domain.Task, draft TaskDraft) error {
	switch t.TaskKind {
	case domain.TaskKindAmount:
		if draft.TargetValue == nil || *draft.TargetValue <= 0 {
			return ValidationError{Field: "target_value", Reason: "amount tasks need a positive target"}
		}
		t.TargetValue = draft.TargetValue
	case domain.TaskKindQuantity:
		if draft.TargetValue == nil || *draft.TargetValue <= 0 {
			return ValidationError{Field: "target_value", Reason: "quantity tasks need a positive target"}
		}
		if *draft.TargetValue != math.Trunc(*draft.TargetValue) {
			return ValidationError{Field: "target_value", Reason: "quantity targets must be whole numbers"}
		}
		t.TargetValue = draft.TargetValue
	case domain.TaskKindChain:
		if draft.ChainTargetCount != nil {
			if *draft.ChainTargetCount <= 0 {
				return ValidationError{Field: "chain_target_count", Reason: "must be positive"}
			}
			t.ChainTargetCount = draft.ChainTargetCount
		}
	case domain.TaskKindCheckbox:
		if draft.TargetValue != nil || draft.ChainTargetCount != nil {
			return ValidationError{Field: "task_kind", Reason: "checkbox tasks take no numeric target"}
		}
	}
	return nil
}

// TaskUpdate carries partial task edits. Nil fields are left untouched.
type TaskUpdate struct {
	ID          string
	Title       *string
	Description *string
	Priority    *string
	Status      *string
	DueDate     *string
	StartTime   *string
	EndTime     *string
	Tags        []string
}

func (e Engine) UpdateTask(ctx context.Context, p domain.Principal, upd TaskUpdate) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, upd.ID)
	if err != nil {
		return domain.Task{}, err
	}
	if !p.IsSuperAdmin() && t.CreatedBy != p.UserID {
		return domain.Task{}, auth.ForbiddenError{Action: "edit this task"}
	}
	if upd.Title != nil {
		if *upd.Title == "" {
			return domain.Task{}, ValidationError{Field: "title", Reason: "required"}
		}
		t.Title = *upd.Title
	}
	if upd.Description != nil {
		t.Description = *upd.Description
	}
	if upd.Priority != nil {
		priority, err := domain.ParsePriority(*upd.Priority)
		if err != nil {
			return domain.Task{}, ValidationError{Field: "priority", Reason: err.Error()}
		}
		t.Priority = priority
	}
	if upd.Status != nil {
		status, err := domain.ParseStatus(*upd.Status)
		if err != nil {
			return domain.Task{}, ValidationError{Field: "status", Reason: err.Error()}
		}
		if err := checkStatusTransition(t.Status, status); err != nil {
			return domain.Task{}, err
		}
		t.Status = status
	}
	if upd.DueDate != nil {
		t.DueDate = optional(*upd.DueDate)
	}
	if upd.StartTime != nil {
		t.StartTime = optional(*upd.StartTime)
	}
	if upd.EndTime != nil {
		t.EndTime = optional(*upd.EndTime)
	}
	if upd.Tags != nil {
		t.Tags = upd.Tags
	}
	t.UpdatedAt = e.nowString()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	err = e.Events.Append(ctx, tx, "task.updated", "task", t.ID, p.UserID, events.EventPayload{"status": t.Status})
	if err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// checkStatusTransition permits pending->processing and any open->terminal
// move. Terminal statuses are final; setting the same status is a no-op.
func checkStatusTransition(from, to string) error {
	if from == to {
		return nil
	}
	switch from {
	case domain.StatusPending:
		return nil
	case domain.StatusProcessing:
		if to == domain.StatusDone || to == domain.StatusCancelled {
			return nil
		}
	}
	return ValidationError{Field: "status", Reason: fmt.Sprintf("cannot move from %s to %s", from, to)}
}

func (e Engine) DeleteTask(ctx context.Context, p domain.Principal, id string) error {
	t, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if !p.IsSuperAdmin() && t.CreatedBy != p.UserID {
		return auth.ForbiddenError{Action: "delete this task"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteTask(ctx, tx, id); err != nil {
		return err
	}
	err = e.Events.Append(ctx, tx, "task.deleted", "task", id, p.UserID, events.EventPayload{"title": t.Title})
	if err != nil {
		return err
	}
	return tx.Commit()
}

// GetTaskView returns the caller's enriched view of one task. A task outside
// the caller's visible set is a permission failure, not a missing row.
func (e Engine) GetTaskView(ctx context.Context, p domain.Principal, id string) (TaskView, error) {
	t, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return TaskView{}, err
	}
	if !IsTaskVisible(p, t) {
		return TaskView{}, auth.ForbiddenError{Action: "view this task"}
	}
	return e.buildTaskView(ctx, p, t)
}

// TaskListOptions filter the visible-task listing.
type TaskListOptions struct {
	Status          string
	Priority        string
	TaskKind        string
	AssignedUserID  string
	CreatedBy       string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

// ListVisibleTasks pages through the caller's visible set, newest first.
func (e Engine) ListVisibleTasks(ctx context.Context, p domain.Principal, opts TaskListOptions) ([]domain.Task, error) {
	f := repo.TaskFilters{
		CreatedBy:       opts.CreatedBy,
		Limit:           opts.Limit,
		CursorCreatedAt: opts.CursorCreatedAt,
		CursorID:        opts.CursorID,
	}
	var err error
	if opts.Status != "" {
		if f.Status, err = domain.ParseStatus(opts.Status); err != nil {
			return nil, ValidationError{Field: "status", Reason: err.Error()}
		}
	}
	if opts.Priority != "" {
		if f.Priority, err = domain.ParsePriority(opts.Priority); err != nil {
			return nil, ValidationError{Field: "priority", Reason: err.Error()}
		}
	}
	if opts.TaskKind != "" {
		if f.TaskKind, err = domain.ParseTaskKind(opts.TaskKind); err != nil {
			return nil, ValidationError{Field: "task_kind", Reason: err.Error()}
		}
	}
	if opts.AssignedUserID != "" {
		if err := e.Auth.CanFilterByUser(ctx, p, opts.AssignedUserID); err != nil {
			return nil, err
		}
		f.AssignedUserID = opts.AssignedUserID
	}
	f.ScopeClause, f.ScopeArgs = taskListScope(p)
	return e.Repo.ListTasks(ctx, f)
}

// TaskViews attaches personal and aggregate progress to an already-filtered
// task slice. Callers that page with limit+1 use this after trimming.
func (e Engine) TaskViews(ctx context.Context, p domain.Principal, tasks []domain.Task) ([]TaskView, error) {
	return e.buildTaskViews(ctx, p, tasks)
}

// ListVisibleTaskViews is ListVisibleTasks with per-task aggregation.
func (e Engine) ListVisibleTaskViews(ctx context.Context, p domain.Principal, opts TaskListOptions) ([]TaskView, error) {
	tasks, err := e.ListVisibleTasks(ctx, p, opts)
	if err != nil {
		return nil, err
	}
	return e.buildTaskViews(ctx, p, tasks)
}

func (e Engine) openForParticipation(t domain.Task, p domain.Principal) error {
	if !CanParticipate(p, t) {
		return auth.ForbiddenError{Action: "participate in this task"}
	}
	if t.Status == domain.StatusDone || t.Status == domain.StatusCancelled {
		return ValidationError{Field: "task", Reason: "task is closed"}
	}
	return nil
}

// RecordAmount ingests a contribution to an amount task. The record insert,
// the counter update and the audit event commit together.
func (e Engine) RecordAmount(ctx context.Context, p domain.Principal, taskID string, value float64, note *string) (TaskView, error) {
	return e.recordValue(ctx, p, taskID, domain.TaskKindAmount, "task.amount_recorded", value, note)
}

// RecordQuantity ingests whole units into a quantity task. Fractional input
// is truncated before validation.
func (e Engine) RecordQuantity(ctx context.Context, p domain.Principal, taskID string, value float64, note *string) (TaskView, error) {
	return e.recordValue(ctx, p, taskID, domain.TaskKindQuantity, "task.quantity_recorded", math.Trunc(value), note)
}

func (e Engine) recordValue(ctx context.Context, p domain.Principal, taskID, wantKind, evtType string, value float64, note *string) (TaskView, error) {
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return TaskView{}, err
	}
	if t.TaskKind != wantKind {
		return TaskView{}, InvalidTaskKindError{Kind: t.TaskKind, Op: wantKind + " records"}
	}
	if err := e.openForParticipation(t, p); err != nil {
		return TaskView{}, err
	}
	if value == 0 {
		return TaskView{}, ValidationError{Field: "value", Reason: "must be non-zero"}
	}
	now := e.nowString()
	rec := domain.AmountQuantityRecord{
		ID:        uuid.NewString(),
		TaskID:    t.ID,
		UserID:    p.UserID,
		Value:     value,
		Note:      note,
		CreatedAt: now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return TaskView{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertAmountQuantityRecord(ctx, tx, rec); err != nil {
		return TaskView{}, err
	}
	if err := e.Repo.AddTaskValue(ctx, tx, t.ID, value, now); err != nil {
		return TaskView{}, err
	}
	err = e.Events.Append(ctx, tx, evtType, "task", t.ID, p.UserID, events.EventPayload{
		"record_id": rec.ID,
		"value":     value,
	})
	if err != nil {
		return TaskView{}, err
	}
	if err := tx.Commit(); err != nil {
		return TaskView{}, err
	}
	t, err = e.Repo.GetTask(ctx, t.ID)
	if err != nil {
		return TaskView{}, err
	}
	return e.buildTaskView(ctx, p, t)
}

// AppendChainEntry adds one link to a chain task and returns the entry's
// position in the chain.
func (e Engine) AppendChainEntry(ctx context.Context, p domain.Principal, taskID, externalID string, note, intention *string) (ChainEntryView, error) {
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return ChainEntryView{}, err
	}
	if t.TaskKind != domain.TaskKindChain {
		return ChainEntryView{}, InvalidTaskKindError{Kind: t.TaskKind, Op: "chain entries"}
	}
	if err := e.openForParticipation(t, p); err != nil {
		return ChainEntryView{}, err
	}
	if externalID == "" {
		return ChainEntryView{}, ValidationError{Field: "external_id", Reason: "required"}
	}
	now := e.nowString()
	entry := domain.ChainEntry{
		ID:         uuid.NewString(),
		TaskID:     t.ID,
		UserID:     p.UserID,
		ExternalID: externalID,
		Note:       note,
		Intention:  intention,
		CreatedAt:  now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return ChainEntryView{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertChainEntry(ctx, tx, entry); err != nil {
		return ChainEntryView{}, err
	}
	if err := e.Repo.AddChainCount(ctx, tx, t.ID, now); err != nil {
		return ChainEntryView{}, err
	}
	var seq int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM chain_entries WHERE task_id=?`, t.ID).Scan(&seq); err != nil {
		return ChainEntryView{}, err
	}
	err = e.Events.Append(ctx, tx, "task.chain_appended", "task", t.ID, p.UserID, events.EventPayload{
		"entry_id":    entry.ID,
		"external_id": externalID,
		"sequence":    seq,
	})
	if err != nil {
		return ChainEntryView{}, err
	}
	if err := tx.Commit(); err != nil {
		return ChainEntryView{}, err
	}
	return ChainEntryView{ChainEntry: entry, Sequence: seq}, nil
}

// CompleteCheckbox records the caller's completion. The first completion
// flips the task to done, but the rest of the audience may still complete a
// done task; only cancellation stops ingestion. Each user completes once.
func (e Engine) CompleteCheckbox(ctx context.Context, p domain.Principal, taskID string, completionValue *float64, dataJSON *string) (TaskView, error) {
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return TaskView{}, err
	}
	if t.TaskKind != domain.TaskKindCheckbox {
		return TaskView{}, InvalidTaskKindError{Kind: t.TaskKind, Op: "checkbox completion"}
	}
	if !CanParticipate(p, t) {
		return TaskView{}, auth.ForbiddenError{Action: "participate in this task"}
	}
	if t.Status == domain.StatusCancelled {
		return TaskView{}, ValidationError{Field: "task", Reason: "task is cancelled"}
	}
	done, err := e.Repo.HasCompleted(ctx, t.ID, p.UserID)
	if err != nil {
		return TaskView{}, err
	}
	if done {
		return TaskView{}, ValidationError{Field: "completion", Reason: "already completed"}
	}
	now := e.nowString()
	completion := domain.CheckboxCompletion{
		ID:                 uuid.NewString(),
		TaskID:             t.ID,
		UserID:             p.UserID,
		IsCompleted:        true,
		CompletionValue:    completionValue,
		CompletionDataJSON: dataJSON,
		CompletedAt:        now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return TaskView{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertCheckboxCompletion(ctx, tx, completion); err != nil {
		return TaskView{}, err
	}
	if err := e.Repo.SetTaskStatus(ctx, tx, t.ID, domain.StatusDone, now); err != nil {
		return TaskView{}, err
	}
	err = e.Events.Append(ctx, tx, "task.checkbox_completed", "task", t.ID, p.UserID, events.EventPayload{
		"completion_id": completion.ID,
	})
	if err != nil {
		return TaskView{}, err
	}
	if err := tx.Commit(); err != nil {
		return TaskView{}, err
	}
	t, err = e.Repo.GetTask(ctx, t.ID)
	if err != nil {
		return TaskView{}, err
	}
	return e.buildTaskView(ctx, p, t)
}

// loadTaskForReaders guards the record sub-listings: admins and assigned
// users may read, others may not.
func (e Engine) loadTaskForReaders(ctx context.Context, p domain.Principal, taskID string) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if !CanParticipate(p, t) {
		return domain.Task{}, auth.ForbiddenError{Action: "view task records"}
	}
	return t, nil
}

func (e Engine) scopeWithFilter(ctx context.Context, p domain.Principal, t domain.Task, filterUserID string) (repo.RecordScope, error) {
	scope := recordScope(p, t)
	if filterUserID != "" {
		if err := e.Auth.CanFilterByUser(ctx, p, filterUserID); err != nil {
			return repo.RecordScope{}, err
		}
		scope.UserID = filterUserID
	}
	return scope, nil
}

// ListTaskRecords lists amount/quantity contributions on a task.
func (e Engine) ListTaskRecords(ctx context.Context, p domain.Principal, taskID, filterUserID string) ([]domain.AmountQuantityRecord, error) {
	t, err := e.loadTaskForReaders(ctx, p, taskID)
	if err != nil {
		return nil, err
	}
	if t.TaskKind != domain.TaskKindAmount && t.TaskKind != domain.TaskKindQuantity {
		return nil, InvalidTaskKindError{Kind: t.TaskKind, Op: "record listing"}
	}
	scope, err := e.scopeWithFilter(ctx, p, t, filterUserID)
	if err != nil {
		return nil, err
	}
	return e.Repo.ListAmountQuantityRecords(ctx, t.ID, scope)
}

// ListChainEntries lists chain links with their true sequence numbers.
func (e Engine) ListChainEntries(ctx context.Context, p domain.Principal, taskID, filterUserID string) ([]ChainEntryView, error) {
	t, err := e.loadTaskForReaders(ctx, p, taskID)
	if err != nil {
		return nil, err
	}
	if t.TaskKind != domain.TaskKindChain {
		return nil, InvalidTaskKindError{Kind: t.TaskKind, Op: "chain listing"}
	}
	scope, err := e.scopeWithFilter(ctx, p, t, filterUserID)
	if err != nil {
		return nil, err
	}
	all, err := e.Repo.ListChainEntries(ctx, t.ID, repo.RecordScope{})
	if err != nil {
		return nil, err
	}
	visible := all
	if scope != (repo.RecordScope{}) {
		visible, err = e.Repo.ListChainEntries(ctx, t.ID, scope)
		if err != nil {
			return nil, err
		}
	}
	return chainViews(all, visible), nil
}

// ListCheckboxCompletions lists who has completed a checkbox task.
func (e Engine) ListCheckboxCompletions(ctx context.Context, p domain.Principal, taskID, filterUserID string) ([]domain.CheckboxCompletion, error) {
	t, err := e.loadTaskForReaders(ctx, p, taskID)
	if err != nil {
		return nil, err
	}
	if t.TaskKind != domain.TaskKindCheckbox {
		return nil, InvalidTaskKindError{Kind: t.TaskKind, Op: "completion listing"}
	}
	scope, err := e.scopeWithFilter(ctx, p, t, filterUserID)
	if err != nil {
		return nil, err
	}
	return e.Repo.ListCheckboxCompletions(ctx, t.ID, scope)
}

// ReportDraft carries caller input for a daily report. An empty WorkDate
// means today.
type ReportDraft struct {
	WorkDate        string
	Title           string
	Content         string
	WorkHours       *float64
	MoodScore       *int
	EfficiencyScore *int
}

// SubmitReport upserts the caller's report for the work date. Resubmitting
// the same date replaces the previous content.
func (e Engine) SubmitReport(ctx context.Context, p domain.Principal, draft ReportDraft) (domain.DailyReport, error) {
	if draft.Title == "" {
		return domain.DailyReport{}, ValidationError{Field: "title", Reason: "required"}
	}
	workDate := draft.WorkDate
	if workDate == "" {
		workDate = e.now().UTC().Format("2006-01-02")
	} else if _, err := time.Parse("2006-01-02", workDate); err != nil {
		return domain.DailyReport{}, ValidationError{Field: "work_date", Reason: "expected YYYY-MM-DD"}
	}
	if e.Config != nil {
		min, max := e.Config.Reports.MinScore, e.Config.Reports.MaxScore
		if draft.MoodScore != nil && (*draft.MoodScore < min || *draft.MoodScore > max) {
			return domain.DailyReport{}, ValidationError{Field: "mood_score", Reason: fmt.Sprintf("must be within %d..%d", min, max)}
		}
		if draft.EfficiencyScore != nil && (*draft.EfficiencyScore < min || *draft.EfficiencyScore > max) {
			return domain.DailyReport{}, ValidationError{Field: "efficiency_score", Reason: fmt.Sprintf("must be within %d..%d", min, max)}
		}
		if draft.WorkHours != nil && (*draft.WorkHours < 0 || *draft.WorkHours > e.Config.Reports.MaxWorkHours) {
			return domain.DailyReport{}, ValidationError{Field: "work_hours", Reason: "out of range"}
		}
	}
	now := e.nowString()
	rep := domain.DailyReport{
		ID:              uuid.NewString(),
		UserID:          p.UserID,
		WorkDate:        workDate,
		Title:           draft.Title,
		Content:         draft.Content,
		WorkHours:       draft.WorkHours,
		MoodScore:       draft.MoodScore,
		EfficiencyScore: draft.EfficiencyScore,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if existing, err := e.Repo.GetReportByDate(ctx, p.UserID, workDate); err == nil {
		rep.ID = existing.ID
		rep.CreatedAt = existing.CreatedAt
	} else if err != repo.ErrNotFound {
		return domain.DailyReport{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.DailyReport{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpsertReport(ctx, tx, rep); err != nil {
		return domain.DailyReport{}, err
	}
	err = e.Events.Append(ctx, tx, "report.submitted", "report", rep.ID, p.UserID, events.EventPayload{
		"work_date": workDate,
	})
	if err != nil {
		return domain.DailyReport{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.DailyReport{}, err
	}
	return rep, nil
}

// GetReport returns one report if the caller may see its author's reports.
func (e Engine) GetReport(ctx context.Context, p domain.Principal, id string) (domain.DailyReport, error) {
	rep, err := e.Repo.GetReport(ctx, id)
	if err != nil {
		return domain.DailyReport{}, err
	}
	author, err := e.Repo.GetUser(ctx, rep.UserID)
	if err != nil {
		return domain.DailyReport{}, err
	}
	if !IsReportVisible(p, author) {
		return domain.DailyReport{}, auth.ForbiddenError{Action: "view this report"}
	}
	return rep, nil
}

// ReportListOptions filter the report listing.
type ReportListOptions struct {
	UserID          string
	From            string
	To              string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

// ListReports pages through reports the caller may see, newest work date
// first.
func (e Engine) ListReports(ctx context.Context, p domain.Principal, opts ReportListOptions) ([]domain.DailyReport, error) {
	for _, d := range []struct{ field, value string }{{"from", opts.From}, {"to", opts.To}} {
		if d.value == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", d.value); err != nil {
			return nil, ValidationError{Field: d.field, Reason: "expected YYYY-MM-DD"}
		}
	}
	f := repo.ReportFilters{
		From:            opts.From,
		To:              opts.To,
		Limit:           opts.Limit,
		CursorCreatedAt: opts.CursorCreatedAt,
		CursorID:        opts.CursorID,
	}
	if opts.UserID != "" {
		if err := e.Auth.CanFilterByUser(ctx, p, opts.UserID); err != nil {
			return nil, err
		}
		f.UserID = opts.UserID
	} else {
		reportListScope(p, &f)
	}
	return e.Repo.ListReports(ctx, f)
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
