package engine

import (
	"context"

	"opsight/internal/domain"
)

// TaskView is a task enriched with the caller's personal progress and the
// cross-user aggregate. Kind-specific fields are nil for other kinds.
type TaskView struct {
	domain.Task
	PersonalCurrent       *float64 `json:"personal_current,omitempty"`
	PersonalTarget        *float64 `json:"personal_target,omitempty"`
	PersonalProgress      *float64 `json:"personal_progress,omitempty"`
	PersonalCurrentCount  *int     `json:"personal_current_count,omitempty"`
	PersonalIsCompleted   *bool    `json:"personal_is_completed,omitempty"`
	AggregateCurrent      *float64 `json:"aggregate_current,omitempty"`
	AggregateTargetCount  *int     `json:"aggregate_target_count,omitempty"`
	AggregateCurrentCount *int     `json:"aggregate_current_count,omitempty"`
	CompletedCount        *int     `json:"completed_count,omitempty"`
	AggregateProgress     float64  `json:"aggregate_progress"`
	ParticipantCount      int      `json:"participant_count"`
}

// progressOf clamps to 0..100 and reports 0 when no positive target exists.
func progressOf(current, target float64) float64 {
	if target <= 0 {
		return 0
	}
	p := 100 * current / target
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// buildTaskView reads the caller's personal contribution from the event
// tables and the aggregate from the task's cached counters. Aggregation is a
// pure read; it never mutates task state.
func (e Engine) buildTaskView(ctx context.Context, p domain.Principal, t domain.Task) (TaskView, error) {
	view := TaskView{Task: t}
	scope := recordScope(p, t)
	switch t.TaskKind {
	case domain.TaskKindAmount, domain.TaskKindQuantity:
		personal, err := e.Repo.SumRecordValuesForUser(ctx, t.ID, p.UserID)
		if err != nil {
			return view, err
		}
		view.PersonalCurrent = &personal
		view.PersonalTarget = t.TargetValue
		if t.TargetValue != nil {
			prog := progressOf(personal, *t.TargetValue)
			view.PersonalProgress = &prog
			view.AggregateProgress = progressOf(t.CurrentValue, *t.TargetValue)
		}
		current := t.CurrentValue
		view.AggregateCurrent = &current
		view.ParticipantCount, err = e.Repo.CountRecordParticipants(ctx, t.ID, scope)
		if err != nil {
			return view, err
		}
	case domain.TaskKindChain:
		personal, err := e.Repo.CountChainEntriesForUser(ctx, t.ID, p.UserID)
		if err != nil {
			return view, err
		}
		view.PersonalCurrentCount = &personal
		current := t.ChainCurrentCount
		view.AggregateCurrentCount = &current
		view.AggregateTargetCount = t.ChainTargetCount
		if t.ChainTargetCount != nil {
			view.AggregateProgress = progressOf(float64(current), float64(*t.ChainTargetCount))
		}
		view.ParticipantCount, err = e.Repo.CountChainParticipants(ctx, t.ID, scope)
		if err != nil {
			return view, err
		}
	case domain.TaskKindCheckbox:
		done, err := e.Repo.HasCompleted(ctx, t.ID, p.UserID)
		if err != nil {
			return view, err
		}
		view.PersonalIsCompleted = &done
		completed, err := e.Repo.CountCompletedUsers(ctx, t.ID, scope)
		if err != nil {
			return view, err
		}
		view.CompletedCount = &completed
		view.ParticipantCount, err = e.checkboxAudience(ctx, t)
		if err != nil {
			return view, err
		}
		if view.ParticipantCount < 1 {
			view.AggregateProgress = progressOf(float64(completed), 1)
		} else {
			view.AggregateProgress = progressOf(float64(completed), float64(view.ParticipantCount))
		}
	}
	return view, nil
}

// checkboxAudience sizes the set of users expected to complete a checkbox
// task, from the task's own assignment target.
func (e Engine) checkboxAudience(ctx context.Context, t domain.Task) (int, error) {
	switch t.AssignmentKind {
	case domain.AssignUser:
		return 1, nil
	case domain.AssignGroup:
		if t.TargetGroupID == nil {
			return 0, nil
		}
		return e.Repo.CountActiveUsers(ctx, *t.TargetGroupID, "")
	case domain.AssignIdentity:
		if t.TargetIdentity == nil {
			return 0, nil
		}
		return e.Repo.CountActiveUsers(ctx, "", *t.TargetIdentity)
	default:
		return e.Repo.CountActiveUsers(ctx, "", "")
	}
}

// buildTaskViews enriches a page of tasks for one caller.
func (e Engine) buildTaskViews(ctx context.Context, p domain.Principal, tasks []domain.Task) ([]TaskView, error) {
	views := make([]TaskView, 0, len(tasks))
	for _, t := range tasks {
		v, err := e.buildTaskView(ctx, p, t)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}

// ChainEntryView pairs an entry with its 1-based position in the full chain.
type ChainEntryView struct {
	domain.ChainEntry
	Sequence int `json:"sequence"`
}

// chainViews numbers entries against the complete chain so that scoped or
// filtered listings keep their true sequence positions.
func chainViews(all, visible []domain.ChainEntry) []ChainEntryView {
	seq := make(map[string]int, len(all))
	for i, entry := range all {
		seq[entry.ID] = i + 1
	}
	views := make([]ChainEntryView, 0, len(visible))
	for _, entry := range visible {
		views = append(views, ChainEntryView{ChainEntry: entry, Sequence: seq[entry.ID]})
	}
	return views
}
