package server

import (
	"encoding/json"

	"opsight/internal/domain"
	"opsight/internal/engine"
)

// Request payloads

// LoginRequest carries the password-less username login. When username is
// empty, login instead exchanges the already authenticated identity for an
// opaque session token.
type LoginRequest struct {
	Username string `json:"username,omitempty"`
}

type CreateTaskRequest struct {
	Title            string   `json:"title"`
	Description      *string  `json:"description,omitempty"`
	TaskKind         string   `json:"task_kind" enum:"checkbox,amount,quantity,chain,jielong"`
	AssignmentKind   string   `json:"assignment_kind" enum:"user,group,identity,everyone,all"`
	AssignedUserID   *string  `json:"assigned_user_id,omitempty"`
	TargetGroupID    *string  `json:"target_group_id,omitempty"`
	TargetIdentity   *string  `json:"target_identity,omitempty"`
	Priority         *string  `json:"priority,omitempty" enum:"urgent,high,medium,low"`
	TargetValue      *float64 `json:"target_value,omitempty"`
	ChainTargetCount *int     `json:"chain_target_count,omitempty"`
	DueDate          *string  `json:"due_date,omitempty" format:"date-time"`
	StartTime        *string  `json:"start_time,omitempty" format:"date-time"`
	EndTime          *string  `json:"end_time,omitempty" format:"date-time"`
	Tags             []string `json:"tags,omitempty"`
}

type UpdateTaskRequest struct {
	Title       *string  `json:"title,omitempty"`
	Description *string  `json:"description,omitempty"`
	Priority    *string  `json:"priority,omitempty" enum:"urgent,high,medium,low"`
	Status      *string  `json:"status,omitempty" enum:"pending,processing,done,cancelled,canceled"`
	DueDate     *string  `json:"due_date,omitempty" format:"date-time"`
	StartTime   *string  `json:"start_time,omitempty" format:"date-time"`
	EndTime     *string  `json:"end_time,omitempty" format:"date-time"`
	Tags        []string `json:"tags,omitempty"`
}

type RecordValueRequest struct {
	Value float64 `json:"value"`
	Note  *string `json:"note,omitempty"`
}

type ChainEntryRequest struct {
	ExternalID string  `json:"external_id"`
	Note       *string `json:"note,omitempty"`
	Intention  *string `json:"intention,omitempty"`
}

type CheckboxCompletionRequest struct {
	CompletionValue *float64       `json:"completion_value,omitempty"`
	CompletionData  map[string]any `json:"completion_data,omitempty"`
}

type SubmitReportRequest struct {
	WorkDate        *string  `json:"work_date,omitempty" format:"date"`
	Title           string   `json:"title"`
	Content         *string  `json:"content,omitempty"`
	WorkHours       *float64 `json:"work_hours,omitempty"`
	MoodScore       *int     `json:"mood_score,omitempty"`
	EfficiencyScore *int     `json:"efficiency_score,omitempty"`
}

type CreateUserRequest struct {
	Username      string  `json:"username"`
	DisplayName   *string `json:"display_name,omitempty"`
	Role          *string `json:"role,omitempty" enum:"user,admin,super_admin"`
	GroupID       *string `json:"group_id,omitempty"`
	IdentityClass *string `json:"identity_class,omitempty"`
}

type UpdateUserRequest struct {
	DisplayName   *string `json:"display_name,omitempty"`
	Role          *string `json:"role,omitempty" enum:"user,admin,super_admin"`
	GroupID       *string `json:"group_id,omitempty"`
	IdentityClass *string `json:"identity_class,omitempty"`
	IsActive      *bool   `json:"is_active,omitempty"`
}

type CreateGroupRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
}

type CreateAPIKeyRequest struct {
	UserID *string `json:"user_id,omitempty"`
	Name   *string `json:"name,omitempty"`
}

// Response payloads

type LoginResponse struct {
	Token     string       `json:"token"`
	JWT       string       `json:"jwt,omitempty"`
	ExpiresAt string       `json:"expires_at" format:"date-time"`
	User      UserResponse `json:"user"`
}

type UserResponse struct {
	ID            string  `json:"id"`
	Username      string  `json:"username"`
	DisplayName   string  `json:"display_name,omitempty"`
	Role          string  `json:"role" enum:"user,admin,super_admin"`
	GroupID       *string `json:"group_id,omitempty"`
	IdentityClass *string `json:"identity_class,omitempty"`
	IsActive      bool    `json:"is_active"`
	CreatedAt     string  `json:"created_at" format:"date-time"`
	UpdatedAt     string  `json:"updated_at" format:"date-time"`
}

type GroupResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type TaskViewResponse struct {
	ID                    string   `json:"id"`
	Title                 string   `json:"title"`
	Description           string   `json:"description,omitempty"`
	TaskKind              string   `json:"task_kind" enum:"checkbox,amount,quantity,chain"`
	AssignmentKind        string   `json:"assignment_kind" enum:"user,group,identity,everyone"`
	AssignedUserID        *string  `json:"assigned_user_id,omitempty"`
	TargetGroupID         *string  `json:"target_group_id,omitempty"`
	TargetIdentity        *string  `json:"target_identity,omitempty"`
	Status                string   `json:"status" enum:"pending,processing,done,cancelled"`
	Priority              string   `json:"priority" enum:"urgent,high,medium,low"`
	TargetValue           *float64 `json:"target_value,omitempty"`
	CurrentValue          float64  `json:"current_value"`
	ChainTargetCount      *int     `json:"chain_target_count,omitempty"`
	ChainCurrentCount     int      `json:"chain_current_count"`
	DueDate               *string  `json:"due_date,omitempty" format:"date-time"`
	StartTime             *string  `json:"start_time,omitempty" format:"date-time"`
	EndTime               *string  `json:"end_time,omitempty" format:"date-time"`
	Tags                  []string `json:"tags"`
	CreatedBy             string   `json:"created_by"`
	CreatedAt             string   `json:"created_at" format:"date-time"`
	UpdatedAt             string   `json:"updated_at" format:"date-time"`
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

type RecordResponse struct {
	ID        string  `json:"id"`
	TaskID    string  `json:"task_id"`
	UserID    string  `json:"user_id"`
	Value     float64 `json:"value"`
	Note      *string `json:"note,omitempty"`
	CreatedAt string  `json:"created_at" format:"date-time"`
}

type ChainEntryResponse struct {
	ID         string  `json:"id"`
	TaskID     string  `json:"task_id"`
	UserID     string  `json:"user_id"`
	ExternalID string  `json:"external_id"`
	Note       *string `json:"note,omitempty"`
	Intention  *string `json:"intention,omitempty"`
	Sequence   int     `json:"sequence"`
	CreatedAt  string  `json:"created_at" format:"date-time"`
}

type CompletionResponse struct {
	ID              string         `json:"id"`
	TaskID          string         `json:"task_id"`
	UserID          string         `json:"user_id"`
	IsCompleted     bool           `json:"is_completed"`
	CompletionValue *float64       `json:"completion_value,omitempty"`
	CompletionData  map[string]any `json:"completion_data,omitempty"`
	CompletedAt     string         `json:"completed_at" format:"date-time"`
}

type ReportResponse struct {
	ID              string   `json:"id"`
	UserID          string   `json:"user_id"`
	WorkDate        string   `json:"work_date" format:"date"`
	Title           string   `json:"title"`
	Content         string   `json:"content,omitempty"`
	WorkHours       *float64 `json:"work_hours,omitempty"`
	MoodScore       *int     `json:"mood_score,omitempty"`
	EfficiencyScore *int     `json:"efficiency_score,omitempty"`
	CreatedAt       string   `json:"created_at" format:"date-time"`
	UpdatedAt       string   `json:"updated_at" format:"date-time"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	Key       string `json:"key,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type recordList struct {
	Items []RecordResponse `json:"items"`
	Total int              `json:"total"`
}

type chainEntryList struct {
	Items []ChainEntryResponse `json:"items"`
	Total int                  `json:"total"`
}

type completionList struct {
	Items []CompletionResponse `json:"items"`
	Total int                  `json:"total"`
}

type paginatedTaskViews struct {
	Items      []TaskViewResponse `json:"items"`
	NextCursor string             `json:"next_cursor,omitempty"`
}

type paginatedReports struct {
	Items      []ReportResponse `json:"items"`
	NextCursor string           `json:"next_cursor,omitempty"`
}

type paginatedUsers struct {
	Items      []UserResponse `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// Conversion helpers

func userResponse(u domain.User) UserResponse {
	return UserResponse(u)
}

func groupResponse(g domain.UserGroup) GroupResponse {
	return GroupResponse(g)
}

func taskViewResponse(v engine.TaskView) TaskViewResponse {
	return TaskViewResponse{
		ID:                    v.ID,
		Title:                 v.Title,
		Description:           v.Description,
		TaskKind:              v.TaskKind,
		AssignmentKind:        v.AssignmentKind,
		AssignedUserID:        v.AssignedUserID,
		TargetGroupID:         v.TargetGroupID,
		TargetIdentity:        v.TargetIdentity,
		Status:                v.Status,
		Priority:              v.Priority,
		TargetValue:           v.TargetValue,
		CurrentValue:          v.CurrentValue,
		ChainTargetCount:      v.ChainTargetCount,
		ChainCurrentCount:     v.ChainCurrentCount,
		DueDate:               v.DueDate,
		StartTime:             v.StartTime,
		EndTime:               v.EndTime,
		Tags:                  nonNilSlice(v.Tags),
		CreatedBy:             v.CreatedBy,
		CreatedAt:             v.CreatedAt,
		UpdatedAt:             v.UpdatedAt,
		PersonalCurrent:       v.PersonalCurrent,
		PersonalTarget:        v.PersonalTarget,
		PersonalProgress:      v.PersonalProgress,
		PersonalCurrentCount:  v.PersonalCurrentCount,
		PersonalIsCompleted:   v.PersonalIsCompleted,
		AggregateCurrent:      v.AggregateCurrent,
		AggregateTargetCount:  v.AggregateTargetCount,
		AggregateCurrentCount: v.AggregateCurrentCount,
		CompletedCount:        v.CompletedCount,
		AggregateProgress:     v.AggregateProgress,
		ParticipantCount:      v.ParticipantCount,
	}
}

func recordResponse(r domain.AmountQuantityRecord) RecordResponse {
	return RecordResponse(r)
}

func chainEntryResponse(v engine.ChainEntryView) ChainEntryResponse {
	return ChainEntryResponse{
		ID:         v.ID,
		TaskID:     v.TaskID,
		UserID:     v.UserID,
		ExternalID: v.ExternalID,
		Note:       v.Note,
		Intention:  v.Intention,
		Sequence:   v.Sequence,
		CreatedAt:  v.CreatedAt,
	}
}

func completionResponse(c domain.CheckboxCompletion) CompletionResponse {
	return CompletionResponse{
		ID:              c.ID,
		TaskID:          c.TaskID,
		UserID:          c.UserID,
		IsCompleted:     c.IsCompleted,
		CompletionValue: c.CompletionValue,
		CompletionData:  decodeJSONMap(c.CompletionDataJSON),
		CompletedAt:     c.CompletedAt,
	}
}

func reportResponse(r domain.DailyReport) ReportResponse {
	return ReportResponse(r)
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(strPtr(e.Payload)),
	}
}

// JSON helpers

func decodeJSONMap(raw *string) map[string]any {
	if raw == nil || *raw == "" {
		return nil
	}
	var tmp any
	if err := json.Unmarshal([]byte(*raw), &tmp); err != nil {
		return nil
	}
	if obj, ok := tmp.(map[string]any); ok {
		return obj
	}
	return nil
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}

func strPtr(in string) *string {
	return &in
}
