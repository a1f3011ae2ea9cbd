package domain

type User struct {
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

type UserGroup struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

// Principal is the resolved actor for a single request. Role, group and
// identity class are read once at authentication time and never reloaded
// mid-request.
type Principal struct {
	UserID        string  `json:"user_id"`
	Role          string  `json:"role"`
	GroupID       *string `json:"group_id,omitempty"`
	IdentityClass *string `json:"identity_class,omitempty"`
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin || p.Role == RoleSuperAdmin
}

func (p Principal) IsSuperAdmin() bool {
	return p.Role == RoleSuperAdmin
}

func (u User) Principal() Principal {
	return Principal{
		UserID:        u.ID,
		Role:          u.Role,
		GroupID:       u.GroupID,
		IdentityClass: u.IdentityClass,
	}
}

// Task counters (current_value, chain_current_count) are denormalized caches
// over the event tables; they are only ever updated atomically in the same
// transaction as the event insert.
type Task struct {
	ID                string   `json:"id"`
	Title             string   `json:"title"`
	Description       string   `json:"description,omitempty"`
	TaskKind          string   `json:"task_kind" enum:"checkbox,amount,quantity,chain"`
	AssignmentKind    string   `json:"assignment_kind" enum:"user,group,identity,everyone"`
	AssignedUserID    *string  `json:"assigned_user_id,omitempty"`
	TargetGroupID     *string  `json:"target_group_id,omitempty"`
	TargetIdentity    *string  `json:"target_identity,omitempty"`
	Status            string   `json:"status" enum:"pending,processing,done,cancelled"`
	Priority          string   `json:"priority" enum:"urgent,high,medium,low"`
	TargetValue       *float64 `json:"target_value,omitempty"`
	CurrentValue      float64  `json:"current_value"`
	ChainTargetCount  *int     `json:"chain_target_count,omitempty"`
	ChainCurrentCount int      `json:"chain_current_count"`
	DueDate           *string  `json:"due_date,omitempty" format:"date-time"`
	StartTime         *string  `json:"start_time,omitempty" format:"date-time"`
	EndTime           *string  `json:"end_time,omitempty" format:"date-time"`
	Tags              []string `json:"tags,omitempty"`
	CreatedBy         string   `json:"created_by"`
	CreatedAt         string   `json:"created_at" format:"date-time"`
	UpdatedAt         string   `json:"updated_at" format:"date-time"`
}

type AmountQuantityRecord struct {
	ID        string  `json:"id"`
	TaskID    string  `json:"task_id"`
	UserID    string  `json:"user_id"`
	Value     float64 `json:"value"`
	Note      *string `json:"note,omitempty"`
	CreatedAt string  `json:"created_at" format:"date-time"`
}

type ChainEntry struct {
	ID         string  `json:"id"`
	TaskID     string  `json:"task_id"`
	UserID     string  `json:"user_id"`
	ExternalID string  `json:"external_id"`
	Note       *string `json:"note,omitempty"`
	Intention  *string `json:"intention,omitempty"`
	CreatedAt  string  `json:"created_at" format:"date-time"`
}

type CheckboxCompletion struct {
	ID                 string   `json:"id"`
	TaskID             string   `json:"task_id"`
	UserID             string   `json:"user_id"`
	IsCompleted        bool     `json:"is_completed"`
	CompletionValue    *float64 `json:"completion_value,omitempty"`
	CompletionDataJSON *string  `json:"completion_data_json,omitempty"`
	CompletedAt        string   `json:"completed_at" format:"date-time"`
}

type DailyReport struct {
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

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Session struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	TokenHash string `json:"token_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
	ExpiresAt string `json:"expires_at" format:"date-time"`
}
