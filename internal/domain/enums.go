package domain

import (
	"fmt"
	"strings"
)

const (
	RoleUser       = "user"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "super_admin"
)

const (
	TaskKindCheckbox = "checkbox"
	TaskKindAmount   = "amount"
	TaskKindQuantity = "quantity"
	TaskKindChain    = "chain"
)

const (
	AssignUser     = "user"
	AssignGroup    = "group"
	AssignIdentity = "identity"
	AssignEveryone = "everyone"
)

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusDone       = "done"
	StatusCancelled  = "cancelled"
)

const (
	PriorityUrgent = "urgent"
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// ParseRole normalizes a role string to its canonical value.
func ParseRole(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case RoleUser:
		return RoleUser, nil
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleSuperAdmin, "superadmin":
		return RoleSuperAdmin, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// ParseTaskKind accepts canonical and legacy spellings. The legacy store
// called chain tasks "jielong".
func ParseTaskKind(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case TaskKindCheckbox:
		return TaskKindCheckbox, nil
	case TaskKindAmount:
		return TaskKindAmount, nil
	case TaskKindQuantity:
		return TaskKindQuantity, nil
	case TaskKindChain, "jielong":
		return TaskKindChain, nil
	}
	return "", fmt.Errorf("unknown task kind %q", s)
}

// ParseAssignmentKind accepts canonical and legacy spellings ("all" was the
// legacy name for everyone-targeting).
func ParseAssignmentKind(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case AssignUser:
		return AssignUser, nil
	case AssignGroup:
		return AssignGroup, nil
	case AssignIdentity:
		return AssignIdentity, nil
	case AssignEveryone, "all":
		return AssignEveryone, nil
	}
	return "", fmt.Errorf("unknown assignment kind %q", s)
}

func ParseStatus(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case StatusPending:
		return StatusPending, nil
	case StatusProcessing:
		return StatusProcessing, nil
	case StatusDone:
		return StatusDone, nil
	case StatusCancelled, "canceled":
		return StatusCancelled, nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

func ParsePriority(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case PriorityUrgent:
		return PriorityUrgent, nil
	case PriorityHigh:
		return PriorityHigh, nil
	case PriorityMedium:
		return PriorityMedium, nil
	case PriorityLow:
		return PriorityLow, nil
	}
	return "", fmt.Errorf("unknown priority %q", s)
}

// NormalizeIdentityClass canonicalizes identity class tags to upper case.
// Tags are short codes like "SS" or "CC"; case varied in legacy data.
func NormalizeIdentityClass(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
