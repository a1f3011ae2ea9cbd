package domain

import "testing"

func TestParseLegacySpellings(t *testing.T) {
	if got, err := ParseTaskKind("jielong"); err != nil || got != TaskKindChain {
		t.Fatalf("jielong should normalize to chain, got %q, %v", got, err)
	}
	if got, err := ParseAssignmentKind("all"); err != nil || got != AssignEveryone {
		t.Fatalf("all should normalize to everyone, got %q, %v", got, err)
	}
	if got, err := ParseStatus("canceled"); err != nil || got != StatusCancelled {
		t.Fatalf("canceled should normalize to cancelled, got %q, %v", got, err)
	}
	if got, err := ParseRole("superadmin"); err != nil || got != RoleSuperAdmin {
		t.Fatalf("superadmin should normalize to super_admin, got %q, %v", got, err)
	}
}

func TestParseTrimsAndLowercases(t *testing.T) {
	if got, err := ParseTaskKind("  Amount "); err != nil || got != TaskKindAmount {
		t.Fatalf("got %q, %v", got, err)
	}
	if got, err := ParsePriority("URGENT"); err != nil || got != PriorityUrgent {
		t.Fatalf("got %q, %v", got, err)
	}
}

func TestParseRejectsUnknown(t *testing.T) {
	if _, err := ParseTaskKind("meeting"); err == nil {
		t.Fatalf("unknown task kind must error")
	}
	if _, err := ParseStatus("paused"); err == nil {
		t.Fatalf("unknown status must error")
	}
	if _, err := ParseAssignmentKind("team"); err == nil {
		t.Fatalf("unknown assignment kind must error")
	}
	if _, err := ParseRole("owner"); err == nil {
		t.Fatalf("unknown role must error")
	}
}

func TestNormalizeIdentityClass(t *testing.T) {
	if got := NormalizeIdentityClass(" cc "); got != "CC" {
		t.Fatalf("got %q", got)
	}
}
