package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:8787" {
		t.Fatalf("unexpected default addr %s", cfg.Server.Addr)
	}
	if cfg.Auth.SessionTTLHours != 72 {
		t.Fatalf("unexpected default ttl %d", cfg.Auth.SessionTTLHours)
	}
	if !cfg.KnownIdentityClass("CC") {
		t.Fatalf("default catalog should declare CC")
	}
	if cfg.KnownIdentityClass("XX") {
		t.Fatalf("default catalog should not declare XX")
	}
}

func TestEmptyCatalogAcceptsAnyClass(t *testing.T) {
	var cfg Config
	if !cfg.KnownIdentityClass("ANYTHING") {
		t.Fatalf("empty catalog must accept any class")
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{
			"inverted score bounds",
			"auth:\n  session_ttl_hours: 10\nreports:\n  min_score: 5\n  max_score: 1\n",
			"score bounds",
		},
		{
			"zero ttl",
			"reports:\n  min_score: 1\n  max_score: 5\n",
			"session_ttl_hours",
		},
		{
			"lowercase identity class",
			"auth:\n  session_ttl_hours: 10\nreports:\n  min_score: 1\n  max_score: 5\nidentity:\n  catalog:\n    cc:\n      description: lower\n",
			"upper case",
		},
		{
			"webhook without url",
			"auth:\n  session_ttl_hours: 10\nreports:\n  min_score: 1\n  max_score: 5\nwebhooks:\n  - secret: s\n",
			"empty url",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := FromYAML([]byte(tc.yaml))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	if err != nil {
		t.Fatalf("missing config should not error: %v", err)
	}
	if cfg != nil {
		t.Fatalf("missing config should yield nil")
	}

	if err := os.WriteFile(filepath.Join(dir, "opsight.yml"), []byte(GenerateDefault()), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err = LoadOptional(dir)
	if err != nil {
		t.Fatalf("load generated config: %v", err)
	}
	if cfg == nil || cfg.Reports.MaxScore != 5 {
		t.Fatalf("generated config did not round-trip: %+v", cfg)
	}
}

func TestLoadMissingConfigHintsInit(t *testing.T) {
	_, err := Load(t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "opsight init") {
		t.Fatalf("expected init hint, got %v", err)
	}
}
