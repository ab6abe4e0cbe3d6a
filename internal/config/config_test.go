package config

import "testing"

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("DATA_DIR", "")
	t.Setenv("ADVISOR_MODEL", "")

	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("port = %q, want 8080", cfg.Port)
	}
	if cfg.DataDir != "./data" {
		t.Fatalf("data dir = %q, want ./data", cfg.DataDir)
	}
	if cfg.AdvisorModel != "gemini-2.5-flash" {
		t.Fatalf("advisor model = %q", cfg.AdvisorModel)
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("address = %q, want :8080", cfg.Address())
	}
}
