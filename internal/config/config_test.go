package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultAndNormalize(t *testing.T) {
	cfg := Default()
	if cfg.Port == 0 || cfg.DataDir == "" || cfg.MaxConcurrentUploads < 1 {
		t.Fatalf("default config invalid: %+v", cfg)
	}

	got := normalizeTypes([]string{"PDF", ".docx", "pdf", "  .JPG"})

	has := func(slice []string, s string) bool {
		for _, v := range slice {
			if v == s {
				return true
			}
		}
		return false
	}
	if !has(got, "pdf") || !has(got, "docx") || !has(got, "jpg") {
		t.Fatalf("expected normalized set to contain pdf,docx,jpg got %v", got)
	}
	if len(got) != 3 {
		t.Fatalf("expected dedup to 3 entries, got %v", got)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load("not_exists.yml")
	if err != nil {
		t.Fatalf("expected no error for missing file, got %v", err)
	}
	if cfg.APIBase == "" || cfg.QueryBase != "" && cfg.QueryBase != cfg.APIBase {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadReadsAndValidates(t *testing.T) {
	tempDir := t.TempDir()
	path := filepath.Join(tempDir, "cfg.yml")
	content := []byte("port: 9090\napi_base: https://api.example.com/\nquery_base: https://query.example.com\ntoken: abc\nmax_concurrent_uploads: 2\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 9090 || cfg.MaxConcurrentUploads != 2 {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if cfg.APIBase != "https://api.example.com" {
		t.Fatalf("api base not trimmed: %q", cfg.APIBase)
	}
	if cfg.QueryBase != "https://query.example.com" {
		t.Fatalf("query base lost: %q", cfg.QueryBase)
	}
}

func TestQueryBaseFallsBackToAPIBase(t *testing.T) {
	tempDir := t.TempDir()
	path := filepath.Join(tempDir, "cfg.yml")
	if err := os.WriteFile(path, []byte("api_base: https://api.example.com\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.QueryBase != cfg.APIBase {
		t.Fatalf("expected query base fallback, got %q", cfg.QueryBase)
	}
}

func TestLoadRejectsInvalidConcurrency(t *testing.T) {
	tempDir := t.TempDir()
	path := filepath.Join(tempDir, "cfg.yml")
	if err := os.WriteFile(path, []byte("max_concurrent_uploads: 0\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for zero max_concurrent_uploads")
	}
}

func TestEnvTokenOverridesFile(t *testing.T) {
	tempDir := t.TempDir()
	path := filepath.Join(tempDir, "cfg.yml")
	if err := os.WriteFile(path, []byte("token: from-file\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv(TokenEnv, "from-env")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Token != "from-env" {
		t.Fatalf("expected env token to win, got %q", cfg.Token)
	}
}
