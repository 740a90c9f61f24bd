package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_DefaultsFromEnv(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("ELASTICSEARCH_URL", "https://localhost:9200")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Env != "local" {
		t.Errorf("expected env local, got %q", cfg.Env)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("expected default addr :8080, got %q", cfg.Server.Addr)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("expected 15s read timeout, got %v", cfg.Server.ReadTimeout)
	}
	if cfg.Server.WriteTimeout != 0 {
		t.Errorf("expected zero write timeout for streaming, got %v", cfg.Server.WriteTimeout)
	}
	if cfg.Elastic.URL != "https://localhost:9200" {
		t.Errorf("unexpected elastic URL %q", cfg.Elastic.URL)
	}
	if cfg.Pipeline.MaxPRs != 20 {
		t.Errorf("expected default max PRs 20, got %d", cfg.Pipeline.MaxPRs)
	}
	if cfg.Pipeline.Debounce != 5*time.Minute {
		t.Errorf("expected default debounce 5m, got %v", cfg.Pipeline.Debounce)
	}
	if cfg.GitHub.HTTPTimeout != 30*time.Second {
		t.Errorf("expected 30s HTTP timeout, got %v", cfg.GitHub.HTTPTimeout)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("ELASTICSEARCH_URL", "https://es.example.com:9200")
	t.Setenv("ELASTICSEARCH_API_KEY", "key123")
	t.Setenv("HTTP_ADDR", ":9999")
	t.Setenv("GITHUB_TOKEN", "ghp_sometoken")
	t.Setenv("PIPELINE_MAX_PRS", "50")
	t.Setenv("PIPELINE_DEBOUNCE", "30s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Addr != ":9999" {
		t.Errorf("expected :9999, got %q", cfg.Server.Addr)
	}
	if cfg.GitHub.Token != "ghp_sometoken" {
		t.Errorf("unexpected token %q", cfg.GitHub.Token)
	}
	if cfg.Elastic.APIKey != "key123" {
		t.Errorf("unexpected API key %q", cfg.Elastic.APIKey)
	}
	if cfg.Pipeline.MaxPRs != 50 {
		t.Errorf("expected max PRs 50, got %d", cfg.Pipeline.MaxPRs)
	}
	if cfg.Pipeline.Debounce != 30*time.Second {
		t.Errorf("expected debounce 30s, got %v", cfg.Pipeline.Debounce)
	}
}

func TestLoad_MissingElasticURLFails(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	// t.Setenv registers the restore; the variable must be truly absent,
	// not empty, for the required check to trip.
	t.Setenv("ELASTICSEARCH_URL", "")
	os.Unsetenv("ELASTICSEARCH_URL")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when ELASTICSEARCH_URL is unset")
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "env: prod\nserver:\n  addr: \":7070\"\npipeline:\n  max_prs: 10\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("ELASTICSEARCH_URL", "https://localhost:9200")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Env != "prod" {
		t.Errorf("expected env prod, got %q", cfg.Env)
	}
	if cfg.Server.Addr != ":7070" {
		t.Errorf("expected :7070 from file, got %q", cfg.Server.Addr)
	}
	if cfg.Pipeline.MaxPRs != 10 {
		t.Errorf("expected max PRs 10 from file, got %d", cfg.Pipeline.MaxPRs)
	}
}

func TestLoad_MissingConfigFileFails(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv("ELASTICSEARCH_URL", "https://localhost:9200")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for nonexistent config file")
	}
}
