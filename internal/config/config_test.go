package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const minimalYAML = `app:
  name: "Leaguely"
  port: 8080
database:
  filename: "data/leaguely.db"
`

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	if cfg.App.Environment != "development" {
		t.Errorf("Environment = %q, want development", cfg.App.Environment)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("Driver = %q, want sqlite", cfg.Database.Driver)
	}
	if cfg.Data.Source != DataSourceSQLite {
		t.Errorf("Data.Source = %q, want %q", cfg.Data.Source, DataSourceSQLite)
	}
	if cfg.Chat.Backend != ChatBackendSQLite {
		t.Errorf("Chat.Backend = %q, want %q", cfg.Chat.Backend, ChatBackendSQLite)
	}
	if cfg.Chat.PageSize != 50 {
		t.Errorf("Chat.PageSize = %d, want 50", cfg.Chat.PageSize)
	}
	if cfg.RateLimit.MessageMaxPerMinute != 30 {
		t.Errorf("MessageMaxPerMinute = %d, want 30", cfg.RateLimit.MessageMaxPerMinute)
	}
	if cfg.GeocodingEnabled() {
		t.Error("geocoding should be disabled without base_url")
	}
}

func TestDemoDataDefaultsToDemoChat(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML + "data:\n  source: demo\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Chat.Backend != ChatBackendDemo {
		t.Errorf("Chat.Backend = %q, want %q", cfg.Chat.Backend, ChatBackendDemo)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		extra   string
		wantErr string
	}{
		{"demo data", "data:\n  source: demo\n", ""},
		{"demo data with sqlite chat", "data:\n  source: demo\nchat:\n  backend: sqlite\n", "requires data source sqlite"},
		{"demo data with badger chat", "data:\n  source: demo\nchat:\n  backend: badger\n  badger_dir: data/chat\n", ""},
		{"unknown data source", "data:\n  source: firebase\n", "unsupported data source"},
		{"badger without dir", "chat:\n  backend: badger\n", "badger_dir is required"},
		{"badger with dir", "chat:\n  backend: badger\n  badger_dir: data/chat\n", ""},
		{"unknown chat backend", "chat:\n  backend: supabase\n", "unsupported chat backend"},
		{"negative retention", "chat:\n  retention_days: -1\n", "must not be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(minimalYAML + tt.extra))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			err = cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidateRequiresNameAndPort(t *testing.T) {
	cfg, err := Parse([]byte("database:\n  filename: x.db\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing app name")
	}
}

func TestLoadReadsSecretsFromEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.yaml")
	if err := os.WriteFile(path, []byte(minimalYAML), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("APP_SECRET_KEY", "from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.App.SecretKey != "from-env" {
		t.Fatalf("SecretKey = %q, want from-env", cfg.App.SecretKey)
	}
}
