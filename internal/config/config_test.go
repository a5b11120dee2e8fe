package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dgallion1/standoffalign/internal/standoff"
)

var envKeys = []string{
	ConfigFileEnv, "PORT", "STANDOFFALIGN_API_KEY", "SOURCE_DIR", "TARGET_DIR",
	"STREAM_COMPRESSION", "STANDOFF_CONTINUATION", "STRICT_RECORDS", "MAX_LINE_BYTES",
	"OUTPUT_FORMAT", "RESULT_DB", "WORKER_COUNT", "MAX_QUEUE_SIZE", "MAX_UPLOAD_BYTES",
	"JOB_TTL", "STATS_WINDOW", "LOG_LEVEL",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "standoffalign.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg != Defaults() {
		t.Errorf("expected defaults %+v, got %+v", Defaults(), cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected defaults to validate, got %v", err)
	}
	if cfg.Policy() != standoff.ContinueAtSpanStart {
		t.Errorf("expected span-start continuation by default, got %v", cfg.Policy())
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, `
port = "9000"
source_dir = "/data/en"
target_dir = "/data/fr"
continuation = "offset"
strict = true
worker_count = 2
job_ttl = "30m"
`)
	t.Setenv(ConfigFileEnv, path)
	t.Setenv("PORT", "9100")
	t.Setenv("WORKER_COUNT", "8")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "9100" {
		t.Errorf("expected env to override port, got %q", cfg.Port)
	}
	if cfg.WorkerCount != 8 {
		t.Errorf("expected 8 workers, got %d", cfg.WorkerCount)
	}
	if cfg.SourceDir != "/data/en" || cfg.TargetDir != "/data/fr" {
		t.Errorf("expected dirs from file, got %q %q", cfg.SourceDir, cfg.TargetDir)
	}
	if !cfg.Strict {
		t.Error("expected strict from file")
	}
	if cfg.JobTTL != 30*time.Minute {
		t.Errorf("expected 30m ttl, got %v", cfg.JobTTL)
	}
	if cfg.Policy() != standoff.ContinueAtOffset {
		t.Errorf("expected offset continuation, got %v", cfg.Policy())
	}
}

func TestLoad_BadFile(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"syntax", "port = "},
		{"duration", `job_ttl = "soon"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(ConfigFileEnv, writeFile(t, tt.body))
			if _, err := Load(); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)
	t.Setenv(ConfigFileEnv, filepath.Join(t.TempDir(), "nope.toml"))
	if _, err := Load(); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestLoad_InvalidEnvKeepsFallback(t *testing.T) {
	clearEnv(t)
	t.Setenv("WORKER_COUNT", "many")
	t.Setenv("JOB_TTL", "-")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.WorkerCount != Defaults().WorkerCount {
		t.Errorf("expected default worker count, got %d", cfg.WorkerCount)
	}
	if cfg.JobTTL != Defaults().JobTTL {
		t.Errorf("expected default ttl, got %v", cfg.JobTTL)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"ok", func(*Config) {}, ""},
		{"policy", func(c *Config) { c.Continuation = "sideways" }, "sideways"},
		{"compression", func(c *Config) { c.Compression = "zip" }, "zip"},
		{"format", func(c *Config) { c.OutputFormat = "xml" }, "xml"},
		{"sqlite needs db", func(c *Config) { c.OutputFormat = "sqlite"; c.ResultDB = "" }, "RESULT_DB"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error mentioning %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidateServe(t *testing.T) {
	cfg := Defaults()
	if err := cfg.ValidateServe(); err == nil {
		t.Error("expected error without api key")
	}
	cfg.APIKey = "secret"
	if err := cfg.ValidateServe(); err == nil {
		t.Error("expected error without block store dirs")
	}
	cfg.SourceDir, cfg.TargetDir = "en", "fr"
	if err := cfg.ValidateServe(); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}
