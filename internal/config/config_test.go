package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWithFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
drive:
  credentials_file: /secrets/sa.json
  endpoint: http://localhost:9000/drive/v3/
  accounts_file: accounts.csv
  history_file: history.xlsx
metrics_api:
  base_url: http://localhost:9001/2
  bearer_token: token-from-file
  timeout_seconds: 30
retry:
  max_attempts: 5
  delay: 250ms
run:
  timezone: UTC
schedule:
  cron: "0 30 6 * * *"
server:
  port: 9090
archive:
  gcs_bucket: archive
  prefix: daily
logging:
  development: true
  level: debug
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Drive.CredentialsFile != "/secrets/sa.json" || cfg.Drive.AccountsFile != "accounts.csv" {
		t.Fatalf("expected drive overrides to apply: %+v", cfg.Drive)
	}
	if cfg.MetricsAPI.BearerToken != "token-from-file" {
		t.Fatalf("expected bearer token from file, got %q", cfg.MetricsAPI.BearerToken)
	}
	if cfg.Retry.MaxAttempts != 5 || cfg.Retry.Delay != 250*time.Millisecond {
		t.Fatalf("expected retry overrides, got %+v", cfg.Retry)
	}
	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Archive.GCSBucket != "archive" || cfg.Archive.Prefix != "daily" {
		t.Fatalf("expected archive overrides, got %+v", cfg.Archive)
	}
	if !cfg.Logging.Development || cfg.Logging.Level != "debug" {
		t.Fatalf("expected logging overrides, got %+v", cfg.Logging)
	}
	if got := cfg.MetricsTimeout(); got != 30*time.Second {
		t.Fatalf("expected metrics timeout 30s, got %v", got)
	}
	if got := cfg.ScheduleTimezone(); got != "UTC" {
		t.Fatalf("expected schedule timezone to fall back to run timezone, got %q", got)
	}
}

func TestLoadDefaultsWithLegacyEnv(t *testing.T) {
	t.Setenv(EnvServiceAccount, `{"type":"service_account"}`)
	t.Setenv(EnvBearerToken, "legacy-token")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Drive.CredentialsJSON != `{"type":"service_account"}` {
		t.Fatalf("expected credentials from %s, got %q", EnvServiceAccount, cfg.Drive.CredentialsJSON)
	}
	if cfg.MetricsAPI.BearerToken != "legacy-token" {
		t.Fatalf("expected token from %s, got %q", EnvBearerToken, cfg.MetricsAPI.BearerToken)
	}
	if cfg.Drive.AccountsFile != "kikigatari_accounts.csv" || cfg.Drive.HistoryFile != "kikigatari_shukei.xlsx" {
		t.Fatalf("unexpected default file names: %+v", cfg.Drive)
	}
	if cfg.Retry.MaxAttempts != 3 || cfg.Retry.Delay != 5*time.Second {
		t.Fatalf("unexpected retry defaults: %+v", cfg.Retry)
	}
	if cfg.MetricsAPI.BaseURL != "https://api.twitter.com/2" {
		t.Fatalf("unexpected base url %q", cfg.MetricsAPI.BaseURL)
	}
}

func TestPrefixedEnvWinsOverLegacy(t *testing.T) {
	t.Setenv(EnvServiceAccount, "legacy")
	t.Setenv("FOLLOWERS_DRIVE_CREDENTIALS_JSON", "prefixed")
	t.Setenv(EnvBearerToken, "legacy-token")
	t.Setenv("FOLLOWERS_RETRY_MAX_ATTEMPTS", "7")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Drive.CredentialsJSON != "prefixed" {
		t.Fatalf("expected prefixed credentials, got %q", cfg.Drive.CredentialsJSON)
	}
	if cfg.Retry.MaxAttempts != 7 {
		t.Fatalf("expected env retry attempts 7, got %d", cfg.Retry.MaxAttempts)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Drive:      DriveConfig{CredentialsJSON: "{}", AccountsFile: "a.csv", HistoryFile: "h.xlsx"},
		MetricsAPI: MetricsAPIConfig{BearerToken: "t", TimeoutSeconds: 10},
		Retry:      RetryConfig{MaxAttempts: 3, Delay: time.Second},
		Run:        RunConfig{Timezone: "UTC"},
		Server:     ServerConfig{Port: 8080},
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "missing credentials", mutate: func(c *Config) { c.Drive.CredentialsJSON = "" }, want: EnvServiceAccount},
		{name: "missing accounts file", mutate: func(c *Config) { c.Drive.AccountsFile = " " }, want: "drive.accounts_file"},
		{name: "missing history file", mutate: func(c *Config) { c.Drive.HistoryFile = "" }, want: "drive.history_file"},
		{name: "missing token", mutate: func(c *Config) { c.MetricsAPI.BearerToken = "" }, want: EnvBearerToken},
		{name: "invalid timeout", mutate: func(c *Config) { c.MetricsAPI.TimeoutSeconds = 0 }, want: "metrics_api.timeout_seconds"},
		{name: "invalid attempts", mutate: func(c *Config) { c.Retry.MaxAttempts = 0 }, want: "retry.max_attempts"},
		{name: "negative delay", mutate: func(c *Config) { c.Retry.Delay = -time.Second }, want: "retry.delay"},
		{name: "invalid port", mutate: func(c *Config) { c.Server.Port = 0 }, want: "server.port"},
		{name: "unknown run zone", mutate: func(c *Config) { c.Run.Timezone = "Nowhere/Special" }, want: "run.timezone"},
		{name: "unknown schedule zone", mutate: func(c *Config) { c.Schedule.Timezone = "Nowhere/Special" }, want: "schedule.timezone"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Validate() error = %v, want substring %q", err, tt.want)
			}
		})
	}

	if err := base.Validate(); err != nil {
		t.Fatalf("expected base config to validate, got %v", err)
	}
}
