// Package config loads and validates follower snapshot configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Legacy environment variable names still honoured by deployments.
const (
	EnvServiceAccount = "GOOGLE_SERVICE_ACCOUNT"
	EnvBearerToken    = "TWITTER_BEARER_TOKEN"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Drive      DriveConfig      `mapstructure:"drive"`
	MetricsAPI MetricsAPIConfig `mapstructure:"metrics_api"`
	Retry      RetryConfig      `mapstructure:"retry"`
	Run        RunConfig        `mapstructure:"run"`
	Schedule   ScheduleConfig   `mapstructure:"schedule"`
	Server     ServerConfig     `mapstructure:"server"`
	Archive    ArchiveConfig    `mapstructure:"archive"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// DriveConfig locates the cloud file store and the two files a run uses.
type DriveConfig struct {
	CredentialsJSON string `mapstructure:"credentials_json"`
	CredentialsFile string `mapstructure:"credentials_file"`
	Endpoint        string `mapstructure:"endpoint"`
	AccountsFile    string `mapstructure:"accounts_file"`
	HistoryFile     string `mapstructure:"history_file"`
}

// MetricsAPIConfig configures the follower count API.
type MetricsAPIConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	BearerToken    string `mapstructure:"bearer_token"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	UserAgent      string `mapstructure:"user_agent"`
}

// RetryConfig bounds the fixed-delay retry loop.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Delay       time.Duration `mapstructure:"delay"`
}

// RunConfig controls a single run.
type RunConfig struct {
	Timezone string `mapstructure:"timezone"`
}

// ScheduleConfig drives the schedule command.
type ScheduleConfig struct {
	Cron     string `mapstructure:"cron"`
	Timezone string `mapstructure:"timezone"`
}

// ServerConfig controls the admin HTTP server.
type ServerConfig struct {
	Port   int    `mapstructure:"port"`
	APIKey string `mapstructure:"api_key"`
}

// ArchiveConfig enables the archive mirror: GCS when GCSBucket is set, otherwise a
// local directory when LocalDir is set.
type ArchiveConfig struct {
	GCSBucket string `mapstructure:"gcs_bucket"`
	LocalDir  string `mapstructure:"local_dir"`
	Prefix    string `mapstructure:"prefix"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FOLLOWERS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindLegacyEnv(v); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("drive.credentials_json", "")
	v.SetDefault("drive.credentials_file", "")
	v.SetDefault("drive.endpoint", "")
	v.SetDefault("drive.accounts_file", "kikigatari_accounts.csv")
	v.SetDefault("drive.history_file", "kikigatari_shukei.xlsx")
	v.SetDefault("metrics_api.base_url", "https://api.twitter.com/2")
	v.SetDefault("metrics_api.bearer_token", "")
	v.SetDefault("metrics_api.timeout_seconds", 15)
	v.SetDefault("metrics_api.user_agent", "follower-snapshot/1.0")
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.delay", "5s")
	v.SetDefault("run.timezone", "UTC")
	v.SetDefault("schedule.cron", "0 0 9 * * *")
	v.SetDefault("schedule.timezone", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.api_key", "")
	v.SetDefault("archive.gcs_bucket", "")
	v.SetDefault("archive.local_dir", "")
	v.SetDefault("archive.prefix", "snapshots")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
}

// bindLegacyEnv lets the prefixed name win over the legacy one.
func bindLegacyEnv(v *viper.Viper) error {
	if err := v.BindEnv("drive.credentials_json", "FOLLOWERS_DRIVE_CREDENTIALS_JSON", EnvServiceAccount); err != nil {
		return fmt.Errorf("bind %s: %w", EnvServiceAccount, err)
	}
	if err := v.BindEnv("metrics_api.bearer_token", "FOLLOWERS_METRICS_API_BEARER_TOKEN", EnvBearerToken); err != nil {
		return fmt.Errorf("bind %s: %w", EnvBearerToken, err)
	}
	return nil
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Drive.CredentialsJSON == "" && c.Drive.CredentialsFile == "" {
		return fmt.Errorf("drive.credentials_json or drive.credentials_file must be set (or %s)", EnvServiceAccount)
	}
	if strings.TrimSpace(c.Drive.AccountsFile) == "" {
		return fmt.Errorf("drive.accounts_file must be set")
	}
	if strings.TrimSpace(c.Drive.HistoryFile) == "" {
		return fmt.Errorf("drive.history_file must be set")
	}
	if c.MetricsAPI.BearerToken == "" {
		return fmt.Errorf("metrics_api.bearer_token must be set (or %s)", EnvBearerToken)
	}
	if c.MetricsAPI.TimeoutSeconds <= 0 {
		return fmt.Errorf("metrics_api.timeout_seconds must be > 0")
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be > 0")
	}
	if c.Retry.Delay < 0 {
		return fmt.Errorf("retry.delay must be >= 0")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if _, err := time.LoadLocation(c.Run.Timezone); err != nil {
		return fmt.Errorf("run.timezone %q: %w", c.Run.Timezone, err)
	}
	if c.Schedule.Timezone != "" {
		if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
			return fmt.Errorf("schedule.timezone %q: %w", c.Schedule.Timezone, err)
		}
	}
	return nil
}

// MetricsTimeout converts the API timeout into a duration.
func (c Config) MetricsTimeout() time.Duration {
	return time.Duration(c.MetricsAPI.TimeoutSeconds) * time.Second
}

// ScheduleTimezone falls back to the run timezone when none is set for the scheduler.
func (c Config) ScheduleTimezone() string {
	if c.Schedule.Timezone != "" {
		return c.Schedule.Timezone
	}
	return c.Run.Timezone
}
