package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. PRFLOW_API_BASE_URL for
// api.base_url.
const EnvPrefix = "PRFLOW"

// Config represents the complete prflow configuration
type Config struct {
	API       APIConfig       `mapstructure:"api" yaml:"api"`
	Stream    StreamConfig    `mapstructure:"stream" yaml:"stream"`
	Form      FormConfig      `mapstructure:"form" yaml:"form"`
	TUI       TUIConfig       `mapstructure:"tui" yaml:"tui"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
}

// APIConfig locates the workflow backend
type APIConfig struct {
	// BaseURL is the backend root; trailing slashes are ignored
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	// RequestTimeoutSeconds bounds a run request (0 = no timeout)
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds" yaml:"request_timeout_seconds"`
	// ConnectRetrySeconds is how long GET requests retry dial failures (0 = no retry)
	ConnectRetrySeconds int `mapstructure:"connect_retry_seconds" yaml:"connect_retry_seconds"`
}

// StreamConfig controls the runtime event subscription
type StreamConfig struct {
	// GracePeriodMs keeps the stream open after the run settles so trailing events are captured
	GracePeriodMs int `mapstructure:"grace_period_ms" yaml:"grace_period_ms"`
	// MaxPayloadBytes bounds a single event line
	MaxPayloadBytes int `mapstructure:"max_payload_bytes" yaml:"max_payload_bytes"`
}

// FormConfig pre-fills the dashboard's run form
type FormConfig struct {
	Owner      string `mapstructure:"owner" yaml:"owner"`
	Repo       string `mapstructure:"repo" yaml:"repo"`
	BaseBranch string `mapstructure:"base_branch" yaml:"base_branch"`
	DryRun     bool   `mapstructure:"dry_run" yaml:"dry_run"`
}

// TUIConfig controls the terminal UI behavior
type TUIConfig struct {
	// EventFilter is a glob over event names shown in the event log panel
	EventFilter string `mapstructure:"event_filter" yaml:"event_filter"`
	// ShowEventFields renders each event's fields under its message
	ShowEventFields bool `mapstructure:"show_event_fields" yaml:"show_event_fields"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Enabled controls whether logging is active (default: true)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Level sets the minimum log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level" yaml:"level"`
	// MaxSizeMB is the maximum log file size before rotation (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	// MaxBackups is the number of rotated files to keep (default: 3)
	MaxBackups int `mapstructure:"max_backups" yaml:"max_backups"`
	// Dir is where prflow.log is written; empty means <config dir>/logs
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// TelemetryConfig controls run tracing
type TelemetryConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// TraceFile receives one JSON span per run when enabled
	TraceFile string `mapstructure:"trace_file" yaml:"trace_file"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:               "http://localhost:8000",
			RequestTimeoutSeconds: 900,
			ConnectRetrySeconds:   10,
		},
		Stream: StreamConfig{
			GracePeriodMs:   2000,
			MaxPayloadBytes: 1 << 20,
		},
		Form: FormConfig{
			BaseBranch: "main",
		},
		TUI: TUIConfig{
			EventFilter:     "*",
			ShowEventFields: true,
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Telemetry: TelemetryConfig{
			Enabled: false,
		},
	}
}

// RequestTimeout returns the run request timeout (0 = none).
func (c *APIConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// ConnectRetry returns the dial retry budget for GET requests.
func (c *APIConfig) ConnectRetry() time.Duration {
	return time.Duration(c.ConnectRetrySeconds) * time.Second
}

// GracePeriod returns how long the stream outlives the run request.
func (c *StreamConfig) GracePeriod() time.Duration {
	return time.Duration(c.GracePeriodMs) * time.Millisecond
}

// ResolveDir returns the log directory, expanding "~" and falling back to
// <config dir>/logs.
func (c *LoggingConfig) ResolveDir() string {
	if c.Dir == "" {
		return filepath.Join(ConfigDir(), "logs")
	}
	return expandHome(c.Dir)
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
		}
	}
	return path
}

// SetDefaults registers default values with viper
func SetDefaults() {
	setDefaults(viper.GetViper())
}

func setDefaults(v *viper.Viper) {
	defaults := Default()

	// API defaults
	v.SetDefault("api.base_url", defaults.API.BaseURL)
	v.SetDefault("api.request_timeout_seconds", defaults.API.RequestTimeoutSeconds)
	v.SetDefault("api.connect_retry_seconds", defaults.API.ConnectRetrySeconds)

	// Stream defaults
	v.SetDefault("stream.grace_period_ms", defaults.Stream.GracePeriodMs)
	v.SetDefault("stream.max_payload_bytes", defaults.Stream.MaxPayloadBytes)

	// Form defaults
	v.SetDefault("form.owner", defaults.Form.Owner)
	v.SetDefault("form.repo", defaults.Form.Repo)
	v.SetDefault("form.base_branch", defaults.Form.BaseBranch)
	v.SetDefault("form.dry_run", defaults.Form.DryRun)

	// TUI defaults
	v.SetDefault("tui.event_filter", defaults.TUI.EventFilter)
	v.SetDefault("tui.show_event_fields", defaults.TUI.ShowEventFields)

	// Logging defaults
	v.SetDefault("logging.enabled", defaults.Logging.Enabled)
	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	v.SetDefault("logging.dir", defaults.Logging.Dir)

	// Telemetry defaults
	v.SetDefault("telemetry.enabled", defaults.Telemetry.Enabled)
	v.SetDefault("telemetry.trace_file", defaults.Telemetry.TraceFile)
}

// ConfigureEnv binds PRFLOW_* environment variables to config keys.
func ConfigureEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	// e.g. PRFLOW_STREAM_GRACE_PERIOD_MS for stream.grace_period_ms
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom is Load for an explicit viper instance.
func LoadFrom(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// Watch reloads the configuration whenever the config file viper read
// changes on disk. Invalid edits are skipped and reported through onError.
// It is a no-op when no config file is in use.
func Watch(v *viper.Viper, onChange func(path string, cfg *Config), onError func(error)) {
	if v.ConfigFileUsed() == "" {
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := LoadFrom(v)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		if onChange != nil {
			onChange(e.Name, cfg)
		}
	})
	v.WatchConfig()
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "prflow")
	}
	// Fall back to ~/.config/prflow
	home, err := os.UserHomeDir()
	if err != nil {
		return ".prflow"
	}
	return filepath.Join(home, ".config", "prflow")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
