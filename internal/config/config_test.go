package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg == nil {
		t.Fatal("Default() returned nil")
	}

	if cfg.API.BaseURL != "http://localhost:8000" {
		t.Errorf("API.BaseURL = %q, want %q", cfg.API.BaseURL, "http://localhost:8000")
	}
	if cfg.API.RequestTimeoutSeconds != 900 {
		t.Errorf("API.RequestTimeoutSeconds = %d, want 900", cfg.API.RequestTimeoutSeconds)
	}
	if cfg.Stream.GracePeriodMs != 2000 {
		t.Errorf("Stream.GracePeriodMs = %d, want 2000", cfg.Stream.GracePeriodMs)
	}
	if cfg.Stream.MaxPayloadBytes != 1<<20 {
		t.Errorf("Stream.MaxPayloadBytes = %d, want %d", cfg.Stream.MaxPayloadBytes, 1<<20)
	}
	if cfg.Form.BaseBranch != "main" {
		t.Errorf("Form.BaseBranch = %q, want %q", cfg.Form.BaseBranch, "main")
	}
	if cfg.Form.DryRun {
		t.Error("Form.DryRun should be false by default")
	}
	if cfg.TUI.EventFilter != "*" {
		t.Errorf("TUI.EventFilter = %q, want %q", cfg.TUI.EventFilter, "*")
	}
	if !cfg.Logging.Enabled {
		t.Error("Logging.Enabled should be true by default")
	}
	if cfg.Telemetry.Enabled {
		t.Error("Telemetry.Enabled should be false by default")
	}
}

func TestDurations(t *testing.T) {
	cfg := Default()

	if got := cfg.API.RequestTimeout(); got != 15*time.Minute {
		t.Errorf("RequestTimeout() = %v, want 15m", got)
	}
	if got := cfg.API.ConnectRetry(); got != 10*time.Second {
		t.Errorf("ConnectRetry() = %v, want 10s", got)
	}
	if got := cfg.Stream.GracePeriod(); got != 2*time.Second {
		t.Errorf("GracePeriod() = %v, want 2s", got)
	}

	cfg.API.RequestTimeoutSeconds = 0
	if got := cfg.API.RequestTimeout(); got != 0 {
		t.Errorf("RequestTimeout() with 0 seconds = %v, want 0", got)
	}
}

func TestConfigDir(t *testing.T) {
	t.Run("uses XDG_CONFIG_HOME when set", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "/custom/config")

		if got := ConfigDir(); got != "/custom/config/prflow" {
			t.Errorf("ConfigDir() = %q, want %q", got, "/custom/config/prflow")
		}
	})

	t.Run("falls back to ~/.config", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "")

		home, err := os.UserHomeDir()
		if err != nil {
			t.Skip("cannot determine home directory")
		}
		want := filepath.Join(home, ".config", "prflow")
		if got := ConfigDir(); got != want {
			t.Errorf("ConfigDir() = %q, want %q", got, want)
		}
	})
}

func TestConfigFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")

	if got := ConfigFile(); got != "/custom/config/prflow/config.yaml" {
		t.Errorf("ConfigFile() = %q, want %q", got, "/custom/config/prflow/config.yaml")
	}
}

func TestLoggingConfig_ResolveDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")

	cfg := LoggingConfig{}
	if got := cfg.ResolveDir(); got != "/custom/config/prflow/logs" {
		t.Errorf("ResolveDir() = %q, want default under config dir", got)
	}

	cfg.Dir = "/var/log/prflow"
	if got := cfg.ResolveDir(); got != "/var/log/prflow" {
		t.Errorf("ResolveDir() = %q, want %q", got, "/var/log/prflow")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("cannot determine home directory")
	}
	cfg.Dir = "~/logs"
	if got := cfg.ResolveDir(); got != filepath.Join(home, "logs") {
		t.Errorf("ResolveDir() = %q, want %q", got, filepath.Join(home, "logs"))
	}
}

func TestLoadFrom(t *testing.T) {
	t.Run("defaults load and validate", func(t *testing.T) {
		v := viper.New()
		setDefaults(v)

		cfg, err := LoadFrom(v)
		if err != nil {
			t.Fatalf("LoadFrom() error = %v", err)
		}
		if cfg.API.BaseURL != Default().API.BaseURL {
			t.Errorf("API.BaseURL = %q, want default", cfg.API.BaseURL)
		}
	})

	t.Run("reads yaml file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		content := "api:\n  base_url: https://flow.example.com\nform:\n  owner: acme\n  dry_run: true\n"
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}

		v := viper.New()
		setDefaults(v)
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			t.Fatalf("ReadInConfig() error = %v", err)
		}

		cfg, err := LoadFrom(v)
		if err != nil {
			t.Fatalf("LoadFrom() error = %v", err)
		}
		if cfg.API.BaseURL != "https://flow.example.com" {
			t.Errorf("API.BaseURL = %q", cfg.API.BaseURL)
		}
		if cfg.Form.Owner != "acme" || !cfg.Form.DryRun {
			t.Errorf("Form = %+v, want owner acme and dry run", cfg.Form)
		}
		// Untouched keys keep their defaults
		if cfg.Form.BaseBranch != "main" {
			t.Errorf("Form.BaseBranch = %q, want main", cfg.Form.BaseBranch)
		}
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("PRFLOW_STREAM_GRACE_PERIOD_MS", "500")

		v := viper.New()
		setDefaults(v)
		ConfigureEnv(v)

		cfg, err := LoadFrom(v)
		if err != nil {
			t.Fatalf("LoadFrom() error = %v", err)
		}
		if cfg.Stream.GracePeriodMs != 500 {
			t.Errorf("Stream.GracePeriodMs = %d, want 500", cfg.Stream.GracePeriodMs)
		}
	})

	t.Run("invalid values are rejected", func(t *testing.T) {
		v := viper.New()
		setDefaults(v)
		v.Set("api.base_url", "ftp://nope")
		v.Set("logging.level", "loud")

		_, err := LoadFrom(v)
		if err == nil {
			t.Fatal("LoadFrom() should fail for invalid config")
		}
		verrs, ok := err.(ValidationErrors)
		if !ok {
			t.Fatalf("error type = %T, want ValidationErrors", err)
		}
		if len(verrs) != 2 {
			t.Errorf("got %d validation errors, want 2: %v", len(verrs), verrs)
		}
	})
}

func TestGet(t *testing.T) {
	// Get never returns nil, even without a config file
	if Get() == nil {
		t.Fatal("Get() returned nil")
	}
}

func TestWatch_NoConfigFile(t *testing.T) {
	v := viper.New()
	called := false
	Watch(v, func(string, *Config) { called = true }, nil)
	if called {
		t.Error("onChange should not be called without a config file")
	}
}
