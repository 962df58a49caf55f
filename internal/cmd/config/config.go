// Package config provides CLI commands for managing prflow configuration.
package config

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	appconfig "github.com/Iron-Ham/prflow/internal/config"
)

// Wrapper functions for exec to allow testing
var execLookPath = exec.LookPath
var execCommand = exec.Command

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or modify prflow configuration",
	Long: `View or modify prflow configuration.

Without arguments, displays the current configuration.
Use subcommands to modify settings or create a config file.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the user's config file.

Keys use dot notation, e.g.:
  prflow config set api.base_url http://workflow.internal:8000
  prflow config set form.owner acme
  prflow config set tui.event_filter 'workflow.*'

Valid keys:
  api.base_url                 - Workflow backend root URL
  api.request_timeout_seconds  - Run request timeout (0 = none)
  api.connect_retry_seconds    - Retry budget for GET dial failures
  stream.grace_period_ms       - Keep the stream open this long after a run settles
  stream.max_payload_bytes     - Maximum size of one event line
  form.owner                   - Default repository owner
  form.repo                    - Default repository name
  form.base_branch             - Default base branch
  form.dry_run                 - Dry run by default (true/false)
  tui.event_filter             - Glob over event names shown in the event log
  tui.show_event_fields        - Show event fields in the event log (true/false)
  logging.enabled              - Write the debug log (true/false)
  logging.level                - Minimum level: debug, info, warn, error
  logging.max_size_mb          - Rotate the log at this size
  logging.max_backups          - Rotated logs to keep
  logging.dir                  - Log directory (default: <config dir>/logs)
  telemetry.enabled            - Record a trace span per run (true/false)
  telemetry.trace_file         - File receiving the spans`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a default config file at ~/.config/prflow/config.yaml with all available options.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open config file in your editor",
	Long: `Open the config file in your preferred editor.

Uses $EDITOR environment variable, or falls back to common editors (vim, nano, vi).
If no config file exists, creates one with default values first.`,
	RunE: runConfigEdit,
}

var configResetCmd = &cobra.Command{
	Use:   "reset [key]",
	Short: "Reset configuration to defaults",
	Long: `Reset configuration values to their defaults.

Without arguments, resets all configuration to defaults.
With a key argument, resets only that specific key.

Examples:
  prflow config reset                 # Reset all to defaults
  prflow config reset tui.event_filter # Reset only tui.event_filter`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConfigReset,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configEditCmd)
	configCmd.AddCommand(configResetCmd)
}

// Register adds all config-related commands to the given parent command.
func Register(parent *cobra.Command) {
	parent.AddCommand(configCmd)
}

// validKeys maps settable keys to their value kind.
var validKeys = map[string]string{
	"api.base_url":                "string",
	"api.request_timeout_seconds": "int",
	"api.connect_retry_seconds":   "int",
	"stream.grace_period_ms":      "int",
	"stream.max_payload_bytes":    "int",
	"form.owner":                  "string",
	"form.repo":                   "string",
	"form.base_branch":            "string",
	"form.dry_run":                "bool",
	"tui.event_filter":            "string",
	"tui.show_event_fields":       "bool",
	"logging.enabled":             "bool",
	"logging.level":               "level",
	"logging.max_size_mb":         "int",
	"logging.max_backups":         "int",
	"logging.dir":                 "string",
	"telemetry.enabled":           "bool",
	"telemetry.trace_file":        "string",
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	cfg := appconfig.Get()

	fmt.Fprintln(out, "Current configuration:")
	fmt.Fprintln(out)

	// Show where config is being read from
	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "Config file: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(out, "Config file: (none - using defaults)\n")
	}
	fmt.Fprintln(out)

	return writeYAML(out, cfg)
}

func writeYAML(w io.Writer, cfg *appconfig.Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	return enc.Close()
}

// parseValue converts value to the kind registered for key.
func parseValue(key, value string) (any, error) {
	keyType, ok := validKeys[key]
	if !ok {
		return nil, fmt.Errorf("unknown configuration key: %s\nRun 'prflow config set --help' to see valid keys", key)
	}

	switch keyType {
	case "bool":
		if value != "true" && value != "false" {
			return nil, fmt.Errorf("invalid value for %s: expected true or false", key)
		}
		return value == "true", nil
	case "int":
		intVal, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: expected integer", key)
		}
		if intVal < 0 {
			return nil, fmt.Errorf("invalid value for %s: must be non-negative", key)
		}
		return intVal, nil
	case "level":
		if !slices.Contains(appconfig.ValidLogLevels(), value) {
			return nil, fmt.Errorf("invalid value for %s: %s\nValid options: %s",
				key, value, strings.Join(appconfig.ValidLogLevels(), ", "))
		}
		return value, nil
	default:
		return value, nil
	}
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key := args[0]
	typedValue, err := parseValue(key, args[1])
	if err != nil {
		return err
	}

	// Validate the resulting configuration before touching the file
	previous := viper.Get(key)
	viper.Set(key, typedValue)
	if _, err := appconfig.Load(); err != nil {
		viper.Set(key, previous)
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}

	configFile, err := writeConfig()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Set %s = %v\n", key, typedValue)
	fmt.Fprintf(out, "Config saved to %s\n", configFile)
	return nil
}

// writeConfig writes viper's settings to the active config file, or the
// default location when none is in use.
func writeConfig() (string, error) {
	configFile := viper.ConfigFileUsed()
	if configFile == "" {
		configFile = appconfig.ConfigFile()
	}
	if err := os.MkdirAll(filepath.Dir(configFile), 0755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := viper.WriteConfigAs(configFile); err != nil {
		return "", fmt.Errorf("failed to write config file: %w", err)
	}
	return configFile, nil
}

// defaultConfigContent renders the commented config file written by init.
func defaultConfigContent() string {
	d := appconfig.Default()
	return fmt.Sprintf(`# prflow configuration

# Workflow backend
api:
  # Backend root URL (override with PRFLOW_API_BASE_URL)
  base_url: %s
  # Seconds a run request may take; 0 disables the timeout
  request_timeout_seconds: %d
  # Seconds GET requests keep retrying when the backend is not up yet
  connect_retry_seconds: %d

# Runtime event stream
stream:
  # Keep the stream open this long after a run settles to catch trailing events
  grace_period_ms: %d
  # Maximum size of one event line in bytes
  max_payload_bytes: %d

# Run form defaults
form:
  owner: ""
  repo: ""
  base_branch: %s
  dry_run: %t

# Dashboard
tui:
  # Glob over event names shown in the event log, e.g. "workflow.*"
  event_filter: %q
  show_event_fields: %t

# Debug log
logging:
  enabled: %t
  # debug, info, warn or error
  level: %s
  max_size_mb: %d
  max_backups: %d
  # Empty means <config dir>/logs
  dir: ""

# Run tracing
telemetry:
  enabled: %t
  # Spans are written here as JSON when enabled
  trace_file: ""
`,
		d.API.BaseURL, d.API.RequestTimeoutSeconds, d.API.ConnectRetrySeconds,
		d.Stream.GracePeriodMs, d.Stream.MaxPayloadBytes,
		d.Form.BaseBranch, d.Form.DryRun,
		d.TUI.EventFilter, d.TUI.ShowEventFields,
		d.Logging.Enabled, d.Logging.Level, d.Logging.MaxSizeMB, d.Logging.MaxBackups,
		d.Telemetry.Enabled,
	)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configFile := appconfig.ConfigFile()

	// Check if config file already exists
	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists at %s\nUse 'prflow config set' to modify values", configFile)
	}

	if err := os.MkdirAll(appconfig.ConfigDir(), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(configFile, []byte(defaultConfigContent()), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created config file at %s\n", configFile)
	fmt.Fprintln(out, "Edit this file to customize prflow's behavior.")
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	configFile := appconfig.ConfigFile()

	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "Active config: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(out, "Default path: %s (not created)\n", configFile)
	}

	// Also show config search paths
	fmt.Fprintln(out, "\nSearch paths:")
	fmt.Fprintf(out, "  1. %s\n", configFile)
	fmt.Fprintf(out, "  2. ./config.yaml (current directory)\n")
	fmt.Fprintf(out, "\nEnvironment variables: %s_* (e.g., %s_API_BASE_URL)\n", appconfig.EnvPrefix, appconfig.EnvPrefix)
	return nil
}

func runConfigEdit(cmd *cobra.Command, args []string) error {
	configFile := appconfig.ConfigFile()

	// Check if config file exists, if not create it
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		fmt.Fprintf(cmd.OutOrStdout(), "Config file doesn't exist, creating with defaults...\n")
		if err := runConfigInit(cmd, args); err != nil {
			return err
		}
	}

	// Find an editor
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		for _, e := range []string{"vim", "nano", "vi"} {
			if _, err := execLookPath(e); err == nil {
				editor = e
				break
			}
		}
	}
	if editor == "" {
		return fmt.Errorf("no editor found. Set $EDITOR environment variable")
	}

	editorCmd := execCommand(editor, configFile)
	editorCmd.Stdin = os.Stdin
	editorCmd.Stdout = os.Stdout
	editorCmd.Stderr = os.Stderr

	if err := editorCmd.Run(); err != nil {
		return fmt.Errorf("editor exited with error: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Config file saved: %s\n", configFile)
	return nil
}

// defaultValues maps every settable key to its default.
func defaultValues() map[string]any {
	d := appconfig.Default()
	return map[string]any{
		"api.base_url":                d.API.BaseURL,
		"api.request_timeout_seconds": d.API.RequestTimeoutSeconds,
		"api.connect_retry_seconds":   d.API.ConnectRetrySeconds,
		"stream.grace_period_ms":      d.Stream.GracePeriodMs,
		"stream.max_payload_bytes":    d.Stream.MaxPayloadBytes,
		"form.owner":                  d.Form.Owner,
		"form.repo":                   d.Form.Repo,
		"form.base_branch":            d.Form.BaseBranch,
		"form.dry_run":                d.Form.DryRun,
		"tui.event_filter":            d.TUI.EventFilter,
		"tui.show_event_fields":       d.TUI.ShowEventFields,
		"logging.enabled":             d.Logging.Enabled,
		"logging.level":               d.Logging.Level,
		"logging.max_size_mb":         d.Logging.MaxSizeMB,
		"logging.max_backups":         d.Logging.MaxBackups,
		"logging.dir":                 d.Logging.Dir,
		"telemetry.enabled":           d.Telemetry.Enabled,
		"telemetry.trace_file":        d.Telemetry.TraceFile,
	}
}

func runConfigReset(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	defaults := defaultValues()

	if len(args) == 0 {
		for key, value := range defaults {
			viper.Set(key, value)
		}
		fmt.Fprintln(out, "Reset all configuration to defaults.")
	} else {
		key := args[0]
		value, ok := defaults[key]
		if !ok {
			return fmt.Errorf("unknown configuration key: %s\nRun 'prflow config set --help' to see valid keys", key)
		}
		viper.Set(key, value)
		fmt.Fprintf(out, "Reset %s to default: %v\n", key, value)
	}

	configFile, err := writeConfig()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Config saved to %s\n", configFile)
	return nil
}
