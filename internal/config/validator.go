package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/gobwas/glob"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "stream.grace_period_ms")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateAPI()...)
	errors = append(errors, c.validateStream()...)
	errors = append(errors, c.validateTUI()...)
	errors = append(errors, c.validateLogging()...)
	errors = append(errors, c.validateTelemetry()...)

	return errors
}

func (c *Config) validateAPI() []ValidationError {
	var errors []ValidationError

	u, err := url.Parse(strings.TrimSpace(c.API.BaseURL))
	switch {
	case strings.TrimSpace(c.API.BaseURL) == "":
		errors = append(errors, ValidationError{
			Field:   "api.base_url",
			Value:   c.API.BaseURL,
			Message: "must not be empty",
		})
	case err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "":
		errors = append(errors, ValidationError{
			Field:   "api.base_url",
			Value:   c.API.BaseURL,
			Message: "must be an absolute http or https URL",
		})
	}

	if c.API.RequestTimeoutSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "api.request_timeout_seconds",
			Value:   c.API.RequestTimeoutSeconds,
			Message: "must be non-negative (0 disables the timeout)",
		})
	}
	if c.API.ConnectRetrySeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "api.connect_retry_seconds",
			Value:   c.API.ConnectRetrySeconds,
			Message: "must be non-negative",
		})
	}

	return errors
}

func (c *Config) validateStream() []ValidationError {
	var errors []ValidationError

	if c.Stream.GracePeriodMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "stream.grace_period_ms",
			Value:   c.Stream.GracePeriodMs,
			Message: "must be non-negative",
		})
	}

	const minPayload = 1024
	const maxPayload = 64 << 20
	if c.Stream.MaxPayloadBytes < minPayload {
		errors = append(errors, ValidationError{
			Field:   "stream.max_payload_bytes",
			Value:   c.Stream.MaxPayloadBytes,
			Message: fmt.Sprintf("must be at least %d bytes", minPayload),
		})
	}
	if c.Stream.MaxPayloadBytes > maxPayload {
		errors = append(errors, ValidationError{
			Field:   "stream.max_payload_bytes",
			Value:   c.Stream.MaxPayloadBytes,
			Message: "exceeds maximum of 64MB",
		})
	}

	return errors
}

func (c *Config) validateTUI() []ValidationError {
	var errors []ValidationError

	// Empty means "show everything"
	if c.TUI.EventFilter != "" {
		if _, err := glob.Compile(c.TUI.EventFilter, '.'); err != nil {
			errors = append(errors, ValidationError{
				Field:   "tui.event_filter",
				Value:   c.TUI.EventFilter,
				Message: fmt.Sprintf("invalid glob: %v", err),
			})
		}
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	// Validate log level
	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	if c.Logging.MaxSizeMB <= 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be positive",
		})
	}

	const maxLogSizeMB = 1000 // 1GB
	if c.Logging.MaxSizeMB > maxLogSizeMB {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("exceeds maximum of %dMB", maxLogSizeMB),
		})
	}

	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}

func (c *Config) validateTelemetry() []ValidationError {
	if c.Telemetry.Enabled && strings.TrimSpace(c.Telemetry.TraceFile) == "" {
		return []ValidationError{{
			Field:   "telemetry.trace_file",
			Value:   c.Telemetry.TraceFile,
			Message: "is required when telemetry is enabled",
		}}
	}
	return nil
}
