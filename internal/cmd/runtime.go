package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/Iron-Ham/prflow/internal/api"
	"github.com/Iron-Ham/prflow/internal/config"
	"github.com/Iron-Ham/prflow/internal/dashboard"
	"github.com/Iron-Ham/prflow/internal/event"
	"github.com/Iron-Ham/prflow/internal/logging"
	"github.com/Iron-Ham/prflow/internal/telemetry"
)

const shutdownTimeout = 5 * time.Second

// runtime holds what every backend-facing command needs.
type runtime struct {
	cfg       *config.Config
	logger    *logging.Logger
	client    *api.Client
	telemetry *telemetry.Provider
	ctrl      *dashboard.Controller
}

// newRuntime builds the logger, API client and tracer provider for cfg.
// Warnings go to warn; the dashboard passes io.Discard so nothing is
// written under the alternate screen.
func newRuntime(cfg *config.Config, warn io.Writer) (*runtime, error) {
	logger := logging.NopLogger()
	if cfg.Logging.Enabled {
		l, err := logging.NewLoggerWithRotation(cfg.Logging.ResolveDir(), cfg.Logging.Level, logging.RotationConfig{
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			Compress:   true,
		})
		if err != nil {
			fmt.Fprintf(warn, "Warning: logging disabled: %v\n", err)
		} else {
			logger = l
		}
	}

	client, err := api.NewClient(cfg.API.BaseURL,
		api.WithRequestTimeout(cfg.API.RequestTimeout()),
		api.WithRetryBudget(cfg.API.ConnectRetry()),
		api.WithMaxPayloadBytes(cfg.Stream.MaxPayloadBytes),
		api.WithLogger(logger),
	)
	if err != nil {
		_ = logger.Close()
		return nil, fmt.Errorf("invalid api.base_url: %w", err)
	}

	tp, err := telemetry.NewProvider(telemetry.Config{
		Enabled:   cfg.Telemetry.Enabled,
		TraceFile: cfg.Telemetry.TraceFile,
	})
	if err != nil {
		fmt.Fprintf(warn, "Warning: tracing disabled: %v\n", err)
		tp, _ = telemetry.NewProvider(telemetry.Config{})
	}

	return &runtime{cfg: cfg, logger: logger, client: client, telemetry: tp}, nil
}

// controller lazily creates the dashboard controller.
func (r *runtime) controller() *dashboard.Controller {
	if r.ctrl == nil {
		r.ctrl = dashboard.New(dashboard.Config{
			Runner:      r.client,
			Transport:   r.client,
			Bus:         event.NewBus(r.logger),
			Logger:      r.logger,
			Tracer:      r.telemetry.Tracer(),
			GracePeriod: r.cfg.Stream.GracePeriod(),
		})
	}
	return r.ctrl
}

// Close stops the controller, flushes spans and closes the log file.
func (r *runtime) Close() {
	if r.ctrl != nil {
		r.ctrl.Close()
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := r.telemetry.Shutdown(ctx); err != nil {
		r.logger.Warn("failed to flush traces", "error", err.Error())
	}
	_ = r.logger.Close()
}
