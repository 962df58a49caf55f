package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/Iron-Ham/prflow/internal/config"
	perrors "github.com/Iron-Ham/prflow/internal/errors"
	"github.com/Iron-Ham/prflow/internal/tui/styles"
	"github.com/Iron-Ham/prflow/internal/workflow"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the workflow backend is reachable",
	Long: `Check GET /health on the configured backend.

With --wait, keep probing until the backend reports ok or the wait elapses.
Useful in scripts that start the backend and the dashboard together.`,
	Args: cobra.NoArgs,
	RunE: runHealth,
}

var (
	healthWait     time.Duration
	healthInterval time.Duration
)

func init() {
	rootCmd.AddCommand(healthCmd)

	healthCmd.Flags().DurationVar(&healthWait, "wait", 0, "Keep probing for up to this long (e.g. 30s)")
	healthCmd.Flags().DurationVar(&healthInterval, "interval", time.Second, "Time between checks with --wait")
}

func runHealth(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	rt, err := newRuntime(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer rt.Close()

	status, err := pollHealth(cmd.Context(), rt.client.Health, healthWait, healthInterval)
	if err != nil {
		return fmt.Errorf("backend %s is not healthy: %s", rt.client.BaseURL(), perrors.UserMessage(err))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s\n", styles.StatusIcon("success"), rt.client.BaseURL(), status.Status)
	return nil
}

func permanentHealthFailure(err error) bool {
	if err == nil || perrors.IsRetryable(err) {
		return false
	}
	return perrors.Is(err, perrors.ErrBackendRejected) || perrors.Is(err, perrors.ErrMalformedResponse)
}

type healthChecker func(ctx context.Context) (workflow.HealthStatus, error)

// pollHealth checks once, or with wait > 0 until the backend reports ok,
// at most one check per interval. A backend that rejects the check with a
// non-retryable status, or answers with an unreadable body, ends the wait.
func pollHealth(ctx context.Context, check healthChecker, wait, interval time.Duration) (workflow.HealthStatus, error) {
	if wait <= 0 {
		status, err := check(ctx)
		if err == nil && !status.OK() {
			err = fmt.Errorf("backend reported status %q", status.Status)
		}
		return status, err
	}

	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	limiter := rate.NewLimiter(rate.Every(max(interval, 10*time.Millisecond)), 1)

	var last error
	for {
		if err := limiter.Wait(ctx); err != nil {
			if last == nil {
				last = err
			}
			return workflow.HealthStatus{}, perrors.NewTimeoutError("reach a healthy backend", wait).WithCause(last)
		}
		status, err := check(ctx)
		if err == nil && status.OK() {
			return status, nil
		}
		if permanentHealthFailure(err) {
			return workflow.HealthStatus{}, err
		}
		if err == nil {
			err = fmt.Errorf("backend reported status %q", status.Status)
		}
		last = err
	}
}
