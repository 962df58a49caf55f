package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/prflow/internal/config"
	perrors "github.com/Iron-Ham/prflow/internal/errors"
	"github.com/Iron-Ham/prflow/internal/logging"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View prflow logs",
	Long: `View and filter the prflow debug log.

Examples:
  # Show the last 50 entries
  prflow logs

  # Everything logged for one run
  prflow logs --request 3f2c9a1e-... -n 0

  # Warnings and errors from the last hour
  prflow logs --level warn --since 1h

  # Search messages and attributes
  prflow logs --grep "stream|timeout"`,
	Args: cobra.NoArgs,
	RunE: runLogs,
}

// logsOptions selects log entries.
type logsOptions struct {
	RequestID string
	Component string
	Level     string
	Since     time.Duration
	Grep      string
	Tail      int
	JSON      bool
}

var logsOpts logsOptions

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().StringVar(&logsOpts.RequestID, "request", "", "Only entries for this request id")
	logsCmd.Flags().StringVar(&logsOpts.Component, "component", "", "Only entries from this component (e.g. dashboard, api)")
	logsCmd.Flags().StringVar(&logsOpts.Level, "level", "", "Filter by minimum level (debug/info/warn/error)")
	logsCmd.Flags().DurationVar(&logsOpts.Since, "since", 0, "Show logs since duration ago (e.g., 1h, 30m)")
	logsCmd.Flags().StringVar(&logsOpts.Grep, "grep", "", "Filter logs matching pattern (regex)")
	logsCmd.Flags().IntVarP(&logsOpts.Tail, "tail", "n", 50, "Number of entries to show (0 for all)")
	logsCmd.Flags().BoolVar(&logsOpts.JSON, "json", false, "Print entries as a JSON array")
}

func runLogs(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	dir := config.Get().Logging.ResolveDir()

	entries, err := logging.AggregateLogs(dir)
	if err != nil {
		if perrors.Is(err, os.ErrNotExist) {
			fmt.Fprintln(out, "No logs found.")
			fmt.Fprintln(out, "Logs are stored at:", filepath.Join(dir, logging.FileName))
			return nil
		}
		return err
	}

	entries, err = selectEntries(entries, logsOpts, time.Now())
	if err != nil {
		return err
	}

	if logsOpts.JSON {
		return logging.WriteJSON(out, entries)
	}
	if len(entries) == 0 {
		fmt.Fprintln(out, "No matching log entries found.")
		return nil
	}
	return logging.WriteText(out, entries)
}

// selectEntries applies opts to entries, keeping the newest Tail entries.
func selectEntries(entries []logging.LogEntry, opts logsOptions, now time.Time) ([]logging.LogEntry, error) {
	filter := logging.LogFilter{
		RequestID: opts.RequestID,
		Component: opts.Component,
	}
	if opts.Level != "" {
		filter.Level = logging.ParseLevel(opts.Level)
	}
	if opts.Since > 0 {
		filter.StartTime = now.Add(-opts.Since)
	}
	entries = logging.FilterLogs(entries, filter)

	if opts.Grep != "" {
		re, err := regexp.Compile(opts.Grep)
		if err != nil {
			return nil, fmt.Errorf("invalid grep pattern: %w", err)
		}
		var kept []logging.LogEntry
		for _, e := range entries {
			if re.MatchString(searchText(e)) {
				kept = append(kept, e)
			}
		}
		entries = kept
	}

	if opts.Tail > 0 && len(entries) > opts.Tail {
		entries = entries[len(entries)-opts.Tail:]
	}
	return entries, nil
}

// searchText is the message followed by every attribute value.
func searchText(e logging.LogEntry) string {
	var sb strings.Builder
	sb.WriteString(e.Message)
	for _, v := range e.Attrs {
		fmt.Fprintf(&sb, " %v", v)
	}
	return sb.String()
}
