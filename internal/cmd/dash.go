package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/Iron-Ham/prflow/internal/config"
	"github.com/Iron-Ham/prflow/internal/tui"
)

var dashCmd = &cobra.Command{
	Use:   "dash",
	Short: "Open the run dashboard",
	Long: `Open the terminal dashboard. Fill in the run form and press enter to
start a run; the timeline, agent panel, result and event log update live as
the backend streams events.

Changes to the config file are picked up while the dashboard runs.`,
	Args: cobra.NoArgs,
	RunE: runDash,
}

func init() {
	rootCmd.AddCommand(dashCmd)
}

func runDash(cmd *cobra.Command, args []string) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("the dashboard needs a terminal; use 'prflow run' for headless runs")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	rt, err := newRuntime(cfg, io.Discard)
	if err != nil {
		return err
	}
	defer rt.Close()

	app := tui.New(cmd.Context(), rt.controller(), tui.Options{
		BaseURL: rt.client.BaseURL(),
		Health:  rt.client.Health,
		Form:    cfg.Form,
		TUI:     cfg.TUI,
	})

	config.Watch(viper.GetViper(),
		func(path string, next *config.Config) {
			rt.logger.Info("config reloaded", "path", path)
			app.ReloadConfig(path, next)
		},
		func(err error) {
			rt.logger.Warn("config reload rejected", "error", err.Error())
		},
	)

	if err := app.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
