package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	configcmd "github.com/Iron-Ham/prflow/internal/cmd/config"
	"github.com/Iron-Ham/prflow/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "prflow",
	Short: "Terminal dashboard for the issue-to-PR workflow",
	Long: `prflow starts runs on the workflow backend and follows them live:
the backend turns a GitHub issue into a branch, a commit and a pull request
while prflow reconciles its event stream into a step timeline, per-agent
summaries and the final result.

Without a subcommand, prflow opens the dashboard.`,
	SilenceUsage: true,
	RunE:         runDash,
}

// Execute runs the root command. Canceling ctx cancels the active run.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/prflow/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))

	configcmd.Register(rootCmd)
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath(".")
	}

	// PRFLOW_API_BASE_URL for api.base_url
	config.ConfigureEnv(viper.GetViper())

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
