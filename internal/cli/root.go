// Package cli provides the petchat command-line interface.
package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"petchat/internal/config"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	verbose bool

	cfg        *config.Config
	logger     *slog.Logger
	logCleanup func() error
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "petchat",
	Short: "Real-time chat client for the pet-sitting marketplace",
	Long: `Petchat is the chat engine and terminal client for the pet-sitting
marketplace. It merges REST history, optimistic local sends, and live push
events into one consistent timeline per conversation.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		if verbose {
			cfg.LogLevel = slog.LevelDebug
		}

		logger, logCleanup = config.SetupLogger(cfg.LogFile, cfg.LogLevel)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCleanup != nil {
			_ = logCleanup()
		}
	},
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(devserverCmd)
}
