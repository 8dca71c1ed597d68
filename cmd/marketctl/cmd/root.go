// Package cmd contains the marketctl commands.
package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/bizmarket/marketplace/internal/config"
)

var (
	envFile string
	verbose bool
	logger  *slog.Logger
)

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "marketctl",
		Short: "Marketplace client session tool",
		Long: `marketctl drives the headless marketplace client against a running backend.

Example usage:
  marketctl routes                                   # Show the guarded route table
  marketctl visit /seller/listings                   # Try a guarded page anonymously
  marketctl visit /seller --email s@x.io --password pw   # Log in when asked and resume`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if envFile != "" {
				config.LoadDotEnv(envFile)
			} else {
				config.LoadDotEnv()
			}
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
			return nil
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file to load (default .env)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	root.AddCommand(newVisitCmd(), newRoutesCmd())
	return root
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
