package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/spaceflow-dev/spaceflow/internal/cli/auth"
	"github.com/spaceflow-dev/spaceflow/internal/cli/commands"
	"github.com/spaceflow-dev/spaceflow/internal/config"
	"github.com/spaceflow-dev/spaceflow/internal/logger"
)

var version = "dev" // Will be set during build

// NewRootCmd builds the spaceflow command tree writing to out
func NewRootCmd(out io.Writer) *cobra.Command {
	env := &commands.Env{
		Out:     out,
		Cookies: auth.Default,
	}
	var verbose bool

	rootCmd := &cobra.Command{
		Use:   "spaceflow",
		Short: "SpaceFlow - workspace analytics from the terminal",
		Long: `SpaceFlow CLI - sign in to a SpaceFlow server and read its advisory
recommendations.

The auth mode follows the server configuration: SPACEFLOW_AUTH_MODE=remote
talks to the auth service, local keeps the session in a storage file shared
by every spaceflow process, and SPACEFLOW_DEMO_AUTH signs in as the demo user.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			env.Config = cfg

			level := "warn"
			if verbose {
				level = "debug"
			}
			env.Logger = logger.Init(level, "console", os.Stderr)
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&env.ServerURL, "server", "", "Auth server base URL (default: last login or SPACEFLOW_AUTH_API_BASE_URL)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output to stderr")

	// Add version command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(out, "spaceflow version %s\n", version)
		},
	})

	// Add all subcommands
	rootCmd.AddCommand(commands.NewLoginCmd(env))
	rootCmd.AddCommand(commands.NewLogoutCmd(env))
	rootCmd.AddCommand(commands.NewWhoamiCmd(env))
	rootCmd.AddCommand(commands.NewWatchCmd(env))
	rootCmd.AddCommand(commands.NewRecommendationsCmd(env))
	rootCmd.AddCommand(commands.NewDashCmd(env))

	return rootCmd
}

// Execute runs the root command
func Execute() error {
	if err := NewRootCmd(os.Stdout).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}
