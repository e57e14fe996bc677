package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spaceflow-dev/spaceflow/internal/session"
)

// NewWhoamiCmd creates the whoami command
func NewWhoamiCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWhoami(cmd.Context(), env)
		},
	}
}

func runWhoami(ctx context.Context, env *Env) error {
	store, err := env.bootstrap(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	printState(env, store.Snapshot())
	return nil
}

func printState(env *Env, st session.State) {
	switch st.Status() {
	case session.StatusLoading:
		fmt.Fprintln(env.Out, "Checking session...")
	case session.StatusUnauthenticated:
		fmt.Fprintln(env.Out, "Not signed in")
	default:
		u := st.User
		fmt.Fprintf(env.Out, "Signed in as %s (%s)\n", u.DisplayName(), u.Role)
		if u.Email != "" && u.Email != u.DisplayName() {
			fmt.Fprintf(env.Out, "  Email: %s\n", u.Email)
		}
		if u.Workspace != "" {
			fmt.Fprintf(env.Out, "  Workspace: %s\n", u.Workspace)
		}
	}
}
