package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// NewLogoutCmd creates the logout command
func NewLogoutCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out of SpaceFlow",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogout(cmd.Context(), env)
		},
	}
}

func runLogout(ctx context.Context, env *Env) error {
	store, err := env.bootstrap(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	// A stored cookie may outlive an unreachable server; clear it either way.
	// Server errors are logged by the store.
	signedIn := store.Snapshot().IsAuthenticated()
	_ = store.Logout(ctx)
	if !signedIn {
		fmt.Fprintln(env.Out, "Not signed in")
		return nil
	}
	fmt.Fprintln(env.Out, "✓ Signed out")
	return nil
}
