package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/spaceflow-dev/spaceflow/internal/session"
)

// NewWatchCmd creates the watch command
func NewWatchCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print session changes as they happen",
		Long: `Watch keeps a session open and prints every change to it. In local mode,
a login or logout made by another spaceflow process sharing the same storage
file shows up here without restarting.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, env)
		},
	}
}

func runWatch(ctx context.Context, env *Env) error {
	store, err := env.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	unsubscribe := store.Subscribe(func(st session.State) {
		printState(env, st)
	})
	defer unsubscribe()

	if err := store.Start(); err != nil {
		return fmt.Errorf("failed to watch session: %w", err)
	}

	<-ctx.Done()
	return nil
}
