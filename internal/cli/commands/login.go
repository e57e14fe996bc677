package commands

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spaceflow-dev/spaceflow/internal/authclient"
	"github.com/spaceflow-dev/spaceflow/internal/cli/userconfig"
	"github.com/spaceflow-dev/spaceflow/internal/config"
	"github.com/spaceflow-dev/spaceflow/internal/session"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// NewLoginCmd creates the login command
func NewLoginCmd(env *Env) *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to SpaceFlow",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(cmd.Context(), env, email, password)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Email address (or set SPACEFLOW_EMAIL)")
	cmd.Flags().StringVar(&password, "password", "", "Password (or set SPACEFLOW_PASSWORD, will prompt if not provided)")

	return cmd
}

func runLogin(ctx context.Context, env *Env, email, password string) error {
	// Check for environment variables (useful for CI/CD)
	email = strings.TrimSpace(envOr(email, "SPACEFLOW_EMAIL"))
	password = envOr(password, "SPACEFLOW_PASSWORD")

	if email == "" {
		if uc, err := userconfig.Load(); err == nil {
			email = uc.LastEmail
		}
	}
	if email == "" {
		return fmt.Errorf("email is required (use --email flag or SPACEFLOW_EMAIL env var)")
	}
	if !emailPattern.MatchString(email) {
		return fmt.Errorf("%q is not a valid email address", email)
	}

	if password == "" {
		p, err := env.readPassword()
		if err != nil {
			return err
		}
		password = p
	}
	if strings.TrimSpace(password) == "" {
		return fmt.Errorf("password is required")
	}

	store, err := env.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	remote := !env.Config.Auth.DemoMode && env.Config.Auth.Mode == config.AuthModeRemote
	if remote {
		fmt.Fprintf(env.Out, "Signing in to %s...\n", env.serverURL())
	}

	user, err := store.Login(ctx, session.Credentials{Email: email, Password: password})
	if err != nil {
		if errors.Is(err, authclient.ErrInvalidCredentials) {
			return fmt.Errorf("unable to sign in. Please check your credentials and try again")
		}
		return fmt.Errorf("login failed: %w", err)
	}

	if remote {
		if err := userconfig.RememberLogin(env.serverURL(), email); err != nil {
			env.Logger.Warn().Err(err).Msg("Failed to remember login server")
		}
	}

	fmt.Fprintln(env.Out, "✓ Login successful!")
	fmt.Fprintf(env.Out, "  User: %s\n", user.DisplayName())
	fmt.Fprintf(env.Out, "  Role: %s\n", user.Role)
	if env.Config.Auth.DemoMode {
		fmt.Fprintln(env.Out, "  (demo mode: credentials were not checked)")
	}

	return nil
}
