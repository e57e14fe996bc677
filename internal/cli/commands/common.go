package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/spaceflow-dev/spaceflow/internal/authclient"
	"github.com/spaceflow-dev/spaceflow/internal/cli/auth"
	"github.com/spaceflow-dev/spaceflow/internal/cli/userconfig"
	"github.com/spaceflow-dev/spaceflow/internal/config"
	"github.com/spaceflow-dev/spaceflow/internal/session"
	"github.com/spaceflow-dev/spaceflow/internal/storage"
)

// Env carries what every command needs. Tests replace parts of it.
type Env struct {
	Config *config.Config
	Logger zerolog.Logger
	Out    io.Writer

	// Cookies keeps the remote session cookie between runs
	Cookies auth.CookieStore

	// ServerURL overrides the auth service base URL (--server)
	ServerURL string

	// ReadPassword prompts for a password; nil means stdin must be a terminal
	ReadPassword func() (string, error)
}

// serverURL resolves the auth service: flag, then the last login, then config
func (e *Env) serverURL() string {
	if e.ServerURL != "" {
		return e.ServerURL
	}
	if uc, err := userconfig.Load(); err == nil && uc.ServerURL != "" {
		return uc.ServerURL
	}
	return e.Config.Services.AuthBaseURL
}

func (e *Env) readPassword() (string, error) {
	if e.ReadPassword != nil {
		return e.ReadPassword()
	}

	// Check if stdin is a terminal (not piped)
	if !term.IsTerminal(int(syscall.Stdin)) {
		return "", fmt.Errorf("password is required in non-interactive mode (use --password flag or SPACEFLOW_PASSWORD env var)")
	}
	fmt.Fprint(e.Out, "Password: ")
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(e.Out) // New line after password input
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(bytePassword), nil
}

// openStore builds the session store for this process. Like a browser tab, a
// CLI process owns one store; processes sharing the local storage file see
// each other's logins.
func (e *Env) openStore() (*session.Store, error) {
	cfg := e.Config

	if cfg.Auth.DemoMode {
		return session.New(session.Options{Demo: true, Logger: e.Logger})
	}

	switch cfg.Auth.Mode {
	case config.AuthModeLocal:
		file, err := storage.OpenFile(cfg.Auth.LocalStorePath, e.Logger)
		if err != nil {
			return nil, err
		}
		return session.New(session.Options{
			Backend:    session.NewLocalBackend(file, cfg.Auth.StorageKey, e.Logger),
			Feed:       file,
			StorageKey: cfg.Auth.StorageKey,
			Logger:     e.Logger,
		})

	default:
		baseURL := e.serverURL()
		if baseURL == "" {
			return nil, fmt.Errorf("no auth server configured (use --server or SPACEFLOW_AUTH_API_BASE_URL)")
		}
		backend, err := newRemoteBackend(baseURL, cfg.Auth.CookieName, e.Cookies)
		if err != nil {
			return nil, err
		}
		return session.New(session.Options{Backend: backend, Logger: e.Logger})
	}
}

// bootstrap opens the store and resolves the stored session
func (e *Env) bootstrap(ctx context.Context) (*session.Store, error) {
	store, err := e.openStore()
	if err != nil {
		return nil, err
	}
	store.Bootstrap(ctx)
	if err := store.Wait(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

// remoteBackend is the auth client plus keyring persistence of its cookie
type remoteBackend struct {
	*authclient.Client
	baseURL string
	cookies auth.CookieStore
}

var _ session.Persister = (*remoteBackend)(nil)

func newRemoteBackend(baseURL, cookieName string, cookies auth.CookieStore) (*remoteBackend, error) {
	client, err := authclient.New(baseURL, cookieName)
	if err != nil {
		return nil, err
	}

	cookie, err := cookies.LoadCookie(baseURL)
	switch {
	case err == nil:
		client.RestoreSessionCookie(cookie)
	case errors.Is(err, auth.ErrNoSession):
	default:
		return nil, err
	}

	return &remoteBackend{Client: client, baseURL: baseURL, cookies: cookies}, nil
}

// Persist saves the cookie after a login and forgets it after a logout
func (b *remoteBackend) Persist(user *session.User) error {
	if user == nil {
		return b.cookies.DeleteCookie(b.baseURL)
	}
	cookie := b.SessionCookie()
	if cookie == "" {
		return fmt.Errorf("auth server did not set a session cookie")
	}
	return b.cookies.SaveCookie(b.baseURL, cookie)
}

func envOr(value, key string) string {
	if value != "" {
		return value
	}
	return os.Getenv(key)
}
