package auth

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const (
	service = "spaceflow-cli"
)

// ErrNoSession is returned by LoadCookie when nothing is stored
var ErrNoSession = errors.New("not signed in. Please run 'spaceflow login' first")

// getKeyringKey returns a unique key for storing session cookies per auth service
func getKeyringKey(baseURL string) string {
	return fmt.Sprintf("session-%s", baseURL)
}

// SaveCookie persists the session cookie securely in the OS keychain/credential manager
func SaveCookie(baseURL, cookie string) error {
	key := getKeyringKey(baseURL)
	if err := keyring.Set(service, key, cookie); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// LoadCookie retrieves the session cookie from the OS keychain/credential manager
func LoadCookie(baseURL string) (string, error) {
	key := getKeyringKey(baseURL)
	cookie, err := keyring.Get(service, key)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNoSession
		}
		return "", fmt.Errorf("failed to load session: %w", err)
	}
	return cookie, nil
}

// DeleteCookie removes the session cookie from the OS keychain/credential manager
func DeleteCookie(baseURL string) error {
	key := getKeyringKey(baseURL)
	if err := keyring.Delete(service, key); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil // Already deleted
		}
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
