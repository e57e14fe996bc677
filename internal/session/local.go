package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// ErrEmailRequired is returned by LocalBackend.Login for a blank email
var ErrEmailRequired = errors.New("email is required")

// KeyValue is string storage shared between tabs
type KeyValue interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	Remove(key string) error
}

// LocalBackend keeps the signed-in user in storage only. It performs no
// network calls; login accepts any email.
type LocalBackend struct {
	kv  KeyValue
	key string
	log zerolog.Logger
}

func NewLocalBackend(kv KeyValue, key string, log zerolog.Logger) *LocalBackend {
	return &LocalBackend{kv: kv, key: key, log: log}
}

// Validate reads the stored user. A corrupt entry is removed and treated as
// no session.
func (b *LocalBackend) Validate(ctx context.Context) (*User, error) {
	raw, ok, err := b.kv.Get(b.key)
	if err != nil {
		return nil, fmt.Errorf("failed to read stored session: %w", err)
	}
	if !ok {
		return nil, nil
	}

	user, err := DecodeUser(raw)
	if err != nil {
		b.log.Warn().Err(err).Str("key", b.key).Msg("Discarding corrupt stored session")
		if rmErr := b.kv.Remove(b.key); rmErr != nil {
			b.log.Warn().Err(rmErr).Msg("Failed to remove corrupt stored session")
		}
		return nil, nil
	}
	return user, nil
}

// Login builds the local user. The password is ignored. Storage is written by
// Persist once the store commits the user.
func (b *LocalBackend) Login(ctx context.Context, creds Credentials) (*User, error) {
	email := strings.TrimSpace(creds.Email)
	if email == "" {
		return nil, ErrEmailRequired
	}
	return &User{
		ID:    email,
		Role:  RoleWorkspaceAdmin,
		Email: email,
	}, nil
}

func (b *LocalBackend) Logout(ctx context.Context) error {
	return nil
}

func (b *LocalBackend) Persist(user *User) error {
	if user == nil {
		return b.kv.Remove(b.key)
	}
	raw, err := EncodeUser(user)
	if err != nil {
		return err
	}
	return b.kv.Set(b.key, raw)
}
