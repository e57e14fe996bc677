package authservice

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/spaceflow-dev/spaceflow/internal/auth"
	"github.com/spaceflow-dev/spaceflow/internal/models"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionExpired     = errors.New("session expired or revoked")
)

// dummyHash is compared against when the email is unknown so both paths cost
// one bcrypt comparison
var dummyHash = sync.OnceValue(func() string {
	hash, _ := auth.HashPassword("spaceflow-unknown-user")
	return hash
})

// ClientMeta describes the client that opened a session
type ClientMeta struct {
	IP        string
	UserAgent string
}

// Service authenticates users and manages server-side sessions
type Service struct {
	db     *gorm.DB
	tokens *auth.TokenIssuer
	ttl    time.Duration
	logger zerolog.Logger
	now    func() time.Time
}

// NewService creates an auth service backed by db
func NewService(db *gorm.DB, tokens *auth.TokenIssuer, ttl time.Duration, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		tokens: tokens,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// TTL is the lifetime of new sessions
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// Authenticate checks credentials and opens a session. It returns the user
// and a signed session token.
func (s *Service) Authenticate(ctx context.Context, email, password string, meta ClientMeta) (*models.User, string, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", models.NormalizeEmail(email)).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			auth.CheckPassword(dummyHash(), password)
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", fmt.Errorf("failed to look up user: %w", err)
	}

	if !auth.CheckPassword(user.PasswordHash, password) {
		return nil, "", ErrInvalidCredentials
	}

	now := s.now()
	sess := models.AuthSession{
		BaseModel:  models.BaseModel{ID: ulid.Make().String()},
		UserID:     user.ID,
		ExpiresAt:  now.Add(s.ttl),
		LastSeenAt: now,
		ClientIP:   meta.IP,
		UserAgent:  meta.UserAgent,
	}
	if err := s.db.WithContext(ctx).Create(&sess).Error; err != nil {
		return nil, "", fmt.Errorf("failed to create session: %w", err)
	}

	token, err := s.tokens.Issue(sess.ID, user.ID, user.Role, now, sess.ExpiresAt)
	if err != nil {
		return nil, "", err
	}

	s.logger.Info().
		Str("user_id", user.ID).
		Str("session_id", sess.ID).
		Str("client_ip", meta.IP).
		Msg("User signed in")

	return &user, token, nil
}

// Validate resolves a session token to its user
func (s *Service) Validate(ctx context.Context, token string) (*models.User, *auth.SessionData, error) {
	now := s.now()
	claims, err := s.tokens.Parse(token, now)
	if err != nil {
		return nil, nil, err
	}

	var sess models.AuthSession
	if err := models.FindByIDWithPreload(s.db.WithContext(ctx), claims.ID, &sess, "User"); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrSessionNotFound
		}
		return nil, nil, fmt.Errorf("failed to load session: %w", err)
	}

	if !sess.Active(now) || sess.UserID != claims.Subject {
		return nil, nil, ErrSessionExpired
	}

	if err := s.db.WithContext(ctx).Model(&sess).Update("last_seen_at", now).Error; err != nil {
		s.logger.Warn().Err(err).Str("session_id", sess.ID).Msg("Failed to update session last seen")
	}

	data := &auth.SessionData{
		SessionID: sess.ID,
		UserID:    sess.User.ID,
		Email:     sess.User.Email,
		Role:      sess.User.Role,
	}
	return &sess.User, data, nil
}

// Revoke ends the session behind token. Unknown or invalid tokens are not an
// error.
func (s *Service) Revoke(ctx context.Context, token string) error {
	claims, err := s.tokens.Parse(token, s.now())
	if err != nil {
		return nil
	}

	now := s.now()
	result := s.db.WithContext(ctx).Model(&models.AuthSession{}).
		Where("id = ? AND revoked_at IS NULL", claims.ID).
		Update("revoked_at", now)
	if result.Error != nil {
		return fmt.Errorf("failed to revoke session: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		s.logger.Info().Str("session_id", claims.ID).Msg("Session revoked")
	}
	return nil
}

// SweepExpired deletes sessions that expired or were revoked
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("expires_at < ? OR revoked_at IS NOT NULL", s.now()).
		Delete(&models.AuthSession{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to sweep sessions: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Seed creates the given users unless an account with the same email exists
func (s *Service) Seed(ctx context.Context, users []SeedUser) error {
	for _, su := range users {
		email := models.NormalizeEmail(su.Email)

		var count int64
		if err := s.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check user %s: %w", email, err)
		}
		if count > 0 {
			continue
		}

		hash, err := auth.HashPassword(su.Password)
		if err != nil {
			return err
		}

		user := models.User{
			Email:        email,
			PasswordHash: hash,
			Name:         su.Name,
			Role:         su.Role,
			Workspace:    su.Workspace,
		}
		if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
			return fmt.Errorf("failed to create user %s: %w", email, err)
		}

		s.logger.Info().Str("email", email).Str("role", su.Role).Msg("Seeded user")
	}
	return nil
}
