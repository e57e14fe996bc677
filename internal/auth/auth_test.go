package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-0123456789"

func TestNewTokenIssuerRejectsShortSecret(t *testing.T) {
	_, err := NewTokenIssuer("short")
	require.Error(t, err)
}

func TestIssueAndParse(t *testing.T) {
	issuer, err := NewTokenIssuer(testSecret)
	require.NoError(t, err)

	now := time.Date(2025, 1, 13, 9, 0, 0, 0, time.UTC)
	token, err := issuer.Issue("sess-1", "user-1", "ADMIN", now, now.Add(time.Hour))
	require.NoError(t, err)

	claims, err := issuer.Parse(token, now.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, "sess-1", claims.ID)
	require.Equal(t, "user-1", claims.Subject)
	require.Equal(t, "ADMIN", claims.Role)
}

func TestParseRejects(t *testing.T) {
	issuer, err := NewTokenIssuer(testSecret)
	require.NoError(t, err)
	other, err := NewTokenIssuer("another-secret-0123456789")
	require.NoError(t, err)

	now := time.Date(2025, 1, 13, 9, 0, 0, 0, time.UTC)
	valid, err := issuer.Issue("sess-1", "user-1", "VIEWER", now, now.Add(time.Hour))
	require.NoError(t, err)
	foreign, err := other.Issue("sess-1", "user-1", "VIEWER", now, now.Add(time.Hour))
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{Role: "ADMIN"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		at    time.Time
	}{
		{name: "expired", token: valid, at: now.Add(2 * time.Hour)},
		{name: "wrong secret", token: foreign, at: now},
		{name: "alg none", token: unsigned, at: now},
		{name: "garbage", token: "not.a.jwt", at: now},
		{name: "empty", token: "", at: now},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := issuer.Parse(tt.token, tt.at)
			require.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("admin123")
	require.NoError(t, err)
	require.NotEqual(t, "admin123", hash)
	require.True(t, CheckPassword(hash, "admin123"))
	require.False(t, CheckPassword(hash, "admin124"))
	require.False(t, CheckPassword("not-a-hash", "admin123"))
}
