package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/phrazzld/insight-api/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-that-is-at-least-32-characters-long"

func testConfig() config.AuthConfig {
	return config.AuthConfig{JWTSecret: testSecret, TokenLifetime: time.Hour}
}

func TestNewJWTService_WeakSecret(t *testing.T) {
	t.Parallel()
	_, err := NewJWTService(config.AuthConfig{JWTSecret: "short"})
	assert.ErrorIs(t, err, ErrWeakSecret)
}

func TestJWTService_RoundTrip(t *testing.T) {
	t.Parallel()
	svc, err := NewJWTService(testConfig())
	require.NoError(t, err)

	ctx := context.Background()
	token, err := svc.GenerateToken(ctx, "owner-42")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "owner-42", claims.OwnerID)
	assert.NotEmpty(t, claims.ID)
	assert.WithinDuration(t, claims.IssuedAt.Add(time.Hour), claims.ExpiresAt, time.Second)
}

func TestJWTService_GenerateToken_EmptyOwner(t *testing.T) {
	t.Parallel()
	svc, err := NewJWTService(testConfig())
	require.NoError(t, err)

	_, err = svc.GenerateToken(context.Background(), "")
	assert.ErrorIs(t, err, ErrMissingSubject)
}

func TestJWTService_ValidateToken_Errors(t *testing.T) {
	t.Parallel()

	issuedAt := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	issuer, err := NewJWTServiceWithClock(testConfig(), func() time.Time { return issuedAt })
	require.NoError(t, err)
	token, err := issuer.GenerateToken(context.Background(), "owner-1")
	require.NoError(t, err)

	t.Run("expired beyond clock skew", func(t *testing.T) {
		t.Parallel()
		later, err := NewJWTServiceWithClock(testConfig(), func() time.Time {
			return issuedAt.Add(2 * time.Hour)
		})
		require.NoError(t, err)
		_, err = later.ValidateToken(context.Background(), token)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})

	t.Run("within clock skew", func(t *testing.T) {
		t.Parallel()
		later, err := NewJWTServiceWithClock(testConfig(), func() time.Time {
			return issuedAt.Add(time.Hour + time.Minute)
		})
		require.NoError(t, err)
		_, err = later.ValidateToken(context.Background(), token)
		assert.NoError(t, err)
	})

	t.Run("wrong secret", func(t *testing.T) {
		t.Parallel()
		other, err := NewJWTServiceWithClock(config.AuthConfig{
			JWTSecret:     "another-secret-that-is-at-least-32-characters",
			TokenLifetime: time.Hour,
		}, func() time.Time { return issuedAt })
		require.NoError(t, err)
		_, err = other.ValidateToken(context.Background(), token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("malformed", func(t *testing.T) {
		t.Parallel()
		_, err := issuer.ValidateToken(context.Background(), "not.a.jwt")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("missing subject", func(t *testing.T) {
		t.Parallel()
		raw := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(time.Hour)),
		})
		signed, err := raw.SignedString([]byte(testSecret))
		require.NoError(t, err)

		_, err = issuer.ValidateToken(context.Background(), signed)
		assert.ErrorIs(t, err, ErrMissingSubject)
	})

	t.Run("unexpected signing method", func(t *testing.T) {
		t.Parallel()
		raw := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.RegisteredClaims{
			Subject:   "owner-1",
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(time.Hour)),
		})
		signed, err := raw.SignedString([]byte(testSecret))
		require.NoError(t, err)

		_, err = issuer.ValidateToken(context.Background(), signed)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}
