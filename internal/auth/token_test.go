package auth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyaware/skyaware/internal/auth"
)

const testKey = "test-secret-key-for-testing-only-0123456789"

func newTokenService() *auth.TokenService {
	return auth.NewTokenService(auth.TokenConfig{
		SigningKey: testKey,
		Issuer:     "skyaware",
		Audience:   "skyaware-ops",
	})
}

func TestTokenService_GenerateAndValidate(t *testing.T) {
	svc := newTokenService()

	token, expiresAt, err := svc.Generate("oncall", time.Hour)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "oncall", claims.Subject)
	assert.Equal(t, "skyaware", claims.Issuer)
	assert.Equal(t, auth.ScopeOps, claims.Scope)
}

func TestTokenService_TTLIsCapped(t *testing.T) {
	_, expiresAt, err := newTokenService().Generate("oncall", 365*24*time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(auth.MaxTokenTTL), expiresAt, 5*time.Second)
}

func TestTokenService_InvalidToken(t *testing.T) {
	svc := newTokenService()

	tests := []struct {
		name  string
		token string
	}{
		{"empty token", ""},
		{"malformed token", "not.a.valid.jwt"},
		{"invalid base64", "xxx.yyy.zzz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Validate(tt.token)
			assert.ErrorIs(t, err, auth.ErrInvalidToken)
		})
	}
}

func TestTokenService_WrongSigningKey(t *testing.T) {
	other := auth.NewTokenService(auth.TokenConfig{
		SigningKey: "another-secret-key-for-testing-only-012345",
		Issuer:     "skyaware",
		Audience:   "skyaware-ops",
	})
	token, _, err := other.Generate("oncall", time.Hour)
	require.NoError(t, err)

	_, err = newTokenService().Validate(token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestTokenService_WrongAudience(t *testing.T) {
	other := auth.NewTokenService(auth.TokenConfig{
		SigningKey: testKey,
		Issuer:     "skyaware",
		Audience:   "someone-else",
	})
	token, _, err := other.Generate("oncall", time.Hour)
	require.NoError(t, err)

	_, err = newTokenService().Validate(token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestTokenService_Expired(t *testing.T) {
	svc := newTokenService()
	token, _, err := svc.Generate("oncall", time.Minute)
	require.NoError(t, err)

	svc.SetClock(func() time.Time { return time.Now().Add(2 * time.Hour) })
	_, err = svc.Validate(token)
	assert.ErrorIs(t, err, auth.ErrTokenExpired)
}

func TestTokenService_MissingScope(t *testing.T) {
	claims := auth.ServiceClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "skyaware",
			Subject:   "oncall",
			Audience:  jwt.ClaimStrings{"skyaware-ops"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testKey))
	require.NoError(t, err)

	_, err = newTokenService().Validate(token)
	assert.ErrorIs(t, err, auth.ErrMissingScope)
}

func TestTokenService_NoSigningKey(t *testing.T) {
	svc := auth.NewTokenService(auth.TokenConfig{})
	assert.False(t, svc.Enabled())

	_, _, err := svc.Generate("oncall", time.Hour)
	assert.ErrorIs(t, err, auth.ErrNoSigningKey)

	_, err = svc.Validate("anything")
	assert.ErrorIs(t, err, auth.ErrNoSigningKey)
}
