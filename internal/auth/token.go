// Package auth issues and validates the service tokens that guard the
// operational endpoints.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Service tokens are HS256 JWTs minted by operators (see cmd/opstoken) and
// presented as Bearer tokens to /v1/ops/status. They carry no user identity,
// only a subject naming the caller and an ops scope.

const (
	// DefaultTokenTTL is used when a token is minted without an explicit TTL.
	DefaultTokenTTL = 24 * time.Hour

	// MaxTokenTTL caps the lifetime of any service token.
	MaxTokenTTL = 90 * 24 * time.Hour

	// ScopeOps is the only scope accepted by the ops endpoints.
	ScopeOps = "ops:read"
)

// Token errors.
var (
	ErrInvalidToken = errors.New("invalid service token")
	ErrTokenExpired = errors.New("service token has expired")
	ErrMissingScope = errors.New("service token lacks required scope")
	ErrNoSigningKey = errors.New("no token signing key configured")
)

// ServiceClaims are the claims carried by a service token.
type ServiceClaims struct {
	jwt.RegisteredClaims

	Scope string `json:"scope"`
}

// TokenConfig holds configuration for the token service.
type TokenConfig struct {
	// SigningKey is the HMAC secret. An empty key rejects every token.
	SigningKey string

	// Issuer is the iss claim, e.g. "skyaware".
	Issuer string

	// Audience is the aud claim, e.g. "skyaware-ops".
	Audience string
}

// TokenService mints and validates service tokens.
type TokenService struct {
	signingKey []byte
	issuer     string
	audience   string
	now        func() time.Time
}

// NewTokenService creates a new token service.
func NewTokenService(cfg TokenConfig) *TokenService {
	return &TokenService{
		signingKey: []byte(cfg.SigningKey),
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		now:        time.Now,
	}
}

// Enabled reports whether a signing key is configured.
func (s *TokenService) Enabled() bool {
	return len(s.signingKey) > 0
}

// Generate mints a token for subject valid for ttl (DefaultTokenTTL when
// zero, capped at MaxTokenTTL).
func (s *TokenService) Generate(subject string, ttl time.Duration) (string, time.Time, error) {
	if !s.Enabled() {
		return "", time.Time{}, ErrNoSigningKey
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	ttl = min(ttl, MaxTokenTTL)

	now := s.now()
	expiresAt := now.Add(ttl)

	claims := ServiceClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
			ID:        generateTokenID(),
		},
		Scope: ScopeOps,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing service token: %w", err)
	}
	return signed, expiresAt, nil
}

// Validate parses tokenString and returns its claims. The token must be
// HS256, unexpired, issued by this service for its audience, and carry
// ScopeOps.
func (s *TokenService) Validate(tokenString string) (*ServiceClaims, error) {
	if !s.Enabled() {
		return nil, ErrNoSigningKey
	}

	token, err := jwt.ParseWithClaims(tokenString, &ServiceClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.signingKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidToken, err.Error())
	}

	claims, ok := token.Claims.(*ServiceClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Scope != ScopeOps {
		return nil, ErrMissingScope
	}
	return claims, nil
}

// SetClock replaces the time source. Intended for tests.
func (s *TokenService) SetClock(now func() time.Time) {
	s.now = now
}

func generateTokenID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
