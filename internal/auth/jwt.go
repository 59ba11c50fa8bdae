// Package auth identifies callers from bearer tokens and decides device ownership.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/petrovoleh/solar-forecast/internal/forecast"
)

// RoleAdmin bypasses ownership checks.
const RoleAdmin = "ADMIN"

// ErrUnauthorized is returned for any token that cannot identify a caller.
var ErrUnauthorized = errors.New("unauthorized")

// SystemCaller is the identity background jobs run as.
var SystemCaller = forecast.Caller{ID: "system", Admin: true}

// Claims are the custom JWT claims; Subject carries the user id.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role,omitempty"`
}

// JWTService signs and validates HS256 tokens.
type JWTService struct {
	secret []byte
	issuer string
	log    *zap.Logger
}

func NewJWTService(secret, issuer string, log *zap.Logger) (*JWTService, error) {
	if secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &JWTService{secret: []byte(secret), issuer: issuer, log: log}, nil
}

// Issue signs a token for subject. Used by tests and tooling; the service
// itself only verifies tokens minted by the account backend.
func (s *JWTService) Issue(subject, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Role: role,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify validates a raw token and returns the caller it identifies.
func (s *JWTService) Verify(raw string) (forecast.Caller, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		s.log.Debug("token validation failed", zap.Error(err))
		return forecast.Caller{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return forecast.Caller{}, fmt.Errorf("%w: invalid token claims", ErrUnauthorized)
	}
	return forecast.Caller{
		ID:    claims.Subject,
		Admin: strings.EqualFold(claims.Role, RoleAdmin),
	}, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

// OwnershipPolicy grants access to a device's owner and to admins.
type OwnershipPolicy struct{}

func (OwnershipPolicy) IsOwnerOrAdmin(_ context.Context, ownerID string, caller forecast.Caller) (bool, error) {
	if caller.Admin {
		return true, nil
	}
	return caller.ID != "" && caller.ID == ownerID, nil
}
