// Package auth issues and validates the HS256 session tokens carried on
// API requests.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"examduler/internal/platform/middleware"
	"examduler/internal/users"
)

// Claims are the token claims. TokenVersion is checked against the user
// store on every validation, so bumping a user's version revokes every
// token issued before the bump.
type Claims struct {
	UserID       string `json:"user_id"`
	Role         string `json:"role"`
	TokenVersion int    `json:"token_version"`
	jwt.RegisteredClaims
}

// Service signs and validates session tokens. It satisfies
// middleware.JWTValidator.
type Service struct {
	signingKey []byte
	issuer     string
	users      users.Store
}

func NewService(signingKey string, issuer string, userStore users.Store) *Service {
	return &Service{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		users:      userStore,
	}
}

// GenerateAccessToken issues a token bound to the user's current token
// version.
func (s *Service) GenerateAccessToken(ctx context.Context, userID uuid.UUID, role users.Role, expiresIn time.Duration) (string, error) {
	version, err := s.users.TokenVersion(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("resolve token version: %w", err)
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID:       userID.String(),
		Role:         string(role),
		TokenVersion: version,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    s.issuer,
			ID:        uuid.NewString(),
		},
	})
	return token.SignedString(s.signingKey)
}

// ValidateToken parses and verifies a token, then checks that its embedded
// token version still matches the stored one.
func (s *Service) ValidateToken(ctx context.Context, tokenString string) (*middleware.JWTClaims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, errors.New("token has expired")
		}
		return nil, errors.New("invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token claims")
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, errors.New("invalid token subject")
	}

	version, err := s.users.TokenVersion(ctx, userID)
	if err != nil {
		return nil, errors.New("unknown user")
	}
	if version != claims.TokenVersion {
		return nil, errors.New("token has been revoked")
	}

	return &middleware.JWTClaims{UserID: userID, Role: claims.Role}, nil
}
