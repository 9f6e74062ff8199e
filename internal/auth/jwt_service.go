package auth

import (
	"context"
	"time"
)

// MinSecretLength is the shortest accepted HMAC signing secret
const MinSecretLength = 32

// JWTService defines operations for managing JWT access tokens.
type JWTService interface {
	// GenerateToken creates a signed access token for the owner.
	GenerateToken(ctx context.Context, ownerID string) (string, error)

	// ValidateToken validates the token string and extracts its claims.
	ValidateToken(ctx context.Context, tokenString string) (*Claims, error)
}

// Claims holds the validated token contents.
type Claims struct {
	// OwnerID is the token subject
	OwnerID   string    `json:"sub"`
	IssuedAt  time.Time `json:"iat,omitempty"`
	ExpiresAt time.Time `json:"exp,omitempty"`
	ID        string    `json:"jti,omitempty"`
}
