package storage

import (
	"context"
)

// AuthStorage defines interface for storing authentication data on client.
// It works with raw data (already encrypted tokens) and doesn't perform any
// encryption itself.
type AuthStorage interface {
	// SaveAuth stores authentication data as-is
	SaveAuth(ctx context.Context, auth *AuthData) error

	// GetAuth returns ErrAuthNotFound if no auth data exists
	GetAuth(ctx context.Context) (*AuthData, error)

	// DeleteAuth removes stored authentication data (logout)
	DeleteAuth(ctx context.Context) error
}

// AuthData represents authentication information in storage.
// In storage the tokens are encrypted (base64 ciphertext); the auth package
// encrypts and decrypts them.
type AuthData struct {
	Username     string `json:"username"`
	UserID       string `json:"user_id"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	PublicSalt   string `json:"public_salt"`
	ExpiresAt    int64  `json:"expires_at"` // unix seconds
}
