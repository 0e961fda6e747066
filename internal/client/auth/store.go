package auth

import (
	"context"
	"fmt"

	"github.com/iudanet/coachsync/internal/client/storage"
	"github.com/iudanet/coachsync/internal/crypto"
)

// TokenStore is the encryption layer between the auth service and storage.
// Tokens are encrypted with the password-derived token key before saving and
// decrypted when retrieving; username, salt and expiry stay readable so the
// session can be unlocked later.
type TokenStore struct {
	storage storage.AuthStorage
}

// NewTokenStore creates a TokenStore over raw auth storage.
func NewTokenStore(storage storage.AuthStorage) *TokenStore {
	return &TokenStore{storage: storage}
}

// SaveAuth шифрует токены и сохраняет auth данные
func (s *TokenStore) SaveAuth(ctx context.Context, auth *storage.AuthData, tokenKey []byte) error {
	if auth == nil {
		return fmt.Errorf("auth data is nil")
	}

	access, err := crypto.EncryptString(auth.AccessToken, tokenKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt access token: %w", err)
	}

	stored := *auth // копируем, чтобы не менять входящую структуру
	stored.AccessToken = access
	stored.RefreshToken = ""
	if auth.RefreshToken != "" {
		stored.RefreshToken, err = crypto.EncryptString(auth.RefreshToken, tokenKey)
		if err != nil {
			return fmt.Errorf("failed to encrypt refresh token: %w", err)
		}
	}

	return s.storage.SaveAuth(ctx, &stored)
}

// GetAuth загружает auth данные и расшифровывает токены
func (s *TokenStore) GetAuth(ctx context.Context, tokenKey []byte) (*storage.AuthData, error) {
	stored, err := s.storage.GetAuth(ctx)
	if err != nil {
		return nil, err
	}

	auth := *stored
	auth.AccessToken, err = crypto.DecryptString(stored.AccessToken, tokenKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt access token: %w", err)
	}
	if stored.RefreshToken != "" {
		auth.RefreshToken, err = crypto.DecryptString(stored.RefreshToken, tokenKey)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt refresh token: %w", err)
		}
	}
	return &auth, nil
}

// GetAuthEncrypted returns the stored data without decrypting the tokens
// (used to read username and salt before unlocking).
func (s *TokenStore) GetAuthEncrypted(ctx context.Context) (*storage.AuthData, error) {
	return s.storage.GetAuth(ctx)
}

// DeleteAuth удаляет данные
func (s *TokenStore) DeleteAuth(ctx context.Context) error {
	return s.storage.DeleteAuth(ctx)
}
