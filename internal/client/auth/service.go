// Package auth registers and logs in the coach, keeps the encrypted session
// and hands the bearer credential to the sync processor.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/iudanet/coachsync/internal/client/storage"
	"github.com/iudanet/coachsync/internal/clock"
	"github.com/iudanet/coachsync/internal/crypto"
	"github.com/iudanet/coachsync/internal/validation"
	"github.com/iudanet/coachsync/pkg/api"
)

var (
	// ErrNotLoggedIn is returned when no session is stored.
	ErrNotLoggedIn = errors.New("not logged in")
	// ErrInvalidPassword is returned by Unlock when the stored tokens cannot be
	// decrypted with the given password.
	ErrInvalidPassword = errors.New("invalid master password")
)

// APIClient is the subset of the backend API used for authentication.
type APIClient interface {
	Register(ctx context.Context, req api.RegisterRequest) (*api.RegisterResponse, error)
	GetSalt(ctx context.Context, username string) (*api.SaltResponse, error)
	Login(ctx context.Context, req api.LoginRequest) (*api.TokenResponse, error)
}

// Status describes the stored session.
type Status struct {
	ExpiresAt time.Time
	Username  string
	UserID    string
	LoggedIn  bool
	Unlocked  bool
	Expired   bool
}

// session is the decrypted credential held in memory after Login or Unlock.
type session struct {
	expiresAt   time.Time
	accessToken string
}

// Service предоставляет функции авторизации
type Service struct {
	apiClient APIClient
	store     *TokenStore
	clock     clock.Clock
	logger    *slog.Logger
	session   *session
	mu        sync.RWMutex
}

// NewService создает новый сервис авторизации
func NewService(apiClient APIClient, store *TokenStore, clk clock.Clock, logger *slog.Logger) *Service {
	return &Service{
		apiClient: apiClient,
		store:     store,
		clock:     clk,
		logger:    logger,
	}
}

// RegisterResult содержит результат регистрации
type RegisterResult struct {
	UserID     string
	Username   string
	PublicSalt string
}

// Register регистрирует нового пользователя. Пароль на сервер не передается,
// только sha256 от auth_key.
func (s *Service) Register(ctx context.Context, username, masterPassword string) (*RegisterResult, error) {
	if err := validation.ValidateUsername(username); err != nil {
		return nil, fmt.Errorf("invalid username: %w", err)
	}
	if err := validation.ValidatePassword(masterPassword); err != nil {
		return nil, fmt.Errorf("invalid password: %w", err)
	}

	// 1. Генерируем публичную соль
	salt, err := crypto.GenerateSalt()
	if err != nil {
		return nil, err
	}

	// 2. Деривируем ключи и хешируем auth_key
	authKeyHash, _, err := deriveAuth(masterPassword, username, salt)
	if err != nil {
		return nil, err
	}

	// 3. Отправляем запрос на регистрацию
	resp, err := s.apiClient.Register(ctx, api.RegisterRequest{
		Username:    username,
		AuthKeyHash: authKeyHash,
		PublicSalt:  salt,
	})
	if err != nil {
		return nil, fmt.Errorf("registration failed: %w", err)
	}

	s.logger.Info("user registered", "username", username, "user_id", resp.UserID)
	return &RegisterResult{
		UserID:     resp.UserID,
		Username:   username,
		PublicSalt: salt,
	}, nil
}

// Login authenticates against the server, stores the encrypted tokens and
// unlocks the session.
func (s *Service) Login(ctx context.Context, username, masterPassword string) (*Status, error) {
	if err := validation.ValidateUsername(username); err != nil {
		return nil, fmt.Errorf("invalid username: %w", err)
	}
	if masterPassword == "" {
		return nil, fmt.Errorf("invalid password: password cannot be empty")
	}

	// 1. Получаем public_salt с сервера
	saltResp, err := s.apiClient.GetSalt(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to get salt: %w", err)
	}

	// 2. Деривируем ключи
	authKeyHash, tokenKey, err := deriveAuth(masterPassword, username, saltResp.PublicSalt)
	if err != nil {
		return nil, err
	}

	// 3. Логинимся
	resp, err := s.apiClient.Login(ctx, api.LoginRequest{Username: username, AuthKeyHash: authKeyHash})
	if err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}

	// 4. Сохраняем токены в зашифрованном виде
	var expiresAt int64
	if resp.ExpiresIn > 0 {
		expiresAt = s.clock.Now().Add(time.Duration(resp.ExpiresIn) * time.Second).Unix()
	}
	data := &storage.AuthData{
		Username:     username,
		UserID:       resp.UserID,
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		PublicSalt:   saltResp.PublicSalt,
		ExpiresAt:    expiresAt,
	}
	if err := s.store.SaveAuth(ctx, data, tokenKey); err != nil {
		return nil, fmt.Errorf("failed to save auth data: %w", err)
	}

	s.setSession(data)
	s.logger.Info("logged in", "username", username)
	return s.Status(ctx)
}

// Unlock decrypts the stored session with the master password so the
// processor can deliver. Needed once per process start.
func (s *Service) Unlock(ctx context.Context, masterPassword string) error {
	stored, err := s.store.GetAuthEncrypted(ctx)
	if errors.Is(err, storage.ErrAuthNotFound) {
		return ErrNotLoggedIn
	}
	if err != nil {
		return fmt.Errorf("failed to load auth data: %w", err)
	}

	_, tokenKey, err := deriveAuth(masterPassword, stored.Username, stored.PublicSalt)
	if err != nil {
		return err
	}

	data, err := s.store.GetAuth(ctx, tokenKey)
	if err != nil {
		// AES-GCM не расшифровывает чужим ключом
		return ErrInvalidPassword
	}

	s.setSession(data)
	s.logger.Debug("session unlocked", "username", data.Username)
	return nil
}

// Lock forgets the decrypted credential.
func (s *Service) Lock() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = nil
}

// Logout removes the stored session. Queued items stay in the queue and are
// delivered after the next login.
func (s *Service) Logout(ctx context.Context) error {
	s.Lock()
	if err := s.store.DeleteAuth(ctx); err != nil && !errors.Is(err, storage.ErrAuthNotFound) {
		return fmt.Errorf("failed to delete local auth data: %w", err)
	}
	s.logger.Info("logged out")
	return nil
}

// Status reports the stored session without requiring the password.
func (s *Service) Status(ctx context.Context) (*Status, error) {
	stored, err := s.store.GetAuthEncrypted(ctx)
	if errors.Is(err, storage.ErrAuthNotFound) {
		return &Status{}, nil
	}
	if err != nil {
		return nil, err
	}

	st := &Status{
		Username: stored.Username,
		UserID:   stored.UserID,
		LoggedIn: true,
	}
	if stored.ExpiresAt > 0 {
		st.ExpiresAt = time.Unix(stored.ExpiresAt, 0)
	}

	s.mu.RLock()
	sess := s.session
	s.mu.RUnlock()
	if sess != nil {
		st.Unlocked = true
		st.ExpiresAt = sess.expiresAt
	}
	st.Expired = !st.ExpiresAt.IsZero() && !s.clock.Now().Before(st.ExpiresAt)
	return st, nil
}

// CurrentCredential returns the bearer token if the session is unlocked and
// not expired.
func (s *Service) CurrentCredential(_ context.Context) (string, bool) {
	s.mu.RLock()
	sess := s.session
	s.mu.RUnlock()

	if sess == nil || sess.accessToken == "" {
		return "", false
	}
	if !sess.expiresAt.IsZero() && !s.clock.Now().Add(expirySkew).Before(sess.expiresAt) {
		return "", false
	}
	return sess.accessToken, true
}

func (s *Service) setSession(data *storage.AuthData) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = &session{
		accessToken: data.AccessToken,
		expiresAt:   credentialExpiry(data.AccessToken, data.ExpiresAt),
	}
}

// deriveAuth returns the server auth key hash and the local token key.
func deriveAuth(password, username, salt string) (authKeyHash string, tokenKey []byte, err error) {
	keys, err := crypto.DeriveKeys(password, username, salt)
	if err != nil {
		return "", nil, fmt.Errorf("failed to derive keys: %w", err)
	}
	authKeyHash, err = crypto.HashAuthKey(keys.AuthKey)
	if err != nil {
		return "", nil, fmt.Errorf("failed to hash auth key: %w", err)
	}
	return authKeyHash, keys.TokenKey, nil
}
