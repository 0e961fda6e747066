package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// Параметры Argon2id
const (
	Argon2Time    = 1
	Argon2Memory  = 64 * 1024 // KB
	Argon2Threads = 4
	SaltSize      = 32
)

// Keys are the two independent keys derived from the user's password.
type Keys struct {
	AuthKey  []byte // отправляется на сервер в виде sha256 хеша
	TokenKey []byte // шифрует токены в локальном хранилище
}

// GenerateSalt returns a random base64 salt of SaltSize bytes.
func GenerateSalt() (string, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	return base64.StdEncoding.EncodeToString(salt), nil
}

// DeriveKeys derives Keys with Argon2id from password, username and a base64 salt.
func DeriveKeys(password, username, saltBase64 string) (*Keys, error) {
	if password == "" {
		return nil, fmt.Errorf("password cannot be empty")
	}
	if username == "" {
		return nil, fmt.Errorf("username cannot be empty")
	}

	salt, err := base64.StdEncoding.DecodeString(saltBase64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode salt: %w", err)
	}
	if len(salt) != SaltSize {
		return nil, fmt.Errorf("salt must be %d bytes, got %d", SaltSize, len(salt))
	}

	derive := func(purpose string) []byte {
		input := []byte(password + "\x00" + username + "\x00" + purpose)
		return argon2.IDKey(input, salt, Argon2Time, Argon2Memory, Argon2Threads, KeySize)
	}

	return &Keys{
		AuthKey:  derive("auth"),
		TokenKey: derive("token"),
	}, nil
}
