package crypto

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, KeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func TestEncryptDecrypt(t *testing.T) {
	key := testKey(t)

	encrypted, err := Encrypt([]byte("access-token"), key)
	require.NoError(t, err)
	assert.NotContains(t, string(encrypted), "access-token")

	plaintext, err := Decrypt(encrypted, key)
	require.NoError(t, err)
	assert.Equal(t, "access-token", string(plaintext))
}

func TestEncrypt_Errors(t *testing.T) {
	tests := []struct {
		name      string
		errMsg    string
		plaintext []byte
		key       []byte
	}{
		{name: "empty plaintext", plaintext: nil, key: make([]byte, KeySize), errMsg: "plaintext cannot be empty"},
		{name: "short key", plaintext: []byte("x"), key: make([]byte, 16), errMsg: "encryption key must be 32 bytes"},
		{name: "long key", plaintext: []byte("x"), key: make([]byte, 64), errMsg: "encryption key must be 32 bytes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Encrypt(tt.plaintext, tt.key)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestDecrypt_WrongKey(t *testing.T) {
	encrypted, err := Encrypt([]byte("secret"), testKey(t))
	require.NoError(t, err)

	_, err = Decrypt(encrypted, testKey(t))
	assert.Error(t, err)
}

func TestDecrypt_TooShort(t *testing.T) {
	_, err := Decrypt([]byte{1, 2, 3}, testKey(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too short")
}

func TestEncryptString(t *testing.T) {
	key := testKey(t)

	a, err := EncryptString("token", key)
	require.NoError(t, err)
	b, err := EncryptString("token", key)
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "nonce must differ")

	plain, err := DecryptString(a, key)
	require.NoError(t, err)
	assert.Equal(t, "token", plain)

	_, err = DecryptString("%%%", key)
	assert.Error(t, err)
}
