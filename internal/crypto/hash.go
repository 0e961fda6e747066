package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// HashPayload returns the deduplication hash of a deferred request.
// Method is case-insensitive; url and body are hashed verbatim, each part
// length-prefixed so that ("a","bc") and ("ab","c") never collide.
func HashPayload(method, url string, body []byte) string {
	h := sha256.New()
	for _, part := range [][]byte{[]byte(strings.ToUpper(method)), []byte(url), body} {
		fmt.Fprintf(h, "%d:", len(part))
		h.Write(part)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// HashAuthKey хеширует auth_key с использованием SHA256.
// Клиент отправляет хеш на сервер, сервер хранит его как есть.
func HashAuthKey(authKey []byte) (string, error) {
	if len(authKey) == 0 {
		return "", fmt.Errorf("auth key cannot be empty")
	}

	sum := sha256.Sum256(authKey)
	return hex.EncodeToString(sum[:]), nil
}
