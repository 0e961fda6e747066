package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// expirySkew - токен считается истекшим немного раньше exp
const expirySkew = 10 * time.Second

// tokenExpiry reads the exp claim of a JWT without verifying its signature.
// The client has no key to verify with; the server does that on every request.
func tokenExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// credentialExpiry returns the earliest known expiry of the session token.
func credentialExpiry(token string, storedExpiresAt int64) time.Time {
	var expiry time.Time
	if storedExpiresAt > 0 {
		expiry = time.Unix(storedExpiresAt, 0)
	}
	if exp, ok := tokenExpiry(token); ok && (expiry.IsZero() || exp.Before(expiry)) {
		expiry = exp
	}
	return expiry
}
