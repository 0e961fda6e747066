package validation

import (
	"fmt"
	"regexp"
)

// usernamePattern: латинские буквы, цифры и подчеркивание, 3-32 символа
var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,32}$`)

// MinPasswordLen is the minimum accepted password length.
const MinPasswordLen = 12

// ValidateUsername checks the coach account name.
func ValidateUsername(username string) error {
	if username == "" {
		return fmt.Errorf("username cannot be empty")
	}
	if !usernamePattern.MatchString(username) {
		return fmt.Errorf("username must be 3-32 characters of letters, digits or underscores")
	}
	return nil
}

// ValidatePassword checks the minimum password requirements.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLen {
		return fmt.Errorf("password must be at least %d characters long", MinPasswordLen)
	}
	return nil
}
