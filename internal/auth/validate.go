package auth

import (
	"errors"
	"regexp"
	"strings"
	"unicode"
)

const (
	minUsernameLen = 3
	minPasswordLen = 8

	// passwordSymbols is the fixed set of accepted special characters.
	passwordSymbols = `!@#$%^&*()_+-=[]{};':"|,.<>/?`
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidateUsername enforces the username shape: at least three characters,
// letters, digits, underscore, or hyphen only.
func ValidateUsername(username string) error {
	if len(username) < minUsernameLen {
		return errors.New("Username must be at least 3 characters")
	}
	if !usernamePattern.MatchString(username) {
		return errors.New("Username may only contain letters, digits, underscores, and hyphens")
	}
	return nil
}

// ValidatePassword enforces the strength rule: at least eight characters
// including a lowercase letter, an uppercase letter, a digit, and a symbol
// from the accepted set.
func ValidatePassword(password string) error {
	if len(password) < minPasswordLen {
		return errors.New("Password must be at least 8 characters")
	}

	var hasLower, hasUpper, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		case strings.ContainsRune(passwordSymbols, r):
			hasSymbol = true
		}
	}

	if !hasLower || !hasUpper || !hasDigit || !hasSymbol {
		return errors.New("Password must contain lowercase, uppercase, digit, and special character")
	}
	return nil
}
