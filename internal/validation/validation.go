// Package validation checks user-supplied account and content fields.
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"quill/internal/models"
)

const (
	MaxCommentLength = 5000
	MaxTitleLength   = 200
	MaxPostLength    = 50000
	MaxBioLength     = 500
)

var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	emailPattern    = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
)

// ValidateUsername checks length, alphabet and edge characters.
func ValidateUsername(username string) error {
	if len(username) < 3 {
		return models.NewValidationError("username must be at least 3 characters long")
	}
	if len(username) > 30 {
		return models.NewValidationError("username must not exceed 30 characters")
	}
	if !usernamePattern.MatchString(username) {
		return models.NewValidationError("username can only contain letters, numbers, underscores, and hyphens")
	}
	first, last := username[0], username[len(username)-1]
	if first == '_' || first == '-' || last == '_' || last == '-' {
		return models.NewValidationError("username cannot start or end with underscore or hyphen")
	}
	return nil
}

// ValidateEmail checks basic email format.
func ValidateEmail(email string) error {
	if len(email) > 254 {
		return models.NewValidationError("email must not exceed 254 characters")
	}
	if !emailPattern.MatchString(email) {
		return models.NewValidationError("invalid email format")
	}
	return nil
}

// ValidatePassword requires 8 to 128 characters with at least one letter
// and one digit, and rejects passwords equal to the username.
func ValidatePassword(password, username string) error {
	if len(password) < 8 {
		return models.NewValidationError("password must be at least 8 characters long")
	}
	if len(password) > 128 {
		return models.NewValidationError("password must not exceed 128 characters")
	}

	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLetter || !hasDigit {
		return models.NewValidationError("password must contain at least one letter and one digit")
	}
	if username != "" && strings.EqualFold(password, username) {
		return models.NewValidationError("password must differ from the username")
	}
	return nil
}

// Text trims s and checks it is non-empty and at most max runes long.
func Text(field, s string, limit int) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", models.NewValidationError(field + " cannot be empty")
	}
	if utf8.RuneCountInString(s) > limit {
		return "", models.NewValidationError(fmt.Sprintf("%s must not exceed %d characters", field, limit))
	}
	return s, nil
}

// OptionalText trims s and checks it is at most max runes long.
func OptionalText(field, s string, limit int) (string, error) {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) > limit {
		return "", models.NewValidationError(fmt.Sprintf("%s must not exceed %d characters", field, limit))
	}
	return s, nil
}
