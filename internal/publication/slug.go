package publication

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"quill/internal/models"
)

// tokenBytes yields a 16 character URL-safe token.
const tokenBytes = 12

// ErrSlugExhausted is returned when every attempt collided.
var ErrSlugExhausted = errors.New("could not generate a unique slug")

// NewToken returns a cryptographically random URL-safe token.
func NewToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// SlugExists reports whether a slug is already taken.
type SlugExists func(ctx context.Context, slug string) (bool, error)

// SlugAssigner draws tokens until one is free.
type SlugAssigner struct {
	Token       func() (string, error)
	MaxAttempts int
}

// NewSlugAssigner creates an assigner backed by NewToken.
func NewSlugAssigner(maxAttempts int) *SlugAssigner {
	return &SlugAssigner{Token: NewToken, MaxAttempts: maxAttempts}
}

// Assign returns a slug for which exists reported false.
func (a *SlugAssigner) Assign(ctx context.Context, exists SlugExists) (string, error) {
	attempts := a.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	for i := 0; i < attempts; i++ {
		slug, err := a.Token()
		if err != nil {
			return "", models.NewInternalError(err)
		}
		taken, err := exists(ctx, slug)
		if err != nil {
			return "", err
		}
		if !taken {
			return slug, nil
		}
	}

	return "", models.NewInternalError(fmt.Errorf("%w after %d attempts", ErrSlugExhausted, attempts))
}
