package repository

import (
	"errors"
	"strings"
)

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrDuplicateEmail = errors.New("email already exists")
)

// NormalizeEmail lower-cases and trims an email so it can serve as a unique key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
