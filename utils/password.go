package utils

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

const (
	MinPasswordLength = 8
	// bcrypt ignores input past 72 bytes
	MaxPasswordLength = 72
)

var ErrPasswordLength = errors.New("password must be 8-72 bytes")

// ValidatePassword enforces the length window bcrypt can hash faithfully.
func ValidatePassword(password string) error {
	if l := len(password); l < MinPasswordLength || l > MaxPasswordLength {
		return ErrPasswordLength
	}
	return nil
}

// HashPassword validates and bcrypt-hashes a password.
func HashPassword(password string) (string, error) {
	if err := ValidatePassword(password); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword compares the bcrypt hashed password with its possible plaintext equivalent.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
