package auth

import (
	"errors"
	"unicode"

	"golang.org/x/crypto/bcrypt"

	"github.com/watzon/syncstore/internal/config"
)

const (
	bcryptCost = 12
)

var (
	ErrPasswordTooShort     = errors.New("password is too short")
	ErrPasswordNoUppercase  = errors.New("password must contain at least one uppercase letter")
	ErrPasswordNoNumber     = errors.New("password must contain at least one number")
	ErrPasswordHashMismatch = errors.New("password does not match")
)

// HashPassword hashes a password using bcrypt.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword checks if a password matches a hash.
func VerifyPassword(password, hash string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrPasswordHashMismatch
	}
	return err
}

// ValidatePassword checks if a password meets the configured requirements.
func ValidatePassword(password string, cfg config.PasswordConfig) error {
	if len(password) < cfg.MinLength {
		return ErrPasswordTooShort
	}

	var hasUpper, hasNumber bool

	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasNumber = true
		}
	}

	if cfg.RequireUppercase && !hasUpper {
		return ErrPasswordNoUppercase
	}
	if cfg.RequireNumber && !hasNumber {
		return ErrPasswordNoNumber
	}

	return nil
}
