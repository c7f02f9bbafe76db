// Package auth verifies the operator access key and issues session tokens.
package auth

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid access key")
	ErrWrongAnswer        = errors.New("incorrect security answer")
	ErrEmptySecret        = errors.New("access key must not be empty")
)

// Hash returns a bcrypt hash of secret.
func Hash(secret string) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}
	b, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Verify checks secret against a stored hash. Bcrypt hashes and the
// base64 values written by older installations are both accepted.
func Verify(hash, secret string) error {
	if hash == "" || secret == "" {
		return ErrInvalidCredentials
	}
	if isBcrypt(hash) {
		if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)); err != nil {
			return ErrInvalidCredentials
		}
		return nil
	}
	legacy := base64.StdEncoding.EncodeToString([]byte(secret))
	if subtle.ConstantTimeCompare([]byte(hash), []byte(legacy)) != 1 {
		return ErrInvalidCredentials
	}
	return nil
}

// NeedsUpgrade reports whether hash is in the legacy format and should be
// replaced with a bcrypt hash after a successful login.
func NeedsUpgrade(hash string) bool {
	return !isBcrypt(hash)
}

// VerifyAnswer checks a security answer. Bcrypt answers are compared
// ignoring case and surrounding spaces. Legacy answers were stored exactly
// as typed, so the raw answer is tried before the normalized one.
func VerifyAnswer(hash, answer string) error {
	if NeedsUpgrade(hash) && Verify(hash, answer) == nil {
		return nil
	}
	if err := Verify(hash, normalizeAnswer(answer)); err != nil {
		return ErrWrongAnswer
	}
	return nil
}

// HashAnswer hashes a security answer for VerifyAnswer.
func HashAnswer(answer string) (string, error) {
	return Hash(normalizeAnswer(answer))
}

func normalizeAnswer(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func isBcrypt(hash string) bool {
	return strings.HasPrefix(hash, "$2a$") || strings.HasPrefix(hash, "$2b$") || strings.HasPrefix(hash, "$2y$")
}
