// ABOUTME: Service token checking for the grant-minting endpoint
// ABOUTME: The configured bcrypt hash gates who may mint room grants

package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrServiceTokenMismatch is returned when a presented service token does
// not match the configured hash.
var ErrServiceTokenMismatch = errors.New("service token mismatch")

// HashServiceToken returns a bcrypt hash suitable for the
// auth.service_token_hash config field.
func HashServiceToken(token string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckServiceToken compares a presented token against the configured hash.
func CheckServiceToken(hash, presented string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(presented)); err != nil {
		return ErrServiceTokenMismatch
	}
	return nil
}
