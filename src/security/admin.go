package security

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

var ErrAdminTokenRejected = errors.New("admin token rejected")

// VerifyAdminToken checks the presented token against the configured bcrypt
// hash. Privileged operations refuse to run when no hash is configured.
func VerifyAdminToken(token string) error {
	config := GetConfig()
	if config.AdminTokenHash == "" {
		return errors.New("ADMIN_TOKEN_HASH is not set")
	}
	if token == "" {
		return ErrAdminTokenRejected
	}

	if err := bcrypt.CompareHashAndPassword([]byte(config.AdminTokenHash), []byte(token)); err != nil {
		return ErrAdminTokenRejected
	}
	return nil
}
