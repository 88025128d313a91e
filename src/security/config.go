package security

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// ExchangeCRKey is the base64-encoded 32-byte AES key protecting stored
	// exchange credentials.
	ExchangeCRKey string `envconfig:"EXCHANGE_CREDENTIALS_KEY"`
	// AdminTokenHash is the bcrypt hash of the token required for privileged
	// operations such as clearing an emergency stop.
	AdminTokenHash string `envconfig:"ADMIN_TOKEN_HASH"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
