package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Environment keys for the broker account.
const (
	EnvAPIKey    = "IRONBEAM_API_KEY"
	EnvAPISecret = "IRONBEAM_API_SECRET"
	EnvAccount   = "IRONBEAM_ACCOUNT"
)

// ErrMissingCredentials is returned when a required key is unset.
var ErrMissingCredentials = errors.New("missing credentials")

type Credentials struct {
	APIKey    string
	APISecret string
	Account   string
}

// LoadEnvFile hydrates the process env from path without overwriting keys
// that are already set. A missing file is not an error.
func LoadEnvFile(path string) (bool, error) {
	if path == "" {
		return false, nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if err := godotenv.Load(path); err != nil {
		return false, fmt.Errorf("load %s: %w", path, err)
	}
	return true, nil
}

// LoadCredentials reads the broker keys from the environment.
func LoadCredentials() (Credentials, error) {
	c := Credentials{
		APIKey:    os.Getenv(EnvAPIKey),
		APISecret: os.Getenv(EnvAPISecret),
		Account:   os.Getenv(EnvAccount),
	}
	if c.APIKey == "" {
		return c, fmt.Errorf("%w: %s", ErrMissingCredentials, EnvAPIKey)
	}
	if c.APISecret == "" {
		return c, fmt.Errorf("%w: %s", ErrMissingCredentials, EnvAPISecret)
	}
	return c, nil
}
