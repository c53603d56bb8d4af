package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv      string `env:"APP_ENV" default:"development"`
	Port        string `env:"PORT" default:"8080"`
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`

	// Key material for credential encryption, in resolution order:
	// a direct 256-bit key, a secret+salt pair for PBKDF2 derivation, or
	// the session secret as a last-resort fallback.
	TokenEncryptionKey string `env:"TOKEN_ENCRYPTION_KEY"`
	CredentialSecret   string `env:"CREDENTIAL_SECRET"`
	CredentialSalt     string `env:"CREDENTIAL_SALT"`
	SessionSecret      string `env:"SESSION_SECRET"`

	SchwabClientID       string `env:"SCHWAB_CLIENT_ID"`
	SchwabClientSecret   string `env:"SCHWAB_CLIENT_SECRET"`
	CoinbaseClientID     string `env:"COINBASE_CLIENT_ID"`
	CoinbaseClientSecret string `env:"COINBASE_CLIENT_SECRET"`

	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	MaintenanceInterval time.Duration `env:"MAINTENANCE_INTERVAL" default:"5m"`
	StartupGracePeriod  time.Duration `env:"STARTUP_GRACE_PERIOD" default:"120s"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	required := map[string]string{
		"DATABASE_URL":           cfg.DatabaseURL,
		"SCHWAB_CLIENT_ID":       cfg.SchwabClientID,
		"SCHWAB_CLIENT_SECRET":   cfg.SchwabClientSecret,
		"COINBASE_CLIENT_ID":     cfg.CoinbaseClientID,
		"COINBASE_CLIENT_SECRET": cfg.CoinbaseClientSecret,
	}
	for name, value := range required {
		if value == "" {
			return fmt.Errorf("%s is required", name)
		}
	}

	if err := validateKeyMaterial(cfg); err != nil {
		return err
	}

	if cfg.MaintenanceInterval < time.Minute {
		return errors.New("MAINTENANCE_INTERVAL must be at least 1 minute")
	}

	return nil
}

// validateKeyMaterial enforces that some usable encryption key source is
// configured. A deployment with no key material must refuse to start
// rather than store credentials with a weak or absent key.
func validateKeyMaterial(cfg *Config) error {
	if cfg.TokenEncryptionKey != "" {
		keyBytes, err := hex.DecodeString(cfg.TokenEncryptionKey)
		if err != nil {
			return fmt.Errorf("TOKEN_ENCRYPTION_KEY must be valid hex: %w", err)
		}
		if len(keyBytes) != 32 {
			return fmt.Errorf("TOKEN_ENCRYPTION_KEY must be exactly 64 hex characters (32 bytes), got %d bytes", len(keyBytes))
		}
		return nil
	}

	if cfg.CredentialSecret != "" {
		if cfg.CredentialSalt == "" {
			return errors.New("CREDENTIAL_SALT is required when CREDENTIAL_SECRET is set")
		}
		return nil
	}

	if cfg.SessionSecret != "" {
		if cfg.CredentialSalt == "" {
			return errors.New("CREDENTIAL_SALT is required when falling back to SESSION_SECRET")
		}
		return nil
	}

	return errors.New("no encryption key material configured: set TOKEN_ENCRYPTION_KEY, or CREDENTIAL_SECRET and CREDENTIAL_SALT")
}
