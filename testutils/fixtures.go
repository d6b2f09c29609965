package testutils

import (
	"time"

	"github.com/tech-arch1tect/clipstream/config"
	"golang.org/x/crypto/bcrypt"
)

func GetTestConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{
			Name:  "clipstream-tests",
			URL:   "http://localhost:8080",
			Debug: true,
		},
		Auth: config.AuthConfig{
			MinLength:  8,
			BcryptCost: bcrypt.MinCost,
		},
		JWT: config.JWTConfig{
			AccessSecret:  "access-signing-key-0123456789abcdef",
			RefreshSecret: "refresh-signing-key-0123456789abcdef",
			AccessExpiry:  15 * time.Minute,
			RefreshExpiry: 24 * time.Hour,
			Issuer:        "clipstream-tests",
		},
		Session: config.SessionConfig{
			CleanupInterval: time.Hour,
		},
		Database: config.DatabaseConfig{
			Driver: "sqlite",
			DSN:    ":memory:",
		},
	}
}
