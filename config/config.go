package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig      `envPrefix:"APP_"`
	Server   ServerConfig   `envPrefix:"SERVER_"`
	Log      LogConfig      `envPrefix:"LOG_"`
	Database DatabaseConfig `envPrefix:"DATABASE_"`
	Auth     AuthConfig     `envPrefix:"AUTH_"`
	JWT      JWTConfig      `envPrefix:"JWT_"`
	Session  SessionConfig  `envPrefix:"SESSION_"`
	Upload   UploadConfig   `envPrefix:"UPLOAD_"`
}

type AppConfig struct {
	Name  string `env:"NAME" envDefault:"clipstream"`
	URL   string `env:"URL" envDefault:"http://localhost:8080"`
	Debug bool   `env:"DEBUG" envDefault:"false"`
}

type ServerConfig struct {
	Host           string   `env:"HOST" envDefault:"localhost"`
	Port           string   `env:"PORT" envDefault:"8080"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envDefault:"http://localhost:5173"`
}

type LogConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
	Output string `env:"OUTPUT" envDefault:"stdout"`
}

type DatabaseConfig struct {
	Driver      string `env:"DRIVER" envDefault:"sqlite"`
	DSN         string `env:"DSN" envDefault:"clipstream.db"`
	AutoMigrate bool   `env:"AUTO_MIGRATE" envDefault:"true"`
}

type AuthConfig struct {
	MinLength  int `env:"MIN_LENGTH" envDefault:"8"`
	BcryptCost int `env:"BCRYPT_COST" envDefault:"10"`
}

type JWTConfig struct {
	AccessSecret  string        `env:"ACCESS_SECRET"`
	RefreshSecret string        `env:"REFRESH_SECRET"`
	AccessExpiry  time.Duration `env:"ACCESS_EXPIRY" envDefault:"15m"`
	RefreshExpiry time.Duration `env:"REFRESH_EXPIRY" envDefault:"168h"`
	Issuer        string        `env:"ISSUER" envDefault:"clipstream"`
}

type SessionConfig struct {
	CleanupInterval time.Duration `env:"CLEANUP_INTERVAL" envDefault:"1h"`
}

type UploadConfig struct {
	Dir     string `env:"DIR" envDefault:"public/uploads"`
	TempDir string `env:"TEMP_DIR" envDefault:"public/temp"`
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:8080/uploads"`
}

func LoadConfig(cfg any) error {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found: %v", err)
	}

	if err := env.Parse(cfg); err != nil {
		return err
	}

	if appConfig, ok := cfg.(*Config); ok {
		if err := validateJWTConfig(&appConfig.JWT); err != nil {
			return err
		}
	}

	return nil
}

func validateJWTConfig(cfg *JWTConfig) error {
	for name, secret := range map[string]string{
		"access":  cfg.AccessSecret,
		"refresh": cfg.RefreshSecret,
	} {
		if len(secret) < 32 {
			return fmt.Errorf("JWT %s secret must be at least 32 characters long", name)
		}
		lower := strings.ToLower(secret)
		for _, pattern := range []string{"password", "secret", "test", "example", "default", "change"} {
			if strings.Contains(lower, pattern) {
				return fmt.Errorf("JWT %s secret contains weak patterns", name)
			}
		}
	}

	if cfg.AccessSecret == cfg.RefreshSecret {
		return fmt.Errorf("JWT access and refresh secrets must differ")
	}

	return nil
}
