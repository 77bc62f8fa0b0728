package config

import (
	"encoding/base64"
	"fmt"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	ServerAddr     string   `env:"ROOMCHAT_ADDR"`
	DatabaseDSN    string   `env:"ROOMCHAT_DSN"`
	SigningSecret  string   `env:"ROOMCHAT_SIGNING_KEY"`
	AllowedOrigins []string `env:"ROOMCHAT_ALLOWED_ORIGINS" envSeparator:","`
	UploadDir      string   `env:"ROOMCHAT_UPLOAD_DIR"`
	SigningKey     []byte   `env:"-"`
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	if base64Secret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}
	return base64.StdEncoding.DecodeString(base64Secret)
}

// NewConfig builds the server configuration from the given values, applying
// environment variable overrides before validating.
func NewConfig(serverAddr, databaseDSN, base64Secret, uploadDir string, allowedOrigins []string) (*Config, error) {
	cfg := &Config{
		ServerAddr:     serverAddr,
		DatabaseDSN:    databaseDSN,
		SigningSecret:  base64Secret,
		AllowedOrigins: allowedOrigins,
		UploadDir:      uploadDir,
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if cfg.ServerAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if cfg.DatabaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if cfg.UploadDir == "" {
		return nil, fmt.Errorf("upload directory cannot be empty")
	}

	signingKey, err := decodeSigningSecret(cfg.SigningSecret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}
	cfg.SigningKey = signingKey

	return cfg, nil
}
