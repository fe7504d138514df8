package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Secrets are connection strings kept out of the YAML config
type Secrets struct {
	PostgresURL string `envconfig:"POSTGRES_URL"`
	RedisURL    string `envconfig:"REDIS_URL"`
}

// LoadSecrets reads .env.<env> and .env when present, then the DISPATCH_* environment.
// Variables already set in the environment win over the files.
func LoadSecrets(env string) (Secrets, error) {
	files := []string{".env"}
	if env != "" {
		files = []string{".env." + env, ".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Secrets{}, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	var s Secrets
	if err := envconfig.Process("DISPATCH", &s); err != nil {
		return Secrets{}, fmt.Errorf("failed to read environment: %w", err)
	}
	return s, nil
}
