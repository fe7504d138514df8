package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/teambition/rrule-go"
	"gopkg.in/yaml.v3"

	"github.com/jakechorley/escort-dispatch/pkg/core/availability"
)

// Blackout is a recurring day on which no rider is available, e.g. a public holiday
type Blackout struct {
	RRule  string `yaml:"rrule" validate:"required"`
	Reason string `yaml:"reason,omitempty"`
}

// Config represents the application configuration
type Config struct {
	Backend            string        `yaml:"backend" validate:"required,oneof=sheets postgres memory"`
	DatabaseSheetID    string        `yaml:"databaseSheetID" validate:"required_if=Backend sheets"`
	RidersSheetID      string        `yaml:"ridersSheetID,omitempty"`
	RidersTab          string        `yaml:"ridersTab,omitempty" validate:"required_with=RidersSheetID"`
	BoardSheetID       string        `yaml:"boardSheetID,omitempty"`
	AvailabilityFormID string        `yaml:"availabilityFormID,omitempty"`
	Timezone           string        `yaml:"timezone,omitempty"`
	ConflictPolicy     string        `yaml:"conflictPolicy,omitempty" validate:"omitempty,oneof=block warn strict"`
	ReconcileAttempts  int           `yaml:"reconcileAttempts,omitempty" validate:"omitempty,min=1,max=10"`
	LockBackend        string        `yaml:"lockBackend,omitempty" validate:"omitempty,oneof=local redis"`
	LockTTL            time.Duration `yaml:"lockTTL,omitempty" validate:"omitempty,min=1s"`
	Blackouts          []Blackout    `yaml:"blackouts,omitempty" validate:"dive"`
	GmailUserID        string        `yaml:"gmailUserID,omitempty"`
	GmailSender        string        `yaml:"gmailSender,omitempty"`
	APIAddr            string        `yaml:"apiAddr,omitempty"`

	// Secrets are read from the environment, never from the YAML file
	Secrets Secrets `yaml:"-"`

	location *time.Location
}

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Load loads and validates the configuration from dispatch_config.yaml
// It looks for the config file in the current directory first, then in the user's home directory
func Load() (*Config, error) {
	return LoadWithEnv("")
}

// LoadWithEnv loads dispatch_config.<env>.yaml and the DISPATCH_* secrets for that environment
func LoadWithEnv(env string) (*Config, error) {
	configPath, err := findConfigFile(env)
	if err != nil {
		return nil, fmt.Errorf("failed to find config file: %w", err)
	}

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		return nil, err
	}

	secrets, err := LoadSecrets(env)
	if err != nil {
		return nil, err
	}
	cfg.Secrets = secrets

	if err := cfg.checkSecrets(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromPath loads and validates the configuration from a specific path
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate fills defaults, validates the struct and checks timezone and rrule syntax
func Validate(cfg *Config) error {
	applyDefaults(cfg)

	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}
	cfg.location = loc

	for i, blackout := range cfg.Blackouts {
		if _, err := rrule.StrToRRule(blackout.RRule); err != nil {
			return fmt.Errorf("invalid rrule in blackouts[%d]: %w", i, err)
		}
	}

	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Timezone == "" {
		cfg.Timezone = "UTC"
	}
	if cfg.ConflictPolicy == "" {
		cfg.ConflictPolicy = "block"
	}
	if cfg.ReconcileAttempts == 0 {
		cfg.ReconcileAttempts = 3
	}
	if cfg.LockBackend == "" {
		cfg.LockBackend = "local"
	}
	if cfg.LockTTL == 0 {
		cfg.LockTTL = 30 * time.Second
	}
	if cfg.APIAddr == "" {
		cfg.APIAddr = ":8080"
	}
}

// checkSecrets makes sure the environment provides what the chosen backends need
func (cfg *Config) checkSecrets() error {
	if cfg.Backend == "postgres" && cfg.Secrets.PostgresURL == "" {
		return fmt.Errorf("config validation failed: backend postgres needs DISPATCH_POSTGRES_URL")
	}
	if cfg.LockBackend == "redis" && cfg.Secrets.RedisURL == "" {
		return fmt.Errorf("config validation failed: lockBackend redis needs DISPATCH_REDIS_URL")
	}
	return nil
}

// Location is the dispatch timezone; request IDs and "today" are computed in it
func (cfg *Config) Location() *time.Location {
	if cfg.location == nil {
		return time.UTC
	}
	return cfg.location
}

// BlackoutRules converts the configured blackouts for the availability resolver
func (cfg *Config) BlackoutRules() ([]availability.Blackout, error) {
	rules := make([]availability.Blackout, 0, len(cfg.Blackouts))
	for i, b := range cfg.Blackouts {
		rule, err := availability.BlackoutFromRRule(b.RRule, b.Reason)
		if err != nil {
			return nil, fmt.Errorf("blackouts[%d]: %w", i, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// findConfigFile searches for dispatch_config[.env].yaml
func findConfigFile(env string) (string, error) {
	if env == "" {
		return findFile("dispatch_config.yaml")
	}
	return findFile("dispatch_config." + env + ".yaml")
}
