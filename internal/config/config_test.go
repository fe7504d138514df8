package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_ValidConfig(t *testing.T) {
	cfg := &Config{
		Backend:           "sheets",
		DatabaseSheetID:   "db789",
		RidersSheetID:     "riders123",
		RidersTab:         "Riders",
		Timezone:          "Europe/London",
		ConflictPolicy:    "warn",
		ReconcileAttempts: 5,
		LockBackend:       "redis",
		LockTTL:           time.Minute,
		GmailUserID:       "dispatch@example.com",
		Blackouts: []Blackout{
			{RRule: "FREQ=YEARLY;BYMONTH=12;BYMONTHDAY=25", Reason: "Christmas Day"},
		},
	}

	require.NoError(t, Validate(cfg))
	assert.Equal(t, "Europe/London", cfg.Location().String())

	rules, err := cfg.BlackoutRules()
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.True(t, rules[0].AppliesTo(time.Date(2024, 12, 25, 0, 0, 0, 0, time.UTC)))
	assert.False(t, rules[0].AppliesTo(time.Date(2024, 12, 24, 0, 0, 0, 0, time.UTC)))
}

func TestValidate_MinimalConfigGetsDefaults(t *testing.T) {
	cfg := &Config{Backend: "memory"}

	require.NoError(t, Validate(cfg))
	assert.Equal(t, "UTC", cfg.Timezone)
	assert.Equal(t, "block", cfg.ConflictPolicy)
	assert.Equal(t, 3, cfg.ReconcileAttempts)
	assert.Equal(t, "local", cfg.LockBackend)
	assert.Equal(t, 30*time.Second, cfg.LockTTL)
	assert.Equal(t, ":8080", cfg.APIAddr)
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "missing backend", cfg: Config{}, wantErr: "validation failed"},
		{name: "unknown backend", cfg: Config{Backend: "mongo"}, wantErr: "validation failed"},
		{name: "sheets without sheet id", cfg: Config{Backend: "sheets"}, wantErr: "validation failed"},
		{name: "riders sheet without tab", cfg: Config{Backend: "memory", RidersSheetID: "x"}, wantErr: "validation failed"},
		{name: "unknown policy", cfg: Config{Backend: "memory", ConflictPolicy: "maybe"}, wantErr: "validation failed"},
		{name: "too many attempts", cfg: Config{Backend: "memory", ReconcileAttempts: 50}, wantErr: "validation failed"},
		{name: "bad timezone", cfg: Config{Backend: "memory", Timezone: "Mars/Olympus"}, wantErr: "invalid timezone"},
		{name: "empty rrule", cfg: Config{Backend: "memory", Blackouts: []Blackout{{RRule: ""}}}, wantErr: "validation failed"},
		{
			name:    "bad rrule",
			cfg:     Config{Backend: "memory", Blackouts: []Blackout{{RRule: "FREQ=WEEKLY;BYDAY=SU"}, {RRule: "INVALID_RRULE"}}},
			wantErr: "invalid rrule in blackouts[1]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			err := Validate(&cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadFromPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dispatch_config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
backend: postgres
timezone: America/Chicago
conflictPolicy: strict
lockBackend: redis
lockTTL: 45s
blackouts:
  - rrule: FREQ=YEARLY;BYMONTH=7;BYMONTHDAY=4
    reason: Independence Day
`), 0644))

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Backend)
	assert.Equal(t, "strict", cfg.ConflictPolicy)
	assert.Equal(t, 45*time.Second, cfg.LockTTL)
	require.Len(t, cfg.Blackouts, 1)
	assert.Equal(t, "Independence Day", cfg.Blackouts[0].Reason)
}

func TestLoadFromPath_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadFromPath(filepath.Join(dir, "nope.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("backend: [unclosed"), 0644))
	_, err = LoadFromPath(bad)
	assert.ErrorContains(t, err, "failed to parse config file")

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("backend: sheets\n"), 0644))
	_, err = LoadFromPath(invalid)
	assert.ErrorContains(t, err, "validation failed")
}

func TestLoadSecrets_FromEnvironment(t *testing.T) {
	t.Setenv("DISPATCH_POSTGRES_URL", "postgres://dispatch@localhost/dispatch")
	t.Setenv("DISPATCH_REDIS_URL", "redis://localhost:6379/0")

	s, err := LoadSecrets("test")
	require.NoError(t, err)
	assert.Equal(t, "postgres://dispatch@localhost/dispatch", s.PostgresURL)
	assert.Equal(t, "redis://localhost:6379/0", s.RedisURL)
}

func TestCheckSecrets(t *testing.T) {
	cfg := &Config{Backend: "postgres", LockBackend: "local"}
	assert.ErrorContains(t, cfg.checkSecrets(), "DISPATCH_POSTGRES_URL")

	cfg.Secrets.PostgresURL = "postgres://x"
	assert.NoError(t, cfg.checkSecrets())

	cfg.LockBackend = "redis"
	assert.ErrorContains(t, cfg.checkSecrets(), "DISPATCH_REDIS_URL")
}
