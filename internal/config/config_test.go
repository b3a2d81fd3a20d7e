package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
database:
  url: "postgres://localhost/test"
  migrations_path: "db/migrations"
server:
  port: ":9090"
auth:
  jwt_secret: "secret"
  token_ttl_hours: 48
training:
  default_iterations: 10
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/test", cfg.Database.URL)
	assert.Equal(t, "db/migrations", cfg.Database.MigrationsPath)
	assert.Equal(t, ":9090", cfg.Server.Port)
	assert.Equal(t, "secret", cfg.Auth.JWTSecret)
	assert.Equal(t, int64(48), cfg.Auth.TokenTTLHours)
	assert.Equal(t, 10, cfg.Training.DefaultIterations)
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  url: "postgres://localhost/test"
server:
  port: ":8080"
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 200, cfg.Training.DefaultIterations)
	assert.Equal(t, int64(24), cfg.Auth.TokenTTLHours)
	assert.Equal(t, "migrations", cfg.Database.MigrationsPath)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yml"))
	assert.Error(t, err)
}

func TestLoadConfigMalformed(t *testing.T) {
	path := writeConfig(t, "not: [valid")
	_, err := LoadConfig(path)
	assert.Error(t, err)
}
