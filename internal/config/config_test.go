package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearDBEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"DB_NAME", "DB_USER", "DB_PASSWORD", "DB_HOST", "DB_PORT"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestDefaultsWhenFileMissing(t *testing.T) {
	clearDBEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)

	assert.Equal(t, "chess-server", cfg.Server.Name)
	assert.Equal(t, "0.0.0.0:8080", cfg.Network.BindAddress)
	assert.Equal(t, 1800*time.Second, cfg.Session.Timeout.Std())
	assert.Equal(t, 2, cfg.AI.DefaultDepth)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.NotZero(t, cfg.Server.StartTime)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	clearDBEnv(t)

	path := filepath.Join(t.TempDir(), "server.toml")
	content := `
[server]
name = "test-server"

[network]
bind_address = "127.0.0.1:9999"
write_timeout = "3s"

[session]
timeout = "45m"

[ai]
default_depth = 3
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "test-server", cfg.Server.Name)
	assert.Equal(t, "127.0.0.1:9999", cfg.Network.BindAddress)
	assert.Equal(t, 3*time.Second, cfg.Network.WriteTimeout.Std())
	assert.Equal(t, 45*time.Minute, cfg.Session.Timeout.Std())
	assert.Equal(t, 3, cfg.AI.DefaultDepth)
	// untouched sections keep their defaults
	assert.Equal(t, 60*time.Second, cfg.Session.SweepInterval.Std())
}

func TestMalformedFileIsAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server\nname="), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverlaysDatabase(t *testing.T) {
	clearDBEnv(t)
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PASSWORD", "hunter2")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "hunter2", cfg.Database.Password)
	assert.Equal(t, "postgres", cfg.Database.User, "unset keys keep defaults")
}

func TestDSN(t *testing.T) {
	db := DatabaseConfig{
		Name:     "chess-app",
		User:     "postgres",
		Password: "pw",
		Host:     "localhost",
		Port:     "5432",
	}
	assert.Equal(t,
		"postgres://postgres:pw@localhost:5432/chess-app?sslmode=disable&connect_timeout=5",
		db.DSN())
}
