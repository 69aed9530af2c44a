package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	for _, key := range []string{"STORE_DRIVER", "SQLITE_PATH", "SERVER_PORT", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
		"LOG_LEVEL", "GATEWAY_TIMEOUT", "SESSION_IDLE_TTL", "REASONING_MAX_DEPTH"} {
		t.Setenv(key, "")
	}

	assert.Equal(t, "sqlite", StoreDriver())
	assert.Equal(t, "data/beliefs.db", SQLitePath())
	assert.Equal(t, ":8080", ServerAddr())
	assert.Equal(t, 100.0, RateLimitRPS())
	assert.Equal(t, 20, RateLimitBurst())
	assert.Equal(t, "info", LogLevel())
	assert.Equal(t, 5*time.Second, GatewayTimeout())
	assert.Equal(t, 30*time.Minute, SessionIdleTTL())
	assert.Equal(t, 32, ReasoningMaxDepth())
}

func TestOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", " Postgres ")
	t.Setenv("GATEWAY_TIMEOUT", "250ms")
	t.Setenv("SESSION_IDLE_TTL", "-1m")
	t.Setenv("REASONING_MAX_DEPTH", "8")

	assert.Equal(t, "postgres", StoreDriver())
	assert.Equal(t, 250*time.Millisecond, GatewayTimeout())
	assert.Equal(t, 30*time.Minute, SessionIdleTTL(), "non-positive durations fall back")
	assert.Equal(t, 8, ReasoningMaxDepth())
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("SERVER_PORT=9090\n"), 0o600))
	require.NoError(t, os.WriteFile(envFile+".secret", []byte("DATABASE_URL=postgres://u:p@localhost/beliefs\n"), 0o600))

	t.Setenv("BELIEF_ENV", envFile)
	t.Setenv("SERVER_PORT", "")
	t.Setenv("DATABASE_URL", "")
	// godotenv does not override variables that are already set
	require.NoError(t, os.Unsetenv("SERVER_PORT"))
	require.NoError(t, os.Unsetenv("DATABASE_URL"))

	require.NoError(t, Load())
	assert.Equal(t, 9090, ServerPort())
	assert.Equal(t, "postgres://u:p@localhost/beliefs", DatabaseURL())
}
