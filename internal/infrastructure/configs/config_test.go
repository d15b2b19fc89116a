package configs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hilthontt/chorus/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
auth:
  secret: test-secret
node:
  id: 7
gateway:
  handshake_timeout: 3s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, int64(7), cfg.Node.ID)
	assert.Equal(t, "chorus-7", cfg.Node.Name)
	assert.Equal(t, 3*time.Second, cfg.Gateway.HandshakeTimeout)
	assert.Equal(t, 60*time.Second, cfg.Gateway.PongWait)
	assert.Equal(t, 256, cfg.Gateway.SendBuffer)
	assert.Equal(t, "memory", cfg.Relay.Driver)
	assert.Equal(t, uint16(8080), cfg.HTTP.Port)
	assert.Equal(t, "zap", cfg.Logger.Logger)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("AUTH_SECRET", "from-env")
	t.Setenv("NODE_ID", "0")
	t.Setenv("RELAY_DRIVER", "redis")
	t.Setenv("REDIS_URL", "redis://cache:6379/1")

	cfg, err := Load(writeConfig(t, "node:\n  id: 5\n"))
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Auth.Secret)
	assert.Equal(t, int64(0), cfg.Node.ID)
	assert.Equal(t, "redis", cfg.Relay.Driver)
	assert.Equal(t, "redis://cache:6379/1", cfg.Presence.RedisURL)
}

func TestLoadRejectsOutOfRangeNode(t *testing.T) {
	_, err := Load(writeConfig(t, "auth:\n  secret: s\nnode:\n  id: 1024\n"))

	var cfgErr *domain.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "node.id", cfgErr.Field)
}

func TestLoadRequiresSecret(t *testing.T) {
	_, err := Load("")

	var cfgErr *domain.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "auth.secret", cfgErr.Field)
}

func TestLoadRejectsUnknownRelay(t *testing.T) {
	_, err := Load(writeConfig(t, "auth:\n  secret: s\nrelay:\n  driver: kafka\n"))

	var cfgErr *domain.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "relay.driver", cfgErr.Field)
}

func TestLoadNodeNameFollowsNodeID(t *testing.T) {
	t.Setenv("AUTH_SECRET", "s")

	t.Setenv("NODE_ID", "1")
	first, err := Load("")
	require.NoError(t, err)

	t.Setenv("NODE_ID", "2")
	second, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "chorus-1", first.Node.Name)
	assert.Equal(t, "chorus-2", second.Node.Name)

	t.Setenv("NODE_NAME", "edge-eu")
	named, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "edge-eu", named.Node.Name)
}

func TestLoadPresenceDefaultsOutliveIdle(t *testing.T) {
	cfg, err := Load(writeConfig(t, "auth:\n  secret: s\n"))
	require.NoError(t, err)
	assert.Greater(t, cfg.Presence.TTL, cfg.Presence.IdleAfter)
}

func TestLoadRejectsPresenceTTLWithinIdle(t *testing.T) {
	_, err := Load(writeConfig(t, "auth:\n  secret: s\npresence:\n  ttl: 2m\n  idle_after: 5m\n"))

	var cfgErr *domain.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "presence.ttl", cfgErr.Field)
}
