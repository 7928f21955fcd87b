package transport

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/framelink-protocol/framelink-go/pkg/frame"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "framelink.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func TestDefaultConfig(t *testing.T) {
	t.Setenv(frame.MaxMessageSizeEnv, "")
	cfg := DefaultConfig()
	assert.Equal(t, frame.DefaultMaxMessageSize, cfg.MaxMessageSize)
	assert.Equal(t, DefaultConnectTimeout, cfg.ConnectTimeout)

	t.Setenv(frame.MaxMessageSizeEnv, "4096")
	cfg = DefaultConfig()
	assert.Equal(t, 4096, cfg.MaxMessageSize)
}

func TestLoadConfig(t *testing.T) {
	t.Setenv(frame.MaxMessageSizeEnv, "")
	path := writeConfigFile(t, `
max_message_size: 65536
connect_timeout: 5s
max_connections: 128
drop_incoming_connections: true
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 65536, cfg.MaxMessageSize)
	assert.Equal(t, 5*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 128, cfg.MaxConnections)
	assert.True(t, cfg.DropIncomingConnections)
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv(frame.MaxMessageSizeEnv, "")
	path := writeConfigFile(t, `max_connections: 8`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, frame.DefaultMaxMessageSize, cfg.MaxMessageSize)
	assert.Equal(t, DefaultConnectTimeout, cfg.ConnectTimeout)
	assert.Equal(t, 8, cfg.MaxConnections)
	assert.False(t, cfg.DropIncomingConnections)
}

func TestLoadConfigFileWinsOverEnv(t *testing.T) {
	t.Setenv(frame.MaxMessageSizeEnv, "1024")
	path := writeConfigFile(t, `max_message_size: 2048`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 2048, cfg.MaxMessageSize)
}

func TestLoadConfigErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
		require.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := writeConfigFile(t, "max_message_size: [")
		_, err := LoadConfig(path)
		require.Error(t, err)
	})

	t.Run("bad duration", func(t *testing.T) {
		path := writeConfigFile(t, "connect_timeout: soon")
		_, err := LoadConfig(path)
		require.Error(t, err)
	})

	t.Run("negative size", func(t *testing.T) {
		path := writeConfigFile(t, "max_message_size: -1")
		_, err := LoadConfig(path)
		require.ErrorIs(t, err, frame.ErrNegativeLimit)
	})
}
