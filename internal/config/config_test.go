package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "release", cfg.Mode)
	assert.Equal(t, EnginePion, cfg.Media.Engine)
	assert.Equal(t, 10*time.Second, cfg.Signal.Timeout)
	assert.Equal(t, 64, cfg.Signal.SendBuffer)
	assert.Equal(t, 30*time.Second, cfg.Rooms.ReconnectGrace)
	assert.False(t, cfg.Rooms.DeleteOnEmpty)
	assert.Equal(t, 2000, cfg.Chat.MaxLength)
	assert.NotEmpty(t, cfg.Media.ICEServers)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := writeConfig(t, `
port: 9000
mode: debug
rooms:
  delete_on_empty: true
  reconnect_grace: 5s
media:
  engine: loopback
  udp_port_min: 40000
  udp_port_max: 40100
`)
	t.Setenv("CONF_PORT", "9100")
	t.Setenv("CONF_CHAT_RATE_LIMIT", "3")

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, "debug", cfg.Mode)
	assert.True(t, cfg.Rooms.DeleteOnEmpty)
	assert.Equal(t, 5*time.Second, cfg.Rooms.ReconnectGrace)
	assert.Equal(t, EngineLoopback, cfg.Media.Engine)
	assert.EqualValues(t, 40000, cfg.Media.UDPPortMin)
	assert.EqualValues(t, 40100, cfg.Media.UDPPortMax)
	assert.Equal(t, 3, cfg.Chat.RateLimit)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"engine":     "media:\n  engine: gstreamer\n",
		"port range": "media:\n  udp_port_min: 50000\n  udp_port_max: 40000\n",
		"timeout":    "signal:\n  timeout: 0s\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(viper.New(), writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestApplyLogLevel(t *testing.T) {
	prev := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })

	ApplyLogLevel("debug")
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
	ApplyLogLevel("nonsense")
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
	ApplyLogLevel("")
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}
