package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	LogLevel   string        `mapstructure:"log_level"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`

	Signal SignalConfig `mapstructure:"signal"`
	Rooms  RoomsConfig  `mapstructure:"rooms"`
	Chat   ChatConfig   `mapstructure:"chat"`
	Media  MediaConfig  `mapstructure:"media"`
}

type SignalConfig struct {
	Timeout    time.Duration `mapstructure:"timeout"`
	SendBuffer int           `mapstructure:"send_buffer"`
}

type RoomsConfig struct {
	DeleteOnEmpty  bool          `mapstructure:"delete_on_empty"`
	ReconnectGrace time.Duration `mapstructure:"reconnect_grace"`
}

type ChatConfig struct {
	MaxLength    int           `mapstructure:"max_length"`
	RateLimit    int           `mapstructure:"rate_limit"`
	RateInterval time.Duration `mapstructure:"rate_interval"`
}

type MediaConfig struct {
	Engine     string   `mapstructure:"engine"`
	ICEServers []string `mapstructure:"ice_servers"`
	UDPPortMin uint16   `mapstructure:"udp_port_min"`
	UDPPortMax uint16   `mapstructure:"udp_port_max"`
}

const (
	EnginePion     = "pion"
	EngineLoopback = "loopback"
)

// SetDefaults registers every key so env overrides and Unmarshal see it.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("read_limit", 1<<20)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "change-me")

	v.SetDefault("signal.timeout", "10s")
	v.SetDefault("signal.send_buffer", 64)

	v.SetDefault("rooms.delete_on_empty", false)
	v.SetDefault("rooms.reconnect_grace", "30s")

	v.SetDefault("chat.max_length", 2000)
	v.SetDefault("chat.rate_limit", 10)
	v.SetDefault("chat.rate_interval", "10s")

	v.SetDefault("media.engine", EnginePion)
	v.SetDefault("media.ice_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("media.udp_port_min", 0)
	v.SetDefault("media.udp_port_max", 0)
}

// Load reads config/config.<CONFIG_ENV>.yaml (or file when set) into v.
// Environment variables prefixed CONF_ override file values.
func Load(v *viper.Viper, file string) (*Config, error) {
	v.SetConfigType("yaml")
	if file == "" {
		env := os.Getenv("CONFIG_ENV")
		if env == "" {
			env = "dev"
		}
		file = fmt.Sprintf("config/config.%s.yaml", env)
	}
	v.SetConfigFile(file)

	v.SetEnvPrefix("CONF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", file).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", file).Msg("loaded config")
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).
		Str("engine", cfg.Media.Engine).Msg("config ready")
	return cfg, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Media.Engine {
	case EnginePion, EngineLoopback:
	default:
		return fmt.Errorf("media.engine: unknown engine %q", c.Media.Engine)
	}
	if c.Media.UDPPortMax < c.Media.UDPPortMin {
		return fmt.Errorf("media.udp_port_max %d below udp_port_min %d", c.Media.UDPPortMax, c.Media.UDPPortMin)
	}
	if c.Signal.Timeout <= 0 {
		return fmt.Errorf("signal.timeout must be positive")
	}
	return nil
}

// ApplyLogLevel sets the global zerolog level; unknown names fall back to info.
func ApplyLogLevel(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

// Watch reloads the log level when the config file changes.
// Other keys need a restart.
func Watch(v *viper.Viper) {
	if _, err := os.Stat(v.ConfigFileUsed()); err != nil {
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		level := v.GetString("log_level")
		ApplyLogLevel(level)
		log.Info().Str("module", "config").Str("file", e.Name).Str("op", e.Op.String()).
			Str("log_level", level).Msg("config changed")
	})
	v.WatchConfig()
}
