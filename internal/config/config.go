package config

import (
	"time"

	"github.com/spf13/viper"

	"github.com/AlirizaAslan/tikfinity/internal/hub"
	"github.com/AlirizaAslan/tikfinity/internal/pubsub"
	"github.com/AlirizaAslan/tikfinity/internal/tts"
	"github.com/AlirizaAslan/tikfinity/internal/upstream"
	pkgconfig "github.com/AlirizaAslan/tikfinity/pkg/config"
	"github.com/AlirizaAslan/tikfinity/pkg/database"
)

type Config struct {
	Server    ServerConfig
	WebSocket hub.Config `mapstructure:"websocket"`
	Upstream  UpstreamConfig
	Pipeline  PipelineConfig
	Redis     RedisConfig
	Database  database.Config
	TTS       TTSConfig `mapstructure:"tts"`
	Auth      AuthConfig
	Log       LogConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type UpstreamConfig struct {
	Session upstream.Config       `mapstructure:"session"`
	Bridge  upstream.BridgeConfig `mapstructure:"bridge"`
}

type PipelineConfig struct {
	DrainTimeout time.Duration `mapstructure:"drain_timeout"`
}

type RedisConfig struct {
	pubsub.RedisConfig `mapstructure:",squash"`

	Enabled bool `mapstructure:"enabled"`
}

type TTSConfig struct {
	tts.Config `mapstructure:",squash"`

	Command        string        `mapstructure:"command"`
	CommandArgs    []string      `mapstructure:"command_args"`
	CommandTimeout time.Duration `mapstructure:"command_timeout"`
	Settings       tts.Settings  `mapstructure:"settings"`
}

type AuthConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Secret   string        `mapstructure:"secret"`
	TokenTTL time.Duration `mapstructure:"token_ttl"`
	Issuer   string        `mapstructure:"issuer"`
}

type LogConfig struct {
	Level  string
	Pretty bool
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load("./config", "config")
	if err != nil {
		return nil, err
	}

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8090)
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 4096)
	v.SetDefault("websocket.send_buffer", 256)
	v.SetDefault("upstream.session.max_attempts", 3)
	v.SetDefault("upstream.session.retry_delay", "2s")
	v.SetDefault("upstream.session.probe_timeout", "15s")
	v.SetDefault("upstream.session.read_drain", "2s")
	v.SetDefault("upstream.bridge.base_url", "ws://localhost:8091")
	v.SetDefault("upstream.bridge.handshake_timeout", "10s")
	v.SetDefault("upstream.bridge.read_limit", 1048576)
	v.SetDefault("pipeline.drain_timeout", "5s")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.read_timeout", "3s")
	v.SetDefault("redis.write_timeout", "3s")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.file_path", "./data/tikfinity.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "tikfinity")
	v.SetDefault("database.password", "")
	v.SetDefault("database.db_name", "tikfinity")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.conn_max_lifetime", 30)
	v.SetDefault("tts.media_dir", "./media/tts")
	v.SetDefault("tts.base_url", "/media/tts")
	v.SetDefault("tts.command", "")
	v.SetDefault("tts.command_args", []string{})
	v.SetDefault("tts.command_timeout", "15s")
	v.SetDefault("tts.settings.enabled", false)
	v.SetDefault("tts.settings.comment_type", "any")
	v.SetDefault("tts.settings.special_command", "!say")
	v.SetDefault("tts.settings.filter_mentions", true)
	v.SetDefault("tts.settings.filter_commands", true)
	v.SetDefault("tts.settings.max_comment_length", 200)
	v.SetDefault("tts.settings.voice", "en_US-amy-medium")
	v.SetDefault("tts.settings.language", "en")
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.token_ttl", "24h")
	v.SetDefault("auth.issuer", "tikfinity")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	// Override from environment
	v.BindEnv("server.port", "PORT")
	v.BindEnv("upstream.bridge.base_url", "BRIDGE_URL")
	v.BindEnv("redis.enabled", "REDIS_ENABLED")
	v.BindEnv("redis.address", "REDIS_ADDRESS")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("database.driver", "DB_DRIVER")
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.port", "DB_PORT")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.db_name", "DB_NAME")
	v.BindEnv("tts.command", "TTS_COMMAND")
	v.BindEnv("auth.secret", "AUTH_SECRET")
	v.BindEnv("log.level", "LOG_LEVEL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Parse durations
	cfg.WebSocket.PingInterval = parseDuration(v, "websocket.ping_interval", 30*time.Second)
	cfg.WebSocket.PongWait = parseDuration(v, "websocket.pong_wait", 60*time.Second)
	cfg.WebSocket.WriteWait = parseDuration(v, "websocket.write_wait", 10*time.Second)
	cfg.Upstream.Session.RetryDelay = parseDuration(v, "upstream.session.retry_delay", 2*time.Second)
	cfg.Upstream.Session.ProbeTimeout = parseDuration(v, "upstream.session.probe_timeout", 15*time.Second)
	cfg.Upstream.Session.ReadDrain = parseDuration(v, "upstream.session.read_drain", 2*time.Second)
	cfg.Upstream.Bridge.HandshakeTimeout = parseDuration(v, "upstream.bridge.handshake_timeout", 10*time.Second)
	cfg.Pipeline.DrainTimeout = parseDuration(v, "pipeline.drain_timeout", 5*time.Second)
	cfg.Redis.ReadTimeout = parseDuration(v, "redis.read_timeout", 3*time.Second)
	cfg.Redis.WriteTimeout = parseDuration(v, "redis.write_timeout", 3*time.Second)
	cfg.TTS.CommandTimeout = parseDuration(v, "tts.command_timeout", 15*time.Second)
	cfg.Auth.TokenTTL = parseDuration(v, "auth.token_ttl", 24*time.Hour)

	return &cfg, nil
}

func parseDuration(v *viper.Viper, key string, defaultVal time.Duration) time.Duration {
	str := v.GetString(key)
	d, err := time.ParseDuration(str)
	if err != nil {
		return defaultVal
	}
	return d
}
