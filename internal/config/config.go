package config

import (
	"time"

	"github.com/spf13/viper"

	pkgconfig "github.com/rikupokkuru/Framework-Design-for-Online-Deliberation-Platforms/pkg/config"
	"github.com/rikupokkuru/Framework-Design-for-Online-Deliberation-Platforms/pkg/database"
	"github.com/rikupokkuru/Framework-Design-for-Online-Deliberation-Platforms/pkg/log"
	"github.com/rikupokkuru/Framework-Design-for-Online-Deliberation-Platforms/pkg/storage"
)

type Config struct {
	Server       ServerConfig
	WebSocket    WebSocketConfig
	Redis        RedisConfig
	Database     database.Config
	Storage      StorageConfig
	Facilitation FacilitationConfig
	Log          log.Config
}

type ServerConfig struct {
	Host string
	Port int
}

type WebSocketConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
}

type RedisConfig struct {
	Address        string
	Password       string
	DB             int
	ChannelPrefix  string        `mapstructure:"channel_prefix"`
	PresencePrefix string        `mapstructure:"presence_prefix"`
	PresenceTTL    time.Duration `mapstructure:"presence_ttl"`
}

type StorageConfig struct {
	Backend string `mapstructure:"backend"` // local, s3
	Local   storage.LocalConfig
	S3      storage.S3Config
}

type FacilitationConfig struct {
	// StallThreshold is how long a room may go without messages before a
	// progress check reports stagnation.
	StallThreshold time.Duration `mapstructure:"stall_threshold"`
	HistoryLimit   int           `mapstructure:"history_limit"`
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load("./config", "config")
	if err != nil {
		return nil, err
	}

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 65536)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel_prefix", "deliberation:room")
	v.SetDefault("redis.presence_prefix", "deliberation:presence")
	v.SetDefault("redis.presence_ttl", "24h")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.file_path", "./deliberation.db")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.local.base_path", "./uploads")
	v.SetDefault("storage.local.url_base", "/uploads")
	v.SetDefault("storage.s3.region", "ap-northeast-1")
	v.SetDefault("facilitation.stall_threshold", "5m")
	v.SetDefault("facilitation.history_limit", 50)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.service_name", "deliberation-server")

	// Override from environment
	v.BindEnv("server.port", "PORT")
	v.BindEnv("redis.address", "REDIS_ADDRESS")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("database.driver", "DATABASE_DRIVER")
	v.BindEnv("database.host", "DATABASE_HOST")
	v.BindEnv("database.password", "DATABASE_PASSWORD")
	v.BindEnv("storage.backend", "STORAGE_BACKEND")
	v.BindEnv("storage.s3.bucket", "S3_BUCKET")
	v.BindEnv("storage.s3.access_key_id", "AWS_ACCESS_KEY_ID")
	v.BindEnv("storage.s3.secret_access_key", "AWS_SECRET_ACCESS_KEY")
	v.BindEnv("log.level", "LOG_LEVEL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Parse durations
	cfg.WebSocket.PingInterval = parseDuration(v, "websocket.ping_interval", 30*time.Second)
	cfg.WebSocket.PongWait = parseDuration(v, "websocket.pong_wait", 60*time.Second)
	cfg.WebSocket.WriteWait = parseDuration(v, "websocket.write_wait", 10*time.Second)
	cfg.Redis.PresenceTTL = parseDuration(v, "redis.presence_ttl", 24*time.Hour)
	cfg.Facilitation.StallThreshold = parseDuration(v, "facilitation.stall_threshold", 5*time.Minute)

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
