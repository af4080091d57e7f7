// Package config loads server settings from defaults, an optional YAML file
// and TTT_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const EnvPrefix = "TTT"

type Config struct {
	HTTP     HTTPConf     `mapstructure:"http"`
	Auth     AuthConf     `mapstructure:"auth"`
	Log      LogConf      `mapstructure:"log"`
	Redis    RedisConf    `mapstructure:"redis"`
	Postgres PostgresConf `mapstructure:"postgres"`
	Store    StoreConf    `mapstructure:"store"`
	JoinCode JoinCodeConf `mapstructure:"joincode"`
	WS       WSConf       `mapstructure:"ws"`
}

type HTTPConf struct {
	Addr           string        `mapstructure:"addr"`
	AllowedOrigins []string      `mapstructure:"allowedOrigins"`
	ShutdownGrace  time.Duration `mapstructure:"shutdownGrace"`
}

type AuthConf struct {
	JWTSecret string        `mapstructure:"jwtSecret"`
	TokenTTL  time.Duration `mapstructure:"tokenTTL"`
}

type LogConf struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	// File, when set, receives a copy of every log line.
	File string `mapstructure:"file"`
}

// RedisConf enables the Redis room mirror when Addr is set.
type RedisConf struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// PostgresConf enables game history when URL is set.
type PostgresConf struct {
	URL string `mapstructure:"url"`
}

type StoreConf struct {
	QueueSize int `mapstructure:"queueSize"`
}

type JoinCodeConf struct {
	Length int `mapstructure:"length"`
}

type WSConf struct {
	PingInterval   time.Duration `mapstructure:"pingInterval"`
	PongWait       time.Duration `mapstructure:"pongWait"`
	WriteWait      time.Duration `mapstructure:"writeWait"`
	MaxMessageSize int64         `mapstructure:"maxMessageSize"`
	SendBuffer     int           `mapstructure:"sendBuffer"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.allowedOrigins", []string{"*"})
	v.SetDefault("http.shutdownGrace", 10*time.Second)

	v.SetDefault("auth.jwtSecret", "")
	v.SetDefault("auth.tokenTTL", 24*time.Hour)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file", "")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 6*time.Hour)

	v.SetDefault("postgres.url", "")

	v.SetDefault("store.queueSize", 1024)

	v.SetDefault("joincode.length", 6)

	v.SetDefault("ws.pingInterval", 54*time.Second)
	v.SetDefault("ws.pongWait", 60*time.Second)
	v.SetDefault("ws.writeWait", 10*time.Second)
	v.SetDefault("ws.maxMessageSize", 4096)
	v.SetDefault("ws.sendBuffer", 256)
}

// Load reads configuration. configFile may be empty.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.HTTP.Addr == "" {
		errs = append(errs, errors.New("http.addr is required"))
	}
	if c.WS.PongWait <= c.WS.PingInterval {
		errs = append(errs, fmt.Errorf("ws.pongWait (%s) must exceed ws.pingInterval (%s)", c.WS.PongWait, c.WS.PingInterval))
	}
	if c.WS.SendBuffer <= 0 {
		errs = append(errs, errors.New("ws.sendBuffer must be positive"))
	}
	if c.Store.QueueSize <= 0 {
		errs = append(errs, errors.New("store.queueSize must be positive"))
	}
	if c.JoinCode.Length < 4 {
		errs = append(errs, errors.New("joincode.length must be at least 4"))
	}
	return errors.Join(errs...)
}
