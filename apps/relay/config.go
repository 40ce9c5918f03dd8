package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/mahaj/chat-relay/pkg/logger"
	"github.com/mahaj/chat-relay/pkg/store"
)

var ErrMissingSecret = errors.New("JWT_SECRET is required")

type Config struct {
	Port        int    `env:"PORT,default=3001"`
	Host        string `env:"HOST"`
	FrontendURL string `env:"FRONTEND_URL"`
	JWTSecret   string `env:"JWT_SECRET"`

	StoreBackend   string `env:"STORE_BACKEND,default=badger"`
	ScyllaHosts    string `env:"SCYLLA_HOSTS,default=localhost:9042"`
	ScyllaKeyspace string `env:"SCYLLA_KEYSPACE,default=chat"`
	PostgresDSN    string `env:"POSTGRES_DSN"`
	BadgerPath     string `env:"BADGER_PATH"`

	RedisAddr    string `env:"REDIS_ADDR"`
	KafkaBrokers string `env:"KAFKA_BROKERS"`
	KafkaTopic   string `env:"KAFKA_TOPIC,default=chat-messages"`

	SnowflakeNode  int64 `env:"SNOWFLAKE_NODE,default=1"`
	SendBuffer     int   `env:"SEND_BUFFER,default=256"`
	MaxMessageSize int64 `env:"MAX_MESSAGE_SIZE,default=65536"`

	LogLevel   string `env:"LOG_LEVEL,default=info"`
	LogBackend string `env:"LOG_BACKEND"`
	AppEnv     string `env:"APP_ENV,default=dev"`
	LogFile    string `env:"LOG_FILE"`
}

// loadConfig reads the environment, after merging a .env file if present.
func loadConfig() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return ErrMissingSecret
	}
	switch strings.ToLower(c.StoreBackend) {
	case store.BackendBadger, store.BackendScylla:
	case store.BackendPostgres:
		if c.PostgresDSN == "" {
			return errors.New("POSTGRES_DSN is required for the postgres backend")
		}
	default:
		return fmt.Errorf("%w: %q", store.ErrUnknownBackend, c.StoreBackend)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT out of range: %d", c.Port)
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch logger.Backend(c.LogBackend) {
	case "", logger.BackendStd, logger.BackendZap:
	default:
		return fmt.Errorf("unknown LOG_BACKEND %q", c.LogBackend)
	}
	return nil
}

func (c Config) addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c Config) storeConfig() store.Config {
	return store.Config{
		Backend:        c.StoreBackend,
		ScyllaHosts:    store.SplitHosts(c.ScyllaHosts),
		ScyllaKeyspace: c.ScyllaKeyspace,
		PostgresDSN:    c.PostgresDSN,
		BadgerPath:     c.BadgerPath,
	}
}

func (c Config) kafkaBrokers() []string {
	return store.SplitHosts(c.KafkaBrokers)
}

func (c Config) loggerConfig() logger.Config {
	lvl, _ := logger.ParseLevel(c.LogLevel)
	return logger.Config{
		Service: "chat-relay",
		Version: version,
		Level:   lvl,
		Env:     logger.ParseEnv(c.AppEnv),
		Backend: logger.Backend(c.LogBackend),
		File:    c.LogFile,
	}
}

func (c Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("addr", c.addr()),
		slog.String("store", c.StoreBackend),
		slog.Bool("presence", c.RedisAddr != ""),
		slog.Bool("events", c.KafkaBrokers != ""),
		slog.String("frontend_url", c.FrontendURL),
	)
}
