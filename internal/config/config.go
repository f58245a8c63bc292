// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// SourceConfig addresses the document holding the identifier list.
type SourceConfig struct {
	URL     string        `mapstructure:"url" validate:"required,url"`
	File    string        `mapstructure:"file" validate:"required"`
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

// DispatchConfig tunes dispatch runs.
type DispatchConfig struct {
	Concurrency       int    `mapstructure:"concurrency" validate:"gte=1,lte=64"`
	Schedule          string `mapstructure:"schedule"`
	ConcurrencyPolicy string `mapstructure:"concurrency_policy" validate:"oneof=Allow Forbid"`
}

// WorkerConfig tunes the queue worker.
type WorkerConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
	MaxAttempts  int           `mapstructure:"max_attempts" validate:"gte=1"`
	Backoff      time.Duration `mapstructure:"backoff" validate:"gte=0"`
}

// Config holds all configuration for our application.
// The mapstructure tags are used by Viper to unmarshal the data.
type Config struct {
	Project         string `mapstructure:"project" validate:"required"`
	Location        string `mapstructure:"location" validate:"required"`
	Queue           string `mapstructure:"queue" validate:"required"`
	CallbackBaseURL string `mapstructure:"callback_base_url" validate:"omitempty,url"`

	Source   SourceConfig   `mapstructure:"source"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`
	Worker   WorkerConfig   `mapstructure:"worker"`

	QueueBackend  string        `mapstructure:"queue_backend" validate:"oneof=etcd redis memory"`
	StoreBackend  string        `mapstructure:"store_backend" validate:"oneof=etcd postgres memory"`
	TaskRetention time.Duration `mapstructure:"task_retention" validate:"gte=1s"`

	EtcdEndpoints     []string      `mapstructure:"etcd_endpoints" validate:"min=1"`
	EtcdTimeout       time.Duration `mapstructure:"etcd_timeout"`
	LockTimeout       time.Duration `mapstructure:"lock_timeout" validate:"gte=0"`
	RedisAddr         string        `mapstructure:"redis_addr" validate:"required_if=QueueBackend redis"`
	PostgresDSN       string        `mapstructure:"postgres_dsn" validate:"required_if=StoreBackend postgres"`
	HttpListenAddr    string        `mapstructure:"http_listen_addr"`
	GrpcListenAddr    string        `mapstructure:"grpc_listen_addr"`
	LeaderElectionTTL time.Duration `mapstructure:"leader_election_ttl"`
}

// CallbackURL returns the target every task calls, derived from location and
// project unless callback_base_url is set.
func (c *Config) CallbackURL() string {
	if c.CallbackBaseURL != "" {
		return c.CallbackBaseURL
	}
	return fmt.Sprintf("https://%s-%s.cloudfunctions.net/tasks-pizza/target", c.Location, c.Project)
}

// NeedsEtcd reports whether any backend lives in etcd. The memory queue with
// a memory store runs without it.
func (c *Config) NeedsEtcd() bool {
	return c.QueueBackend != "memory" || c.StoreBackend != "memory"
}

// InProcessWorker reports whether the server must drain the queue itself. A
// memory queue is invisible to separate worker processes.
func (c *Config) InProcessWorker() bool {
	return c.QueueBackend == "memory"
}

// Load loads configuration from .env, config file and environment variables.
func Load() (*Config, error) {
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	// Set default values
	v.SetDefault("project", "serverless-com-demo")
	v.SetDefault("location", "us-central1")
	v.SetDefault("queue", "my-queue")
	v.SetDefault("callback_base_url", "")
	v.SetDefault("source.url", "https://api.github.com/gists/7100f98e7d3dd48b3c4d7cb85cfd313f")
	v.SetDefault("source.file", "cities.txt")
	v.SetDefault("source.timeout", "30s")
	v.SetDefault("dispatch.concurrency", 1)
	v.SetDefault("dispatch.schedule", "")
	v.SetDefault("dispatch.concurrency_policy", "Allow")
	v.SetDefault("worker.poll_interval", "1s")
	v.SetDefault("worker.max_attempts", 3)
	v.SetDefault("worker.backoff", "2s")
	v.SetDefault("queue_backend", "etcd")
	v.SetDefault("store_backend", "etcd")
	v.SetDefault("task_retention", "24h")
	v.SetDefault("etcd_endpoints", []string{"localhost:2379"})
	v.SetDefault("etcd_timeout", "5s")
	v.SetDefault("lock_timeout", "2s")
	v.SetDefault("redis_addr", "")
	v.SetDefault("postgres_dsn", "")
	v.SetDefault("http_listen_addr", ":8080")
	v.SetDefault("grpc_listen_addr", ":50052")
	v.SetDefault("leader_election_ttl", "10s")

	// Set config file details
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	// Read environment variables; dispatch.concurrency maps to DISPATCH_CONCURRENCY.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			// Config file was found but another error was produced
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}
