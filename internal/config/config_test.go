package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "serverless-com-demo", cfg.Project)
	assert.Equal(t, "us-central1", cfg.Location)
	assert.Equal(t, "my-queue", cfg.Queue)
	assert.Equal(t, "cities.txt", cfg.Source.File)
	assert.Equal(t, 1, cfg.Dispatch.Concurrency)
	assert.Equal(t, "Allow", cfg.Dispatch.ConcurrencyPolicy)
	assert.Equal(t, 24*time.Hour, cfg.TaskRetention)
	assert.Equal(t, []string{"localhost:2379"}, cfg.EtcdEndpoints)
	assert.Equal(t, 2*time.Second, cfg.LockTimeout)
	assert.Equal(t, "https://us-central1-serverless-com-demo.cloudfunctions.net/tasks-pizza/target", cfg.CallbackURL())
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("PROJECT", "pizza-prod")
	t.Setenv("QUEUE", "cities")
	t.Setenv("LOCATION", "europe-west1")
	t.Setenv("DISPATCH_CONCURRENCY", "8")
	t.Setenv("SOURCE_FILE", "towns.txt")

	cfg, err := load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "pizza-prod", cfg.Project)
	assert.Equal(t, "cities", cfg.Queue)
	assert.Equal(t, "europe-west1", cfg.Location)
	assert.Equal(t, 8, cfg.Dispatch.Concurrency)
	assert.Equal(t, "towns.txt", cfg.Source.File)
	assert.Equal(t, "https://europe-west1-pizza-prod.cloudfunctions.net/tasks-pizza/target", cfg.CallbackURL())
}

func TestLoad_CallbackOverride(t *testing.T) {
	t.Setenv("CALLBACK_BASE_URL", "http://localhost:8080/target")

	cfg, err := load(viper.New())
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/target", cfg.CallbackURL())
}

func TestLoad_Invalid(t *testing.T) {
	cases := []struct {
		desc string
		key  string
		val  string
	}{
		{desc: "unknown queue backend", key: "QUEUE_BACKEND", val: "sqs"},
		{desc: "redis backend without address", key: "QUEUE_BACKEND", val: "redis"},
		{desc: "postgres store without dsn", key: "STORE_BACKEND", val: "postgres"},
		{desc: "zero concurrency", key: "DISPATCH_CONCURRENCY", val: "0"},
		{desc: "unknown run policy", key: "DISPATCH_CONCURRENCY_POLICY", val: "Replace"},
	}

	for _, c := range cases {
		t.Run(c.desc, func(t *testing.T) {
			t.Setenv(c.key, c.val)
			_, err := load(viper.New())
			require.Error(t, err, c.desc)
		})
	}
}

func TestConfig_Backends(t *testing.T) {
	cases := []struct {
		queue, store  string
		etcd, process bool
	}{
		{queue: "etcd", store: "etcd", etcd: true, process: false},
		{queue: "redis", store: "postgres", etcd: true, process: false},
		{queue: "memory", store: "memory", etcd: false, process: true},
		{queue: "memory", store: "etcd", etcd: true, process: true},
		{queue: "memory", store: "postgres", etcd: true, process: true},
	}

	for _, c := range cases {
		t.Run(c.queue+"/"+c.store, func(t *testing.T) {
			cfg := &Config{QueueBackend: c.queue, StoreBackend: c.store}
			assert.Equal(t, c.etcd, cfg.NeedsEtcd())
			assert.Equal(t, c.process, cfg.InProcessWorker())
		})
	}
}
