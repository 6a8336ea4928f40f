package agentmesh

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	require.Equal(t, TransportInProcess, cfg.Transport.Mode)
	require.Equal(t, DefaultRetryPolicy, cfg.Queue.DefaultRetry.Policy())
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
transport:
  mode: redis
  audit_retention: 12h
redis:
  addr: redis.internal:6379
  db: 3
queue:
  default_timeout: 2m
  default_retry:
    max_retries: 5
    base_delay: 250ms
    backoff_factor: 1.5
    max_delay: 30s
lock:
  default_ttl: 45s
feedback:
  window: 30m
  min_samples: 10
worker:
  queues:
    critical: 6
    default: 1
  concurrency: 8
`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, TransportRedis, cfg.Transport.Mode)
	require.Equal(t, 12*time.Hour, cfg.Transport.AuditRetention.Std())
	require.Equal(t, "redis.internal:6379", cfg.Redis.Addr)
	require.Equal(t, 3, cfg.Redis.DB)
	require.Equal(t, 2*time.Minute, cfg.Queue.DefaultTimeout.Std())
	require.Equal(t, RetryPolicy{
		MaxRetries:    5,
		BaseDelay:     250 * time.Millisecond,
		BackoffFactor: 1.5,
		MaxDelay:      30 * time.Second,
	}, cfg.Queue.DefaultRetry.Policy())
	require.Equal(t, 45*time.Second, cfg.Lock.DefaultTTL.Std())
	require.Equal(t, 10, cfg.Feedback.MinSamples)
	require.Equal(t, 6, cfg.Worker.Queues["critical"])
	require.Equal(t, 8, cfg.Worker.Concurrency)
	// Untouched sections keep their defaults.
	require.Equal(t, 50, cfg.Checkpoint.KeepLast)
	require.Equal(t, time.Hour, cfg.Queue.Retention.Std())
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoadConfig_BadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("lock:\n  default_ttl: soonish\n"), 0o600))
	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad transport mode", func(c *Config) { c.Transport.Mode = "carrier-pigeon" }},
		{"redis mode without addr", func(c *Config) {
			c.Transport.Mode = TransportRedis
			c.Redis.Addr = ""
		}},
		{"negative retries", func(c *Config) { c.Queue.DefaultRetry.MaxRetries = -1 }},
		{"backoff factor below one", func(c *Config) { c.Queue.DefaultRetry.BackoffFactor = 0.5 }},
		{"zero lock ttl", func(c *Config) { c.Lock.DefaultTTL = 0 }},
		{"zero min samples", func(c *Config) { c.Feedback.MinSamples = 0 }},
		{"zero concurrency", func(c *Config) { c.Worker.Concurrency = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}
