package agentmesh

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// TransportMode selects how the bus moves messages.
type TransportMode string

const (
	// TransportInProcess uses the in-memory channel transport.
	TransportInProcess TransportMode = "inprocess"
	// TransportRedis uses networked Redis pub/sub.
	TransportRedis TransportMode = "redis"
)

// Duration is a time.Duration that accepts human-readable strings like
// "250ms" or "2h" in YAML, as well as integer nanoseconds.
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var ns int64
	if err := n.Decode(&ns); err == nil {
		*d = Duration(ns)
		return nil
	}
	var s string
	if err := n.Decode(&s); err != nil {
		return fmt.Errorf("invalid duration at line %d", n.Line)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config holds all configuration for the coordination substrate.
type Config struct {
	Transport  TransportConfig  `yaml:"transport"`
	Redis      RedisConfig      `yaml:"redis"`
	Queue      QueueConfig      `yaml:"queue"`
	Lock       LockConfig       `yaml:"lock"`
	Feedback   FeedbackConfig   `yaml:"feedback"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Worker     WorkerConfig     `yaml:"worker"`
}

// TransportConfig selects and tunes the bus transport.
type TransportConfig struct {
	Mode           TransportMode `yaml:"mode"`
	AuditRetention Duration      `yaml:"audit_retention"`
}

// RedisConfig holds durable store connection parameters.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// RetryConfig is the YAML shape of a RetryPolicy.
type RetryConfig struct {
	MaxRetries    int      `yaml:"max_retries"`
	BaseDelay     Duration `yaml:"base_delay"`
	BackoffFactor float64  `yaml:"backoff_factor"`
	MaxDelay      Duration `yaml:"max_delay"`
}

// Policy converts the config shape into the runtime policy.
func (r RetryConfig) Policy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:    r.MaxRetries,
		BaseDelay:     r.BaseDelay.Std(),
		BackoffFactor: r.BackoffFactor,
		MaxDelay:      r.MaxDelay.Std(),
	}
}

// QueueConfig holds task queue defaults.
type QueueConfig struct {
	DefaultTimeout  Duration    `yaml:"default_timeout"`
	DefaultRetry    RetryConfig `yaml:"default_retry"`
	Retention       Duration    `yaml:"retention"`
	FailedRetention Duration    `yaml:"failed_retention"`
	RequestTimeout  Duration    `yaml:"request_timeout"`
}

// LockConfig holds lock manager defaults.
type LockConfig struct {
	DefaultTTL Duration `yaml:"default_ttl"`
}

// FeedbackConfig holds routing feedback defaults.
type FeedbackConfig struct {
	Window     Duration `yaml:"window"`
	MinSamples int      `yaml:"min_samples"`
	Retention  Duration `yaml:"retention"`
}

// CheckpointConfig holds checkpoint retention defaults.
type CheckpointConfig struct {
	KeepLast int `yaml:"keep_last"`
}

// WorkerConfig holds worker runtime defaults.
type WorkerConfig struct {
	Queues       map[string]int `yaml:"queues"`
	Concurrency  int            `yaml:"concurrency"`
	PollInterval Duration       `yaml:"poll_interval"`
}

// DefaultConfig returns a configuration with sensible defaults for a
// single-process deployment.
func DefaultConfig() *Config {
	return &Config{
		Transport: TransportConfig{
			Mode:           TransportInProcess,
			AuditRetention: Duration(DefaultAuditRetention),
		},
		Redis: RedisConfig{Addr: "localhost:6379"},
		Queue: QueueConfig{
			DefaultTimeout: Duration(5 * time.Minute),
			DefaultRetry: RetryConfig{
				MaxRetries:    DefaultRetryPolicy.MaxRetries,
				BaseDelay:     Duration(DefaultRetryPolicy.BaseDelay),
				BackoffFactor: DefaultRetryPolicy.BackoffFactor,
				MaxDelay:      Duration(DefaultRetryPolicy.MaxDelay),
			},
			Retention:       Duration(time.Hour),
			FailedRetention: Duration(24 * time.Hour),
			RequestTimeout:  Duration(30 * time.Second),
		},
		Lock: LockConfig{DefaultTTL: Duration(30 * time.Second)},
		Feedback: FeedbackConfig{
			Window:     Duration(time.Hour),
			MinSamples: 5,
			Retention:  Duration(7 * 24 * time.Hour),
		},
		Checkpoint: CheckpointConfig{
			KeepLast: 50,
		},
		Worker: WorkerConfig{
			Queues:       map[string]int{"default": 1},
			Concurrency:  4,
			PollInterval: Duration(50 * time.Millisecond),
		},
	}
}

// LoadConfig reads a YAML config file over the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks invariants the components rely on.
func (c *Config) Validate() error {
	switch c.Transport.Mode {
	case TransportInProcess, TransportRedis:
	default:
		return fmt.Errorf("invalid transport mode %q", c.Transport.Mode)
	}
	if c.Transport.Mode == TransportRedis && c.Redis.Addr == "" {
		return fmt.Errorf("redis transport requires redis.addr")
	}
	if c.Queue.DefaultRetry.MaxRetries < 0 {
		return fmt.Errorf("default_retry.max_retries must be >= 0")
	}
	if c.Queue.DefaultRetry.BackoffFactor < 1 {
		return fmt.Errorf("default_retry.backoff_factor must be >= 1")
	}
	if c.Lock.DefaultTTL <= 0 {
		return fmt.Errorf("lock.default_ttl must be positive")
	}
	if c.Feedback.MinSamples < 1 {
		return fmt.Errorf("feedback.min_samples must be >= 1")
	}
	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("worker.concurrency must be >= 1")
	}
	return nil
}
