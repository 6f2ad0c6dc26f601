package siridb

import (
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/spf13/viper"
)

// BeaconConfig configures the node liveness beacon.
type BeaconConfig struct {
	// Bucket is the NATS JetStream KV bucket name for liveness records.
	Bucket string `yaml:"bucket" mapstructure:"bucket"`

	// Interval is how often this node publishes its liveness record.
	Interval time.Duration `yaml:"interval" mapstructure:"interval"`

	// TTL is how long a liveness record remains valid before the node is
	// considered gone. Recommended: 3x Interval.
	TTL time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

// ReplicationConfig configures the per-database replication flusher.
type ReplicationConfig struct {
	// FlushInterval is the drain poll period of the replication queue.
	FlushInterval time.Duration `yaml:"flushInterval" mapstructure:"flush_interval"`

	// MaxQueue is the maximum number of queued replication packages per
	// database before Push reports back-pressure.
	MaxQueue int `yaml:"maxQueue" mapstructure:"max_queue"`
}

// Config is the configuration for the cluster-health core.
//
// All duration fields accept standard Go duration strings like "30s", "5m", "1h".
type Config struct {
	// HeartbeatInterval is the recurring period between heartbeat ticks.
	// Must be greater than zero.
	HeartbeatInterval time.Duration `yaml:"heartbeatInterval" mapstructure:"heartbeat_interval"`

	// ConnectTimeout bounds a single peer connect attempt within a run.
	// A run visits peers sequentially, so without this bound one dead peer
	// could stall the remaining databases for the whole run.
	ConnectTimeout time.Duration `yaml:"connectTimeout" mapstructure:"connect_timeout"`

	// Beacon controls the node liveness beacon.
	Beacon BeaconConfig `yaml:"beacon" mapstructure:"beacon"`

	// Replication controls the replication flusher.
	Replication ReplicationConfig `yaml:"replication" mapstructure:"replication"`
}

// DefaultConfig returns a Config with production defaults.
//
// Returns:
//   - Config: Configuration with default values
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: 30 * time.Second,
		ConnectTimeout:    10 * time.Second,
		Beacon: BeaconConfig{
			Bucket:   "siridb-beacon",
			Interval: 2 * time.Second,
			TTL:      6 * time.Second,
		},
		Replication: ReplicationConfig{
			FlushInterval: 10 * time.Millisecond,
			MaxQueue:      1024,
		},
	}
}

// SetDefaults fills in missing configuration values with production defaults.
//
// Parameters:
//   - cfg: Config to apply defaults to (modified in place)
func SetDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = defaults.HeartbeatInterval
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = defaults.ConnectTimeout
	}
	if cfg.Beacon.Bucket == "" {
		cfg.Beacon.Bucket = defaults.Beacon.Bucket
	}
	if cfg.Beacon.Interval == 0 {
		cfg.Beacon.Interval = defaults.Beacon.Interval
	}
	if cfg.Beacon.TTL == 0 {
		cfg.Beacon.TTL = defaults.Beacon.TTL
	}
	if cfg.Replication.FlushInterval == 0 {
		cfg.Replication.FlushInterval = defaults.Replication.FlushInterval
	}
	if cfg.Replication.MaxQueue == 0 {
		cfg.Replication.MaxQueue = defaults.Replication.MaxQueue
	}
}

func positiveDuration(name string) validation.RuleFunc {
	return func(value any) error {
		d, ok := value.(time.Duration)
		if !ok {
			return validation.NewError("validation_invalid_type", "must be a duration")
		}
		if d <= 0 {
			return validation.NewError("validation_not_positive",
				fmt.Sprintf("%s must be greater than zero", name))
		}

		return nil
	}
}

// Validate checks configuration constraints and returns an error for invalid values.
//
// Rules:
//   - HeartbeatInterval > 0 (the one option the heartbeat core recognizes)
//   - ConnectTimeout > 0
//   - Beacon.Interval > 0, Beacon.TTL >= 2*Beacon.Interval (allow one missed beacon)
//   - Replication.FlushInterval > 0, Replication.MaxQueue > 0
//
// Returns:
//   - error: Validation error with a clear explanation, nil if valid
func (cfg *Config) Validate() error {
	err := validation.ValidateStruct(cfg,
		validation.Field(&cfg.HeartbeatInterval, validation.By(positiveDuration("heartbeat_interval"))),
		validation.Field(&cfg.ConnectTimeout, validation.By(positiveDuration("connect_timeout"))),
		validation.Field(&cfg.Beacon, validation.By(func(value any) error {
			bc, ok := value.(BeaconConfig)
			if !ok {
				return validation.NewError("validation_invalid_type", "must be a BeaconConfig")
			}

			return validation.ValidateStruct(&bc,
				validation.Field(&bc.Bucket, validation.Required),
				validation.Field(&bc.Interval, validation.By(positiveDuration("beacon.interval"))),
				validation.Field(&bc.TTL, validation.By(func(any) error {
					if bc.TTL < 2*bc.Interval {
						return validation.NewError("validation_beacon_ttl",
							fmt.Sprintf("beacon.ttl (%v) must be >= 2*beacon.interval (%v)", bc.TTL, bc.Interval))
					}

					return nil
				})),
			)
		})),
		validation.Field(&cfg.Replication, validation.By(func(value any) error {
			rc, ok := value.(ReplicationConfig)
			if !ok {
				return validation.NewError("validation_invalid_type", "must be a ReplicationConfig")
			}

			return validation.ValidateStruct(&rc,
				validation.Field(&rc.FlushInterval, validation.By(positiveDuration("replication.flush_interval"))),
				validation.Field(&rc.MaxQueue, validation.Min(1)),
			)
		})),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return nil
}

// LoadConfig reads a YAML configuration file, applies defaults and validates.
//
// Environment variables override file values; keys are upper-cased with dots
// replaced by underscores (e.g. SIRIDB_HEARTBEAT_INTERVAL).
//
// Parameters:
//   - path: Path to the YAML configuration file ("" uses defaults only)
//
// Returns:
//   - *Config: Loaded configuration
//   - error: Read, unmarshal or validation error
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("siridb")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	SetDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// TestConfig returns a configuration optimized for fast test execution.
//
// Test timings are 10-100x faster than production defaults to enable rapid
// iteration without sacrificing coverage. Use DefaultConfig() for production
// deployments.
//
// Returns:
//   - Config: Configuration with fast timings for tests
func TestConfig() Config {
	cfg := DefaultConfig()

	cfg.HeartbeatInterval = 50 * time.Millisecond
	cfg.ConnectTimeout = 500 * time.Millisecond
	cfg.Beacon.Interval = 100 * time.Millisecond
	cfg.Beacon.TTL = 1 * time.Second
	cfg.Replication.FlushInterval = 5 * time.Millisecond

	return cfg
}
