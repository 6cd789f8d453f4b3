package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// PoolOptions bounds a single adapter's connection pool.
type PoolOptions struct {
	MaxSize         int           `mapstructure:"max_size"`
	InitialSize     int           `mapstructure:"initial_size"`
	MaxIdle         int           `mapstructure:"max_idle"`
	CheckoutTimeout time.Duration `mapstructure:"checkout_timeout"`
	RetryAttempts   int           `mapstructure:"retry_attempts"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"`
}

// HealthOptions controls the Health Monitor's probe cadence.
type HealthOptions struct {
	Interval time.Duration `mapstructure:"interval"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// LagOptions controls replica-lag tracking and read stickiness.
type LagOptions struct {
	Threshold     time.Duration `mapstructure:"threshold"`
	StickyDefault time.Duration `mapstructure:"sticky_default"`
}

// LoadBalancerOptions selects the replica selection strategy.
type LoadBalancerOptions struct {
	Strategy string `mapstructure:"strategy"` // "round_robin" | "random" | "least_connections"
}

// TransactionOptions controls the Transaction/Savepoint Manager defaults.
type TransactionOptions struct {
	DefaultIsolation string `mapstructure:"default_isolation"`
}

// OptimisticOptions controls optimistic-locking retry behavior.
type OptimisticOptions struct {
	DefaultRetries int `mapstructure:"default_retries"`
}

// ScatterOptions controls the Scatter-Gather Executor's fan-out defaults.
type ScatterOptions struct {
	AllowPartial bool          `mapstructure:"allow_partial"`
	Deadline     time.Duration `mapstructure:"deadline"`
}

// Options is the complete runtime configuration for a multidb instance,
// assembled from defaults, an optional config file, and environment
// variable overrides (in increasing precedence order).
type Options struct {
	Pool       PoolOptions         `mapstructure:"pool"`
	Health     HealthOptions       `mapstructure:"health"`
	Lag        LagOptions          `mapstructure:"lag"`
	LB         LoadBalancerOptions `mapstructure:"lb"`
	Tx         TransactionOptions  `mapstructure:"tx"`
	Optimistic OptimisticOptions   `mapstructure:"optimistic"`
	Scatter    ScatterOptions      `mapstructure:"scatter"`
}

// DefaultOptions returns the documented defaults for every option.
func DefaultOptions() Options {
	return Options{
		Pool: PoolOptions{
			MaxSize:         10,
			InitialSize:     1,
			MaxIdle:         5,
			CheckoutTimeout: 5 * time.Second,
			RetryAttempts:   3,
			RetryDelay:      100 * time.Millisecond,
		},
		Health: HealthOptions{
			Interval: 10 * time.Second,
			Timeout:  2 * time.Second,
		},
		Lag: LagOptions{
			Threshold:     1 * time.Second,
			StickyDefault: 5 * time.Second,
		},
		LB: LoadBalancerOptions{
			Strategy: "round_robin",
		},
		Tx: TransactionOptions{
			DefaultIsolation: "read_committed",
		},
		Optimistic: OptimisticOptions{
			DefaultRetries: 3,
		},
		Scatter: ScatterOptions{
			AllowPartial: false,
			Deadline:     30 * time.Second,
		},
	}
}

// LoadOptions builds Options from defaults, overlaid by an optional config
// file at configPath (if non-empty), overlaid by MULTIDB_-prefixed
// environment variables, following the EnvConfig convention used elsewhere
// in this package (nested keys join with underscores, e.g.
// MULTIDB_POOL_MAX_SIZE).
func LoadOptions(configPath string) (*Options, error) {
	v := viper.New()
	v.SetEnvPrefix("MULTIDB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultOptions()
	setDefaults(v, "pool", defaults.Pool)
	setDefaults(v, "health", defaults.Health)
	setDefaults(v, "lag", defaults.Lag)
	setDefaults(v, "lb", defaults.LB)
	setDefaults(v, "tx", defaults.Tx)
	setDefaults(v, "optimistic", defaults.Optimistic)
	setDefaults(v, "scatter", defaults.Scatter)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", configPath, err)
		}
	}

	var opts Options
	if err := v.Unmarshal(&opts); err != nil {
		return nil, fmt.Errorf("decoding options: %w", err)
	}

	if err := opts.Validate(); err != nil {
		return nil, err
	}

	return &opts, nil
}

// Validate checks Options against the constraints documented for each field.
func (o *Options) Validate() error {
	v := NewValidator()
	v.RequirePositiveInt("pool.max_size", o.Pool.MaxSize)
	v.RequireNonNegativeInt("pool.initial_size", o.Pool.InitialSize)
	v.RequireNonNegativeInt("pool.max_idle", o.Pool.MaxIdle)
	v.RequireNonNegativeInt("pool.retry_attempts", o.Pool.RetryAttempts)
	v.RequireOneOf("lb.strategy", o.LB.Strategy, []string{"round_robin", "random", "least_connections"})
	v.RequireOneOf("tx.default_isolation", o.Tx.DefaultIsolation,
		[]string{"read_uncommitted", "read_committed", "repeatable_read", "serializable"})
	v.RequireNonNegativeInt("optimistic.default_retries", o.Optimistic.DefaultRetries)

	if o.Pool.InitialSize > o.Pool.MaxSize {
		return fmt.Errorf("pool.initial_size (%d) must not exceed pool.max_size (%d)", o.Pool.InitialSize, o.Pool.MaxSize)
	}

	return v.Validate()
}

// setDefaults registers every mapstructure-tagged field of a section struct
// as a viper default under "section.field", so file and env overlays only
// need to set the keys they actually want to override.
func setDefaults(v *viper.Viper, section string, values interface{}) {
	switch s := values.(type) {
	case PoolOptions:
		v.SetDefault(section+".max_size", s.MaxSize)
		v.SetDefault(section+".initial_size", s.InitialSize)
		v.SetDefault(section+".max_idle", s.MaxIdle)
		v.SetDefault(section+".checkout_timeout", s.CheckoutTimeout)
		v.SetDefault(section+".retry_attempts", s.RetryAttempts)
		v.SetDefault(section+".retry_delay", s.RetryDelay)
	case HealthOptions:
		v.SetDefault(section+".interval", s.Interval)
		v.SetDefault(section+".timeout", s.Timeout)
	case LagOptions:
		v.SetDefault(section+".threshold", s.Threshold)
		v.SetDefault(section+".sticky_default", s.StickyDefault)
	case LoadBalancerOptions:
		v.SetDefault(section+".strategy", s.Strategy)
	case TransactionOptions:
		v.SetDefault(section+".default_isolation", s.DefaultIsolation)
	case OptimisticOptions:
		v.SetDefault(section+".default_retries", s.DefaultRetries)
	case ScatterOptions:
		v.SetDefault(section+".allow_partial", s.AllowPartial)
		v.SetDefault(section+".deadline", s.Deadline)
	}
}
