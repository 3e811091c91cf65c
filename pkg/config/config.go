package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the runtime configuration for the evaluation core.
type Config struct {
	// SimulatorCommand is the command prefix used to invoke the external
	// simulator CLI, e.g. ["python3", "-m", "plogic.cli"].
	SimulatorCommand []string `yaml:"simulator_command"`

	// SimulatorSrc is an optional checkout of the simulator sources. When the
	// directory exists it is appended to the subprocess search path.
	SimulatorSrc string `yaml:"simulator_src"`

	// ResultsDir is where sweep and optimization payloads are persisted.
	ResultsDir string `yaml:"results_dir"`

	// TrackingDir enables the experiment-tracking side channel when set.
	TrackingDir string `yaml:"tracking_dir"`

	// RedisURL selects the distributed cache backend when reachable.
	RedisURL string `yaml:"redis_url"`

	// MaxWorkers bounds the worker pool hosting subprocess calls and the
	// optimizer loop. Zero means min(4, NumCPU).
	MaxWorkers int `yaml:"max_workers"`

	// Optimizer selects the search strategy: "gp" or "random".
	Optimizer string `yaml:"optimizer"`

	LogLevel string `yaml:"log_level"`

	Cache    CacheConfig    `yaml:"cache"`
	Timeouts TimeoutsConfig `yaml:"timeouts"`
}

// CacheConfig bounds the local evaluation cache.
type CacheConfig struct {
	MaxItems   int     `yaml:"max_items"`
	TTLSeconds float64 `yaml:"ttl_seconds"`
}

// TimeoutsConfig holds the per-stage deadlines, in seconds.
type TimeoutsConfig struct {
	CascadeSeconds      float64 `yaml:"cascade_seconds"`
	CharacterizeSeconds float64 `yaml:"characterize_seconds"`
	TruthTableSeconds   float64 `yaml:"truth_table_seconds"`
	ObjectiveSeconds    float64 `yaml:"objective_seconds"`
	HealthSeconds       float64 `yaml:"health_seconds"`
}

// Default returns the built-in configuration, before environment overrides.
func Default() *Config {
	return &Config{
		SimulatorCommand: []string{"python3", "-m", "plogic.cli"},
		SimulatorSrc:     "/app/external/photonic-logic/src",
		ResultsDir:       "/data/plogic_results",
		MaxWorkers:       defaultWorkers(),
		Optimizer:        "gp",
		LogLevel:         "info",
		Cache: CacheConfig{
			MaxItems:   1024,
			TTLSeconds: 1800,
		},
		Timeouts: TimeoutsConfig{
			CascadeSeconds:      60,
			CharacterizeSeconds: 30,
			TruthTableSeconds:   45,
			ObjectiveSeconds:    60,
			HealthSeconds:       5,
		},
	}
}

func defaultWorkers() int {
	n := runtime.NumCPU()
	if n > 4 {
		n = 4
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Load reads a YAML configuration file, applies environment overrides and
// validates the result. An empty path yields the defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv merges the environment knobs the deployment historically used.
func (c *Config) applyEnv() {
	if v := os.Getenv("PLOGIC_SRC"); v != "" {
		c.SimulatorSrc = v
	}
	if v := os.Getenv("PLOGIC_RESULTS"); v != "" {
		c.ResultsDir = v
	}
	if v := os.Getenv("PLOGIC_TRACKING"); v != "" {
		c.TrackingDir = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.RedisURL = v
	}
	if v := os.Getenv("PLOGIC_MAX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxWorkers = n
		}
	}
	if v := os.Getenv("PLOGIC_OPTIMIZER"); v != "" {
		c.Optimizer = v
	}
	overrideSeconds(&c.Timeouts.CascadeSeconds, "PLOGIC_TIMEOUT")
	overrideSeconds(&c.Timeouts.CharacterizeSeconds, "PLOGIC_CHAR_TIMEOUT")
	overrideSeconds(&c.Timeouts.TruthTableSeconds, "PLOGIC_TRUTH_TIMEOUT")
	overrideSeconds(&c.Timeouts.ObjectiveSeconds, "PLOGIC_OBJECTIVE_TIMEOUT")
}

func overrideSeconds(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

// Validate performs validation on the configuration.
func (c *Config) Validate() error {
	if len(c.SimulatorCommand) == 0 {
		return fmt.Errorf("simulator_command cannot be empty")
	}
	if c.ResultsDir == "" {
		return fmt.Errorf("results_dir cannot be empty")
	}
	if c.MaxWorkers < 0 {
		return fmt.Errorf("max_workers cannot be negative, got %d", c.MaxWorkers)
	}
	switch c.Optimizer {
	case "gp", "random":
	default:
		return fmt.Errorf("invalid optimizer: %s (must be gp or random)", c.Optimizer)
	}
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log_level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}
	if c.Cache.MaxItems <= 0 {
		return fmt.Errorf("cache max_items must be positive, got %d", c.Cache.MaxItems)
	}
	if c.Cache.TTLSeconds <= 0 {
		return fmt.Errorf("cache ttl_seconds must be positive, got %f", c.Cache.TTLSeconds)
	}
	for name, v := range map[string]float64{
		"cascade_seconds":      c.Timeouts.CascadeSeconds,
		"characterize_seconds": c.Timeouts.CharacterizeSeconds,
		"truth_table_seconds":  c.Timeouts.TruthTableSeconds,
		"objective_seconds":    c.Timeouts.ObjectiveSeconds,
		"health_seconds":       c.Timeouts.HealthSeconds,
	} {
		if v <= 0 {
			return fmt.Errorf("timeout %s must be positive, got %f", name, v)
		}
	}
	return nil
}

// Workers returns the effective worker pool size.
func (c *Config) Workers() int {
	if c.MaxWorkers > 0 {
		return c.MaxWorkers
	}
	return defaultWorkers()
}

// CacheTTL returns the cache expiry as a duration.
func (c *Config) CacheTTL() time.Duration {
	return seconds(c.Cache.TTLSeconds)
}

// CascadeTimeout bounds a full cascade evaluation.
func (c *Config) CascadeTimeout() time.Duration { return seconds(c.Timeouts.CascadeSeconds) }

// CharacterizeTimeout bounds the cheap introspection call.
func (c *Config) CharacterizeTimeout() time.Duration { return seconds(c.Timeouts.CharacterizeSeconds) }

// TruthTableTimeout bounds a truth-table generation run.
func (c *Config) TruthTableTimeout() time.Duration { return seconds(c.Timeouts.TruthTableSeconds) }

// ObjectiveTimeout bounds one optimizer objective evaluation.
func (c *Config) ObjectiveTimeout() time.Duration { return seconds(c.Timeouts.ObjectiveSeconds) }

// HealthTimeout bounds the health probe.
func (c *Config) HealthTimeout() time.Duration { return seconds(c.Timeouts.HealthSeconds) }

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
