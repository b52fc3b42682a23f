// Package config enables config file parsing.
package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"

	"github.com/substrate-debug-kit/offline-election/log"
)

// EnvPrefix prefixes environment variables that override config values.
// `__` separates nesting levels, e.g. OFFLINE_ELECTION_SOURCE__RPC.
const EnvPrefix = "OFFLINE_ELECTION_"

// Config contains the CLI configuration.
type Config struct {
	Source   *SourceConfig   `koanf:"source"`
	Cache    *CacheConfig    `koanf:"cache"`
	Election *ElectionConfig `koanf:"election"`
	Log      *LogConfig      `koanf:"log"`
	Metrics  *MetricsConfig  `koanf:"metrics"`
}

// Validate performs config validation.
func (cfg *Config) Validate() error {
	if cfg.Source != nil {
		if err := cfg.Source.Validate(); err != nil {
			return fmt.Errorf("source: %w", err)
		}
	}
	if cfg.Cache != nil {
		if err := cfg.Cache.Validate(); err != nil {
			return fmt.Errorf("cache: %w", err)
		}
	}
	if cfg.Election != nil {
		if err := cfg.Election.Validate(); err != nil {
			return fmt.Errorf("election: %w", err)
		}
	}
	if cfg.Log != nil {
		if err := cfg.Log.Validate(); err != nil {
			return fmt.Errorf("log: %w", err)
		}
	}
	if cfg.Metrics != nil {
		if err := cfg.Metrics.Validate(); err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
	}

	return nil
}

// SourceConfig describes the node to read chain state from.
type SourceConfig struct {
	// RPC is the ws(s):// or http(s):// endpoint of the node.
	RPC string `koanf:"rpc"`

	// At is a block hash or number. Empty means the finalized head.
	At string `koanf:"at"`

	// Network forces a chain profile instead of detecting it from the runtime.
	Network string `koanf:"network"`
	// CustomProfile describes a chain not covered by DefaultProfiles.
	CustomProfile *ChainProfile `koanf:"custom_profile"`

	// Modules restricts snapshots to the given modules. Empty means the
	// modules each command needs.
	Modules []string `koanf:"modules"`

	// Paged enumerates keys with state_getKeysPaged instead of state_getPairs.
	// Required by nodes that refuse unsafe RPC calls.
	Paged    bool   `koanf:"paged"`
	PageSize uint32 `koanf:"page_size"`
	MaxKeys  int    `koanf:"max_keys"`

	// Parallelism bounds the number of modules scraped concurrently.
	Parallelism int `koanf:"parallelism"`

	// RequestsPerSecond throttles node requests. Zero disables throttling.
	RequestsPerSecond float64 `koanf:"requests_per_second"`
}

func (cfg *SourceConfig) Validate() error {
	if cfg.RPC == "" {
		return fmt.Errorf("rpc endpoint not configured")
	}
	u, err := url.Parse(cfg.RPC)
	if err != nil {
		return fmt.Errorf("rpc endpoint: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss", "http", "https":
	default:
		return fmt.Errorf("rpc endpoint %q: unsupported scheme %q", cfg.RPC, u.Scheme)
	}
	if cfg.Network != "" && cfg.CustomProfile != nil {
		return fmt.Errorf("network and custom_profile specified, can only use one")
	}
	if cfg.Network != "" {
		if _, ok := DefaultProfiles[cfg.Network]; !ok {
			return fmt.Errorf("unknown network %q", cfg.Network)
		}
	}
	if cfg.CustomProfile != nil {
		if err := cfg.CustomProfile.Validate(); err != nil {
			return fmt.Errorf("custom_profile: %w", err)
		}
	}
	if cfg.Parallelism < 0 {
		return fmt.Errorf("parallelism must not be negative")
	}
	if cfg.MaxKeys < 0 {
		return fmt.Errorf("max_keys must not be negative")
	}
	if cfg.RequestsPerSecond < 0 {
		return fmt.Errorf("requests_per_second must not be negative")
	}
	return nil
}

// Profile returns the configured chain profile, or nil if it should be
// detected from the runtime version.
func (cfg *SourceConfig) Profile() *ChainProfile {
	if cfg.CustomProfile != nil {
		return cfg.CustomProfile
	}
	if cfg.Network != "" {
		return DefaultProfiles[cfg.Network]
	}
	return nil
}

// Cache policies.
const (
	CachePolicyDisabled     = "disabled"
	CachePolicyUseIfPresent = "use_if_present"
	CachePolicyForceRefresh = "force_refresh"
)

type CacheConfig struct {
	// CacheDir is the directory where snapshots are cached.
	CacheDir string `koanf:"cache_dir"`

	// Policy is one of disabled, use_if_present, force_refresh.
	Policy string `koanf:"policy"`

	// Persist stores freshly scraped snapshots in the cache.
	Persist bool `koanf:"persist"`
}

func (cfg *CacheConfig) Validate() error {
	switch cfg.Policy {
	case "", CachePolicyDisabled:
		return nil
	case CachePolicyUseIfPresent, CachePolicyForceRefresh:
	default:
		return fmt.Errorf("unknown cache policy %q", cfg.Policy)
	}
	if cfg.CacheDir == "" {
		return fmt.Errorf("invalid cache filepath")
	}
	return nil
}

// ElectionConfig holds defaults for the election commands.
type ElectionConfig struct {
	Staking *ElectionRunConfig `koanf:"staking"`
	Council *ElectionRunConfig `koanf:"council"`
}

func (cfg *ElectionConfig) Validate() error {
	if cfg.Staking != nil {
		if err := cfg.Staking.Validate(); err != nil {
			return fmt.Errorf("staking: %w", err)
		}
	}
	if cfg.Council != nil {
		if err := cfg.Council.Validate(); err != nil {
			return fmt.Errorf("council: %w", err)
		}
	}
	return nil
}

// ElectionRunConfig configures one election run.
type ElectionRunConfig struct {
	// Count is the number of seats. Zero reads it from chain state
	// (staking) or the chain profile (council).
	Count int `koanf:"count"`
	// MinCount is the minimum number of winners for a valid election.
	MinCount int `koanf:"min_count"`
	// Iterations of the balancing post-processing. Zero disables it.
	Iterations int `koanf:"iterations"`
	// Tolerance of the balancing post-processing, in vote weight units.
	Tolerance uint64 `koanf:"tolerance"`
	// Reduce removes redundant edges from the solution.
	Reduce bool `koanf:"reduce"`
	// ManualOverride is the path of an override document (YAML or JSON).
	ManualOverride string `koanf:"manual_override"`
	// Output is the path the JSON result is written to.
	Output string `koanf:"output"`
}

func (cfg *ElectionRunConfig) Validate() error {
	if cfg.Count < 0 || cfg.MinCount < 0 || cfg.Iterations < 0 {
		return fmt.Errorf("count, min_count and iterations must not be negative")
	}
	if cfg.Count > 0 && cfg.MinCount > cfg.Count {
		return fmt.Errorf("min_count %d exceeds count %d", cfg.MinCount, cfg.Count)
	}
	return nil
}

// LogConfig contains the logging configuration.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
	File   string `koanf:"file"`
}

// Validate validates the logging configuration.
func (cfg *LogConfig) Validate() error {
	var format log.Format
	if err := format.Set(cfg.Format); err != nil {
		return err
	}
	var level log.Level
	return level.Set(cfg.Level)
}

// MetricsConfig contains the metrics configuration.
type MetricsConfig struct {
	PullEndpoint string `koanf:"pull_endpoint"`
	// PprofEndpoint optionally serves runtime profiles.
	PprofEndpoint string `koanf:"pprof_endpoint"`
}

// Validate validates the metrics configuration.
func (cfg *MetricsConfig) Validate() error {
	if cfg.PullEndpoint == "" {
		return fmt.Errorf("malformed Prometheus pull endpoint '%s'", cfg.PullEndpoint)
	}
	return nil
}

// InitConfig initializes configuration from file. An empty path skips the
// file and only reads the environment.
func InitConfig(f string) (*Config, error) {
	if f == "" {
		return initConfig(nil)
	}
	return initConfig(file.Provider(f))
}

func initConfig(p koanf.Provider) (*Config, error) {
	var config Config
	k := koanf.New(".")

	// Load configuration from the yaml config.
	if p != nil {
		if err := k.Load(p, yaml.Parser()); err != nil {
			return nil, err
		}
	}

	// Load environment variables and merge into the loaded config.
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		// `__` is used as a hierarchy delimiter.
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, err
	}

	// Unmarshal into config.
	if err := k.Unmarshal("", &config); err != nil {
		return nil, err
	}

	// Validate config.
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}
