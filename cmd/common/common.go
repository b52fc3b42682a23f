// Package common implements common offline-election command options.
package common

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	stdLog "log"
	"os"

	"github.com/akrylysov/pogreb"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/substrate-debug-kit/offline-election/cache/kvstore"
	"github.com/substrate-debug-kit/offline-election/common"
	"github.com/substrate-debug-kit/offline-election/config"
	"github.com/substrate-debug-kit/offline-election/log"
	"github.com/substrate-debug-kit/offline-election/metrics"
	"github.com/substrate-debug-kit/offline-election/storage/nodeapi"
	"github.com/substrate-debug-kit/offline-election/storage/remote"
	"github.com/substrate-debug-kit/offline-election/storage/snapshot"
)

var rootLogger = log.NewDefaultLogger("offline-election")

// Flags holds the persistent flags shared by all commands.
type Flags struct {
	// Path to the configuration file.
	ConfigFile string
	URI        string
	At         string
	Network    string

	LogLevel         log.Level
	LogFormat        log.Format
	LogLevelChanged  bool
	LogFormatChanged bool
}

var GlobalFlags Flags

// LoadConfig reads the configuration file and environment, with the
// persistent flags taking precedence over both.
func LoadConfig() (*config.Config, error) {
	overrides := map[string]string{
		"SOURCE__RPC":     GlobalFlags.URI,
		"SOURCE__AT":      GlobalFlags.At,
		"SOURCE__NETWORK": GlobalFlags.Network,
	}
	if GlobalFlags.LogLevelChanged {
		overrides["LOG__LEVEL"] = GlobalFlags.LogLevel.String()
	}
	if GlobalFlags.LogFormatChanged {
		overrides["LOG__FORMAT"] = GlobalFlags.LogFormat.String()
	}
	for name, value := range overrides {
		if value == "" {
			continue
		}
		if err := os.Setenv(config.EnvPrefix+name, value); err != nil {
			return nil, err
		}
	}
	cfg, err := config.InitConfig(GlobalFlags.ConfigFile)
	if err != nil {
		return nil, err
	}
	if cfg.Source == nil {
		return nil, fmt.Errorf("no node configured, pass --uri or set source.rpc")
	}
	return cfg, nil
}

// Init initializes the common environment.
func Init(ctx context.Context, cfg *config.Config) error {
	var w io.Writer = os.Stderr
	format := log.FmtLogfmt
	level := log.LevelInfo

	if cfg.Log != nil {
		var err error
		if w, err = getLoggingStream(cfg.Log); err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		if err := format.Set(cfg.Log.Format); err != nil {
			return err
		}
		if err := level.Set(cfg.Log.Level); err != nil {
			return err
		}
	}
	logger, err := log.NewLogger("offline-election", w, format, level)
	if err != nil {
		return err
	}
	rootLogger = logger

	// Initialize pogreb logging.
	pogrebLogger := RootLogger().WithModule("pogreb").WithCallerUnwind(7)
	pogreb.SetLogger(stdLog.New(log.WriterIntoLogger(*pogrebLogger), "", 0))

	// Initialize Prometheus service.
	if cfg.Metrics != nil {
		promServer, err := metrics.NewPullService(cfg.Metrics.PullEndpoint, rootLogger)
		if err != nil {
			return fmt.Errorf("initializing metrics: %w", err)
		}
		promServer.StartInstrumentation(ctx)
		if cfg.Metrics.PprofEndpoint != "" {
			startPprof(ctx, cfg.Metrics.PprofEndpoint)
		}
	}
	return nil
}

// RootLogger returns the logger defined by logging flags.
func RootLogger() *log.Logger {
	return rootLogger
}

func getLoggingStream(cfg *config.LogConfig) (io.Writer, error) {
	if cfg == nil || cfg.File == "" {
		return os.Stderr, nil
	}
	w, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// DialNode connects to the configured node. The returned client must be
// closed with the returned func.
func DialNode(ctx context.Context, cfg *config.SourceConfig) (*remote.Client, func(), error) {
	api, err := nodeapi.Dial(ctx, cfg.RPC, cfg.RequestsPerSecond, metrics.NewDefaultRPCMetrics())
	if err != nil {
		return nil, nil, err
	}
	client := remote.NewClient(api, rootLogger, remote.Options{
		Paged:    cfg.Paged,
		PageSize: cfg.PageSize,
		MaxKeys:  cfg.MaxKeys,
	})
	return client, api.Close, nil
}

// Prepare loads the configuration and initializes the common environment.
func Prepare(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	if err := Init(cmd.Context(), cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Chain describes the runtime at the block being scraped.
type Chain struct {
	// Profile is the configured profile, or the one matching SpecName.
	Profile *config.ChainProfile
	// SpecName is what the node reports, even when a profile is configured.
	SpecName        string
	MetadataVersion uint8
}

// ResolveChain reads the runtime version and metadata version at block at
// and picks the chain profile. Runtimes with legacy metadata get a profile
// with LegacyStorage set.
func ResolveChain(ctx context.Context, cfg *config.SourceConfig, client *remote.Client, at common.Hash) (*Chain, error) {
	version, err := client.API().RuntimeVersion(ctx, at)
	if err != nil {
		return nil, fmt.Errorf("detecting chain: %w", err)
	}
	meta, err := client.API().Metadata(ctx, at)
	if err != nil {
		return nil, fmt.Errorf("fetching metadata: %w", err)
	}
	metaVersion, err := nodeapi.MetadataVersion(meta)
	if err != nil {
		return nil, err
	}

	profile := cfg.Profile()
	switch {
	case profile == nil:
		var known bool
		if profile, known = config.ProfileForSpec(version.SpecName); !known {
			rootLogger.Warn("unknown chain, using generic substrate profile", "spec_name", version.SpecName)
		}
	case profile.SpecName != version.SpecName:
		rootLogger.Warn("configured network does not match the node", "network", profile.SpecName, "spec_name", version.SpecName)
	}
	if metaVersion <= nodeapi.LegacyMetadataVersion && !profile.LegacyStorage {
		legacy := *profile
		legacy.LegacyStorage = true
		profile = &legacy
	}
	rootLogger.Info("resolved chain",
		"spec_name", version.SpecName,
		"spec_version", version.SpecVersion,
		"metadata_version", metaVersion,
		"profile", profile.SpecName,
		"legacy_storage", profile.LegacyStorage,
	)
	return &Chain{Profile: profile, SpecName: version.SpecName, MetadataVersion: metaVersion}, nil
}

// LoadSnapshot scrapes the modules chosen by modulesFor (all state if none)
// at the configured block, going through the snapshot cache if one is
// configured. Configured source modules take precedence over modulesFor.
func LoadSnapshot(ctx context.Context, cfg *config.Config, modulesFor func(*config.ChainProfile) []string) (*snapshot.Snapshot, *config.ChainProfile, error) {
	client, closeNode, err := DialNode(ctx, cfg.Source)
	if err != nil {
		return nil, nil, err
	}
	defer closeNode()

	at, err := client.ResolveBlock(ctx, cfg.Source.At)
	if err != nil {
		return nil, nil, fmt.Errorf("resolving block %q: %w", cfg.Source.At, err)
	}
	chain, err := ResolveChain(ctx, cfg.Source, client, at)
	if err != nil {
		return nil, nil, err
	}
	profile := chain.Profile
	modules := cfg.Source.Modules
	if len(modules) == 0 && modulesFor != nil {
		modules = modulesFor(profile)
	}
	if profile.LegacyStorage && len(modules) > 0 {
		// Legacy keys are not grouped under module prefixes.
		rootLogger.Info("legacy storage, scraping all state", "modules", modules)
		modules = nil
	}

	storageMetrics := metrics.NewDefaultStorageMetrics()
	builder := snapshot.NewBuilder(client, rootLogger).
		At(at.Hex()).
		Chain(chain.SpecName).
		Module(modules...).
		Metrics(storageMetrics)
	if cfg.Source.Parallelism > 0 {
		builder.Parallelism(cfg.Source.Parallelism)
	}

	if cfg.Cache != nil {
		policy, err := snapshot.ParseCachePolicy(cfg.Cache.Policy)
		if err != nil {
			return nil, nil, err
		}
		if policy != snapshot.CacheDisabled {
			store, err := kvstore.OpenKVStore(ctx, rootLogger.WithModule("cache"), "snapshot", cfg.Cache.CacheDir, storageMetrics)
			if err != nil {
				return nil, nil, fmt.Errorf("opening snapshot cache: %w", err)
			}
			defer store.Close()
			builder.Cache(store, policy, cfg.Cache.Persist)
		}
	}

	bar := progressbar.Default(int64(builder.ModuleCount()), "scraping")
	builder.OnModuleDone(func(string, int) { _ = bar.Add(1) })

	snap, err := builder.Build(ctx)
	_ = bar.Finish()
	if err != nil {
		return nil, nil, err
	}
	return snap, profile, nil
}

// WriteJSON writes v as indented JSON to path.
func WriteJSON(path string, v interface{}) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
