package common

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/substrate-debug-kit/offline-election/config"
	"github.com/substrate-debug-kit/offline-election/log"
	"github.com/substrate-debug-kit/offline-election/storage/nodeapi/nodetest"
	"github.com/substrate-debug-kit/offline-election/storage/remote"
	"github.com/substrate-debug-kit/offline-election/storage/testutil"
)

func withFlags(t *testing.T, flags Flags) {
	t.Helper()
	old := GlobalFlags
	GlobalFlags = flags
	t.Cleanup(func() {
		GlobalFlags = old
		for _, name := range []string{"SOURCE__RPC", "SOURCE__AT", "SOURCE__NETWORK", "LOG__LEVEL", "LOG__FORMAT"} {
			os.Unsetenv(config.EnvPrefix + name)
		}
	})
}

func TestLoadConfigFlagsOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
source:
  rpc: wss://rpc.example.org
  at: "100"
log:
  level: debug
  format: json
`), 0o600))

	withFlags(t, Flags{ConfigFile: path, URI: "ws://127.0.0.1:9944", Network: "kusama"})
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "ws://127.0.0.1:9944", cfg.Source.RPC)
	require.Equal(t, "100", cfg.Source.At)
	require.Equal(t, "kusama", cfg.Source.Profile().SpecName)
	require.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadConfigLogFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
source:
  rpc: wss://rpc.example.org
log:
  level: debug
`), 0o600))

	withFlags(t, Flags{ConfigFile: path, LogLevel: log.LevelWarn, LogLevelChanged: true, LogFormat: log.FmtJSON})
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "warn", cfg.Log.Level)
	require.Empty(t, cfg.Log.Format)
}

func TestLoadConfigRequiresNode(t *testing.T) {
	withFlags(t, Flags{})
	_, err := LoadConfig()
	require.ErrorContains(t, err, "no node configured")
}

func TestWriteJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	require.NoError(t, WriteJSON(path, map[string]int{"winners": 3}))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.JSONEq(t, `{"winners": 3}`, string(raw))

	require.Error(t, WriteJSON(filepath.Join(t.TempDir(), "missing", "out.json"), 1))
}

func TestResolveChain(t *testing.T) {
	ctx := context.Background()
	node := nodetest.New(testutil.NewMemoryState(), "westend")
	client := remote.NewClient(node.Dial(t), testutil.NewTestLogger(t, "common-test"), remote.Options{})

	// Detected from the runtime.
	chain, err := ResolveChain(ctx, &config.SourceConfig{}, client, node.Head)
	require.NoError(t, err)
	require.Equal(t, "westend", chain.SpecName)
	require.Equal(t, "westend", chain.Profile.SpecName)
	require.EqualValues(t, 14, chain.MetadataVersion)
	require.False(t, chain.Profile.LegacyStorage)

	// A configured network only picks the profile; the node's spec name is kept.
	chain, err = ResolveChain(ctx, &config.SourceConfig{Network: "kusama"}, client, node.Head)
	require.NoError(t, err)
	require.Equal(t, "westend", chain.SpecName)
	require.Equal(t, "kusama", chain.Profile.SpecName)

	// Legacy metadata switches the storage layout without touching the defaults.
	node.MetadataVersion = 8
	chain, err = ResolveChain(ctx, &config.SourceConfig{Network: "kusama"}, client, node.Head)
	require.NoError(t, err)
	require.True(t, chain.Profile.LegacyStorage)
	require.False(t, config.DefaultProfiles["kusama"].LegacyStorage)
}
