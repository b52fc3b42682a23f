package config

import (
	"testing"

	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/stretchr/testify/require"

	"github.com/substrate-debug-kit/offline-election/common"
)

func TestConfigYAML(t *testing.T) {
	expectedYAML := `
source:
  rpc: wss://kusama-rpc.example.org
  at: "0x1111111111111111111111111111111111111111111111111111111111111111"
  modules: [Staking, Balances]
  paged: true
  page_size: 500
  parallelism: 4
  requests_per_second: 20
cache:
  cache_dir: /tmp/offline-election
  policy: use_if_present
  persist: true
election:
  staking:
    count: 24
    min_count: 10
    iterations: 10
    reduce: true
    output: staking.json
  council:
    iterations: 2
    manual_override: override.yml
log:
  format: logfmt
  level: debug
metrics:
  pull_endpoint: localhost:8009
`

	cfg, err := initConfig(rawbytes.Provider([]byte(expectedYAML)))
	require.NoError(t, err)

	require.Equal(t, &SourceConfig{
		RPC:               "wss://kusama-rpc.example.org",
		At:                "0x1111111111111111111111111111111111111111111111111111111111111111",
		Modules:           []string{"Staking", "Balances"},
		Paged:             true,
		PageSize:          500,
		Parallelism:       4,
		RequestsPerSecond: 20,
	}, cfg.Source)
	require.Equal(t, &CacheConfig{CacheDir: "/tmp/offline-election", Policy: CachePolicyUseIfPresent, Persist: true}, cfg.Cache)
	require.Equal(t, &ElectionRunConfig{Count: 24, MinCount: 10, Iterations: 10, Reduce: true, Output: "staking.json"}, cfg.Election.Staking)
	require.Equal(t, &ElectionRunConfig{Iterations: 2, ManualOverride: "override.yml"}, cfg.Election.Council)
	require.Equal(t, "localhost:8009", cfg.Metrics.PullEndpoint)
	require.Nil(t, cfg.Source.Profile(), "profile is detected at runtime by default")
}

func TestConfigEnvOverride(t *testing.T) {
	t.Setenv("OFFLINE_ELECTION_SOURCE__RPC", "ws://127.0.0.1:9944")
	t.Setenv("OFFLINE_ELECTION_SOURCE__NETWORK", "polkadot")

	cfg, err := initConfig(rawbytes.Provider([]byte("source:\n  rpc: ws://ignored:1\n")))
	require.NoError(t, err)
	require.Equal(t, "ws://127.0.0.1:9944", cfg.Source.RPC)
	require.Equal(t, DefaultProfiles["polkadot"], cfg.Source.Profile())
}

func TestConfigValidation(t *testing.T) {
	for name, yml := range map[string]string{
		"bad scheme":      "source:\n  rpc: ftp://node\n",
		"unknown network": "source:\n  rpc: ws://node\n  network: nope\n",
		"both profiles":   "source:\n  rpc: ws://node\n  network: kusama\n  custom_profile:\n    spec_name: x\n",
		"cache dir":       "cache:\n  policy: force_refresh\n",
		"cache policy":    "cache:\n  cache_dir: /tmp\n  policy: sometimes\n",
		"min count":       "election:\n  staking:\n    count: 2\n    min_count: 3\n",
		"log level":       "log:\n  format: json\n  level: loud\n",
		"metrics":         "metrics:\n  pull_endpoint: \"\"\n",
	} {
		_, err := initConfig(rawbytes.Provider([]byte(yml)))
		require.Error(t, err, name)
	}
}

func TestProfiles(t *testing.T) {
	p, known := ProfileForSpec("kusama")
	require.True(t, known)
	require.Equal(t, "KSM", p.Token)

	p, known = ProfileForSpec("my-chain")
	require.False(t, known)
	require.Equal(t, "my-chain", p.SpecName)
	require.EqualValues(t, 42, p.SS58Prefix)
	require.Equal(t, "substrate", DefaultProfiles["substrate"].SpecName, "fallback must not modify the default")

	for name, p := range DefaultProfiles {
		require.NoError(t, p.Validate(), name)
	}
}

func TestFormatBalance(t *testing.T) {
	dot := DefaultProfiles["polkadot"]
	var b common.Balance
	require.NoError(t, b.UnmarshalText([]byte("12345678900000000")))
	require.Equal(t, "1,234,567.89 DOT", dot.FormatBalance(b))
	require.Equal(t, "0 DOT", dot.FormatBalance(common.NewBalance(0)))
	require.Equal(t, "0.0000000001 DOT", dot.FormatBalance(common.NewBalance(1)))

	alice := common.MustParseAccountID("0xd43593c715fdd31c61141abd04a99fd6822c8558854ccde39a5684e7a56da27d")
	require.Equal(t, "15oF4uVJwmo4TdGW7VfQxNLavjCXviqxT9S1MgbjMNHr6Sp5", dot.Address(alice))
}
