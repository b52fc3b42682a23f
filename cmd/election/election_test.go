package election

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/substrate-debug-kit/offline-election/config"
)

func parsed(t *testing.T, args ...string) *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	bindRunFlags(cmd)
	require.NoError(t, cmd.Flags().Parse(args))
	return cmd
}

func TestResolveRun(t *testing.T) {
	configured := &config.ElectionRunConfig{Count: 3, Iterations: 5, Output: "result.json"}

	run, err := resolveRun(parsed(t, "--count", "7", "--reduce"), configured)
	require.NoError(t, err)
	require.Equal(t, 7, run.Count)
	require.True(t, run.Reduce)
	require.Equal(t, 5, run.Iterations)
	require.Equal(t, "result.json", run.Output)
	// The configuration itself is left alone.
	require.Equal(t, 3, configured.Count)

	run, err = resolveRun(parsed(t), nil)
	require.NoError(t, err)
	require.Equal(t, config.ElectionRunConfig{}, *run)

	_, err = resolveRun(parsed(t, "--min-count", "9"), configured)
	require.ErrorContains(t, err, "min_count 9 exceeds count 3")
}
