// Package election implements the election sub-commands.
package election

import (
	"github.com/spf13/cobra"

	"github.com/substrate-debug-kit/offline-election/config"
)

const moduleName = "election"

// runFlags receives the election flags; only flags set on the command line
// override the configuration.
var runFlags config.ElectionRunConfig

func bindRunFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.IntVar(&runFlags.Count, "count", 0, "number of seats, defaults to the on-chain value")
	f.IntVar(&runFlags.MinCount, "min-count", 0, "minimum number of winners")
	f.IntVar(&runFlags.Iterations, "iterations", 0, "balancing iterations, 0 disables balancing")
	f.Uint64Var(&runFlags.Tolerance, "tolerance", 0, "balancing tolerance in vote weight units")
	f.BoolVar(&runFlags.Reduce, "reduce", false, "remove redundant edges from the solution")
	f.StringVar(&runFlags.ManualOverride, "manual-override", "", "path to a YAML or JSON override document")
	f.StringVar(&runFlags.Output, "output", "", "write the result as JSON to this path")
}

// resolveRun overlays changed flags on the configured run parameters.
func resolveRun(cmd *cobra.Command, configured *config.ElectionRunConfig) (*config.ElectionRunConfig, error) {
	run := &config.ElectionRunConfig{}
	if configured != nil {
		*run = *configured
	}
	f := cmd.Flags()
	if f.Changed("count") {
		run.Count = runFlags.Count
	}
	if f.Changed("min-count") {
		run.MinCount = runFlags.MinCount
	}
	if f.Changed("iterations") {
		run.Iterations = runFlags.Iterations
	}
	if f.Changed("tolerance") {
		run.Tolerance = runFlags.Tolerance
	}
	if f.Changed("reduce") {
		run.Reduce = runFlags.Reduce
	}
	if f.Changed("manual-override") {
		run.ManualOverride = runFlags.ManualOverride
	}
	if f.Changed("output") {
		run.Output = runFlags.Output
	}
	return run, run.Validate()
}

func electionConfig(cfg *config.Config) *config.ElectionConfig {
	if cfg.Election == nil {
		return &config.ElectionConfig{}
	}
	return cfg.Election
}

// Register registers the election sub-commands.
func Register(parentCmd *cobra.Command) {
	bindRunFlags(stakingCmd)
	stakingCmd.Flags().BoolVar(&submissionFlag, "submission", false, "encode the solution for on-chain submission")
	stakingCmd.Flags().BoolVar(&compareFlag, "compare", false, "also run the floating point solver and compare scores")
	bindRunFlags(councilCmd)
	danglingCmd.Flags().StringVar(&runFlags.Output, "output", "", "write the report as JSON to this path")
	currentCmd.Flags().StringVar(&runFlags.Output, "output", "", "write the exposures as JSON to this path")

	parentCmd.AddCommand(stakingCmd, councilCmd, danglingCmd, currentCmd)
}
