package election

import (
	"context"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/substrate-debug-kit/offline-election/cmd/common"
	"github.com/substrate-debug-kit/offline-election/config"
	"github.com/substrate-debug-kit/offline-election/election"
	"github.com/substrate-debug-kit/offline-election/election/data"
	"github.com/substrate-debug-kit/offline-election/election/npos"
	"github.com/substrate-debug-kit/offline-election/election/submission"
	"github.com/substrate-debug-kit/offline-election/metrics"
	"github.com/substrate-debug-kit/offline-election/storage"
)

var (
	submissionFlag bool
	compareFlag    bool

	stakingCmd = &cobra.Command{
		Use:   "staking",
		Short: "Run the validator election",
		RunE:  runStaking,
	}
)

func stakingModules(*config.ChainProfile) []string {
	return []string{"Staking", "Balances"}
}

func runStaking(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, err := common.Prepare(cmd)
	if err != nil {
		return err
	}
	run, err := resolveRun(cmd, electionConfig(cfg).Staking)
	if err != nil {
		return fmt.Errorf("staking: %w", err)
	}
	logger := common.RootLogger().WithModule(moduleName)

	snap, profile, err := common.LoadSnapshot(ctx, cfg, stakingModules)
	if err != nil {
		return err
	}
	ectx, err := data.NewElectionContext(ctx, snap, profile)
	if err != nil {
		return err
	}
	if submissionFlag && profile.LegacyStorage {
		return fmt.Errorf("staking: --submission needs a runtime with signed solutions, %s uses legacy storage", profile.SpecName)
	}
	staking := data.NewStaking(snap, logger).WithLegacyStorage(profile.LegacyStorage)
	input, err := staking.Input(ctx)
	if err != nil {
		return err
	}

	onchain, err := staking.ValidatorCount(ctx)
	if err != nil {
		return err
	}
	count := run.Count
	switch {
	case count == 0:
		count = onchain
	case count != onchain:
		logger.Warn("seat count differs from the on-chain validator count", "count", count, "on_chain", onchain)
	}

	if run.ManualOverride != "" {
		override, err := data.LoadOverride(run.ManualOverride)
		if err != nil {
			return err
		}
		if err := override.Apply(input); err != nil {
			return fmt.Errorf("applying %s: %w", run.ManualOverride, err)
		}
	}

	solvers := []npos.Solver{npos.SeqPhragmen{}}
	if compareFlag {
		solvers = append(solvers, npos.FloatPhragmen{})
	}
	orchestrator := election.New(ectx, logger, metrics.NewDefaultElectionMetrics())
	outcomes, err := orchestrator.Compare(ctx, input, election.Params{
		Seats:      count,
		MinSeats:   run.MinCount,
		Iterations: run.Iterations,
		Tolerance:  run.Tolerance,
		Reduce:     run.Reduce,
	}, solvers...)
	if len(outcomes) == 0 {
		return err
	}
	if err != nil {
		logger.Warn("some solvers failed", "err", err)
	}
	best := outcomes[0]

	result := newElectionOutput(snap, ectx, input, count, best)
	renderWinners(os.Stdout, profile, result)
	if compareFlag {
		renderComparison(os.Stdout, outcomes)
	}

	if submissionFlag {
		if result.Submission, err = encodeSubmission(ctx, snap, staking, best); err != nil {
			return err
		}
		fmt.Printf("solution: %d bytes, %d voters, %d edges\n",
			result.Submission.Size, result.Submission.Voters, result.Submission.Edges)
	}

	if run.Output != "" {
		if err := common.WriteJSON(run.Output, result); err != nil {
			return fmt.Errorf("writing %s: %w", run.Output, err)
		}
		logger.Info("wrote result", "path", run.Output)
	}
	return nil
}

func encodeSubmission(ctx context.Context, r storage.Reader, staking *data.Staking, out *election.Outcome) (*submissionOutput, error) {
	tables, err := submission.LoadIndexTables(ctx, r)
	if err != nil {
		return nil, err
	}
	era, err := staking.ActiveEra(ctx)
	if err != nil {
		return nil, err
	}
	sol, err := submission.Encode(tables, out.WinnerIDs(), npos.StakedToRatio(out.Staked, submission.Accuracy), out.Score)
	if err != nil {
		return nil, fmt.Errorf("encoding solution: %w", err)
	}
	sol.Era = era
	raw := sol.Bytes()
	return &submissionOutput{
		Solution:     hexutil.Encode(raw),
		Size:         len(raw),
		Voters:       sol.VoterCount(),
		Edges:        sol.EdgeCount(),
		Era:          era,
		FromSnapshot: tables.FromSnapshot,
	}, nil
}
