package election

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/substrate-debug-kit/offline-election/cmd/common"
	"github.com/substrate-debug-kit/offline-election/config"
	"github.com/substrate-debug-kit/offline-election/election"
	"github.com/substrate-debug-kit/offline-election/election/data"
	"github.com/substrate-debug-kit/offline-election/election/npos"
	"github.com/substrate-debug-kit/offline-election/metrics"
)

var councilCmd = &cobra.Command{
	Use:   "council",
	Short: "Run the council election",
	RunE:  runCouncil,
}

// Council member roles.
const (
	roleMember   = "member"
	rolePrime    = "prime"
	roleRunnerUp = "runner-up"
)

func councilModules(profile *config.ChainProfile) []string {
	return []string{profile.CouncilModule, "Balances"}
}

func runCouncil(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, err := common.Prepare(cmd)
	if err != nil {
		return err
	}
	run, err := resolveRun(cmd, electionConfig(cfg).Council)
	if err != nil {
		return fmt.Errorf("council: %w", err)
	}
	logger := common.RootLogger().WithModule(moduleName)

	snap, profile, err := common.LoadSnapshot(ctx, cfg, councilModules)
	if err != nil {
		return err
	}
	ectx, err := data.NewElectionContext(ctx, snap, profile)
	if err != nil {
		return err
	}
	council := data.NewCouncil(snap, profile, logger)
	input, err := council.Input(ctx)
	if err != nil {
		return err
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

	members, runnersUp := council.Seats()
	count := run.Count
	if count == 0 {
		count = members + runnersUp
	}
	if members > count {
		members = count
	}

	orchestrator := election.New(ectx, logger, metrics.NewDefaultElectionMetrics())
	out, err := orchestrator.Run(ctx, input, election.Params{
		Seats:      count,
		MinSeats:   run.MinCount,
		Iterations: run.Iterations,
		Tolerance:  run.Tolerance,
		Reduce:     run.Reduce,
	}, npos.SeqPhragmen{})
	if err != nil {
		return err
	}

	result := newElectionOutput(snap, ectx, input, count, out)
	winners := out.WinnerIDs()
	if len(winners) < members {
		members = len(winners)
	}
	prime, hasPrime := election.CouncilPrime(winners[:members], ectx.SolverVoters(input.Voters))
	for i := range result.Winners {
		switch {
		case hasPrime && winners[i] == prime:
			result.Winners[i].Role = rolePrime
		case i < members:
			result.Winners[i].Role = roleMember
		default:
			result.Winners[i].Role = roleRunnerUp
		}
	}
	if hasPrime {
		result.Prime = profile.Address(prime)
	}
	renderWinners(os.Stdout, profile, result)

	if run.Output != "" {
		if err := common.WriteJSON(run.Output, result); err != nil {
			return fmt.Errorf("writing %s: %w", run.Output, err)
		}
		logger.Info("wrote result", "path", run.Output)
	}
	return nil
}
