// Package election runs an election over an assembled input: solve, convert
// to stakes, build supports, optionally balance and reduce, then score.
package election

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/holiman/uint256"

	"github.com/substrate-debug-kit/offline-election/common"
	"github.com/substrate-debug-kit/offline-election/election/data"
	"github.com/substrate-debug-kit/offline-election/election/npos"
	"github.com/substrate-debug-kit/offline-election/log"
	"github.com/substrate-debug-kit/offline-election/metrics"
)

// Stage is a step of an election run. Stages run in declaration order.
type Stage string

const (
	StageDataReady     Stage = "data_ready"
	StageElected       Stage = "elected"
	StageRatioToStaked Stage = "ratio_to_staked"
	StageSupportBuilt  Stage = "support_built"
	StageBalanced      Stage = "balanced"
	StageReduced       Stage = "reduced"
	StageScored        Stage = "scored"
)

var (
	// ErrElectionInfeasible means the minimum number of seats cannot be filled.
	ErrElectionInfeasible = errors.New("election infeasible")
	// ErrConsistencyViolation means a post-condition of a stage failed. It
	// always indicates a bug.
	ErrConsistencyViolation = errors.New("consistency violation")
)

// StageError is a failure of one stage. No later stage ran.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("election stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Params configures a run.
type Params struct {
	Seats    int
	MinSeats int
	// Iterations of balancing; zero skips the stage.
	Iterations int
	Tolerance  uint64
	Reduce     bool
	// Accuracy of the solver's proportions. Defaults to npos.Perbill.
	Accuracy npos.Accuracy
}

// Outcome is the result of a run.
type Outcome struct {
	Solver      string
	Winners     []npos.Winner
	Assignments []npos.Assignment
	Staked      []npos.StakedAssignment
	Supports    npos.SupportMap
	// Weights are the vote weights the solver ran on.
	Weights map[common.AccountID]npos.VoteWeight

	// InitialScore is the score before balancing.
	InitialScore      npos.ElectionScore
	Score             npos.ElectionScore
	BalanceIterations int
	ReducedEdges      int
}

// WinnerIDs lists the winners in election order.
func (o *Outcome) WinnerIDs() []common.AccountID {
	out := make([]common.AccountID, len(o.Winners))
	for i, w := range o.Winners {
		out[i] = w.Who
	}
	return out
}

// Orchestrator runs elections within one ElectionContext.
type Orchestrator struct {
	ectx    *data.ElectionContext
	logger  *log.Logger
	metrics *metrics.ElectionMetrics
}

// New creates an orchestrator. m may be nil.
func New(ectx *data.ElectionContext, logger *log.Logger, m *metrics.ElectionMetrics) *Orchestrator {
	return &Orchestrator{
		ectx:    ectx,
		logger:  logger.WithModule("election").With("run", ectx.RunID),
		metrics: m,
	}
}

type run struct {
	o      *Orchestrator
	solver npos.Solver
	logger *log.Logger
}

func (r *run) stage(ctx context.Context, stage Stage, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return &StageError{Stage: stage, Err: err}
	}
	start := time.Now()
	var err error
	if r.o.metrics != nil {
		timer := r.o.metrics.StageTimer(r.solver.Name(), string(stage))
		err = fn()
		timer.ObserveDuration()
	} else {
		err = fn()
	}
	r.logger.Since("stage done", start, "stage", stage, "ok", err == nil)
	if err != nil {
		if r.o.metrics != nil {
			r.o.metrics.Runs(r.solver.Name(), string(stage), false).Inc()
		}
		return &StageError{Stage: stage, Err: err}
	}
	return nil
}

// Run takes input through every stage with the given solver.
func (o *Orchestrator) Run(ctx context.Context, input *data.Input, params Params, solver npos.Solver) (*Outcome, error) {
	if params.Accuracy == 0 {
		params.Accuracy = npos.Perbill
	}
	r := &run{o: o, solver: solver, logger: o.logger.With("solver", solver.Name())}
	out := &Outcome{Solver: solver.Name()}

	var voters []npos.Voter
	err := r.stage(ctx, StageDataReady, func() error {
		if params.Seats <= 0 {
			return fmt.Errorf("seats must be positive, got %d", params.Seats)
		}
		voters = o.ectx.SolverVoters(input.Voters)
		out.Weights = make(map[common.AccountID]npos.VoteWeight, len(voters))
		for _, v := range voters {
			out.Weights[v.Who] = v.Stake
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var result *npos.ElectionResult
	err = r.stage(ctx, StageElected, func() error {
		var err error
		result, err = solver.Solve(params.Seats, params.MinSeats, input.Candidates, voters, params.Accuracy)
		if errors.Is(err, npos.ErrTooFewWinners) {
			return fmt.Errorf("%w: %w", ErrElectionInfeasible, err)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	out.Winners = result.Winners
	out.Assignments = result.Assignments
	if len(out.Winners) < params.Seats {
		r.logger.Warn("fewer winners than seats", "winners", len(out.Winners), "seats", params.Seats)
	}

	err = r.stage(ctx, StageRatioToStaked, func() error {
		out.Staked = npos.RatioToStaked(result.Assignments, result.Accuracy, func(a npos.Assignment) npos.VoteWeight {
			return out.Weights[a.Who]
		})
		for _, s := range out.Staked {
			if total := s.Total(); total != out.Weights[s.Who] {
				return fmt.Errorf("%w: voter %s staked %d of weight %d", ErrConsistencyViolation, s.Who, total, out.Weights[s.Who])
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	winners := out.WinnerIDs()
	err = r.stage(ctx, StageSupportBuilt, func() error {
		supports, stray := npos.BuildSupportMap(winners, out.Staked)
		if stray > 0 {
			return fmt.Errorf("%w: %d edges to non-winners", ErrConsistencyViolation, stray)
		}
		out.Supports = supports
		out.InitialScore = npos.Evaluate(supports)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if params.Iterations > 0 {
		err = r.stage(ctx, StageBalanced, func() error {
			before := out.InitialScore
			out.BalanceIterations = npos.Balance(out.Staked, out.Supports, params.Tolerance, params.Iterations)
			after := npos.Evaluate(out.Supports)
			if after[0].Lt(&before[0]) {
				return fmt.Errorf("%w: balancing lowered the minimal support from %s to %s",
					ErrConsistencyViolation, before[0].Dec(), after[0].Dec())
			}
			gained := new(uint256.Int).Sub(&after[0], &before[0])
			r.logger.Info("balanced solution",
				"iterations", out.BalanceIterations,
				"max_iterations", params.Iterations,
				"min_support_gain", gained.Dec(),
			)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	if params.Reduce {
		err = r.stage(ctx, StageReduced, func() error {
			out.ReducedEdges = npos.Reduce(out.Staked)
			supports, stray := npos.BuildSupportMap(winners, out.Staked)
			if stray > 0 {
				return fmt.Errorf("%w: %d edges to non-winners after reduction", ErrConsistencyViolation, stray)
			}
			for who, s := range out.Supports {
				if !supports[who].Total.Eq(&s.Total) {
					return fmt.Errorf("%w: support of %s changed from %s to %s by reduction",
						ErrConsistencyViolation, who, s.Total.Dec(), supports[who].Total.Dec())
				}
			}
			out.Supports = supports
			r.logger.Info("reduced solution", "removed_edges", out.ReducedEdges)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	err = r.stage(ctx, StageScored, func() error {
		out.Score = npos.Evaluate(out.Supports)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if o.metrics != nil {
		o.metrics.Runs(solver.Name(), string(StageScored), true).Inc()
	}
	r.logger.Info("election done", "winners", len(out.Winners), "score", out.Score)
	return out, nil
}

// Compare runs every solver on the same input and returns their outcomes,
// best score first. Solvers that fail are reported in the returned error
// and left out.
func (o *Orchestrator) Compare(ctx context.Context, input *data.Input, params Params, solvers ...npos.Solver) ([]*Outcome, error) {
	var (
		outcomes []*Outcome
		errs     []error
	)
	for _, s := range solvers {
		out, err := o.Run(ctx, input, params, s)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		outcomes = append(outcomes, out)
	}
	sort.SliceStable(outcomes, func(i, j int) bool {
		return outcomes[i].Score.IsBetter(outcomes[j].Score)
	})
	return outcomes, errors.Join(errs...)
}
