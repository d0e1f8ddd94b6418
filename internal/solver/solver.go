package solver

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"time"

	"github.com/campwire/bunkmate/internal/common"
	"github.com/campwire/bunkmate/internal/config"
	"github.com/campwire/bunkmate/internal/model"
)

// Solution is the best assignment a solve produced, feasible or not.
type Solution struct {
	Assignment []int // camper index -> slot index
	Stats      model.RunStats
	Violations map[ConstraintKind]int
	Feasible   bool
}

// Solver runs the search for one instance under one configuration snapshot.
type Solver struct {
	cfg    *config.Snapshot
	logger *slog.Logger
}

// New creates a solver.
func New(cfg *config.Snapshot, logger *slog.Logger) *Solver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Solver{cfg: cfg, logger: logger}
}

// Solve searches for the best feasible assignment within the configured
// wall-clock budget. An infeasible result is returned with its violation
// breakdown and ErrInfeasible; it is an outcome, not a process failure.
func (s *Solver) Solve(ctx context.Context, inst *Instance, progress func(pct int)) (*Solution, error) {
	if len(inst.Campers) == 0 {
		return nil, fmt.Errorf("session %s has no enrolled campers: %w", inst.SessionID, common.ErrNoRequests)
	}
	if len(inst.Slots) == 0 {
		return nil, fmt.Errorf("session %s has no usable bunks: %w", inst.SessionID, common.ErrInfeasible)
	}

	e := newEvaluator(inst, s.cfg)
	seed := int64(s.cfg.Int("solver", "limits", "seed"))
	rng := rand.New(rand.NewSource(seed))
	deadline := time.Now().Add(time.Duration(s.cfg.Int("solver", "limits", "time_limit_seconds")) * time.Second)

	s.logger.Info("solve started",
		"session", inst.SessionID,
		"scenario", inst.ScenarioID,
		"campers", len(inst.Campers),
		"slots", len(inst.Slots),
		"locked_groups", len(inst.Groups),
		"seed", seed)

	assign := greedySeed(inst, e)
	best, bestEval, iterations := anneal(ctx, inst, e, assign, rng, deadline, progress)

	sol := &Solution{
		Assignment: best,
		Feasible:   bestEval.hardCount() == 0,
		Violations: bestEval.Hard,
		Stats: model.RunStats{
			Objective:          bestEval.Objective,
			TotalCampers:       len(inst.Campers),
			RequestsConsidered: bestEval.RequestsConsidered,
			RequestsSatisfied:  bestEval.RequestsSatisfied,
			RequestsImpossible: bestEval.RequestsImpossible,
			ZeroSatisfaction:   bestEval.ZeroSatisfaction,
			Iterations:         iterations,
			ViolationsByKind:   violationsByKind(bestEval.Hard),
		},
	}

	if !sol.Feasible {
		return sol, fmt.Errorf("violated hard constraints %v: %w", violatedKinds(bestEval.Hard), common.ErrInfeasible)
	}

	s.logger.Info("solve finished",
		"objective", bestEval.Objective,
		"satisfied", bestEval.RequestsSatisfied,
		"considered", bestEval.RequestsConsidered,
		"iterations", iterations)
	return sol, nil
}

// Assignments converts a solution into storable assignment rows.
func (s *Solver) Assignments(inst *Instance, sol *Solution, at time.Time) []model.Assignment {
	out := make([]model.Assignment, 0, len(sol.Assignment))
	for ci, si := range sol.Assignment {
		if si < 0 {
			continue
		}
		slot := &inst.Slots[si]
		out = append(out, model.Assignment{
			AssignedAt:       at,
			PersonExternalID: inst.Campers[ci].ExternalID,
			BunkExternalID:   slot.BunkExternalID,
			SessionID:        inst.SessionID,
			ScenarioID:       inst.ScenarioID,
			Source:           model.AssignmentBySolver,
			BunkPlanID:       slot.BunkPlanID,
			Year:             inst.Year,
		})
	}
	return out
}

func violationsByKind(hard map[ConstraintKind]int) map[string]int {
	out := make(map[string]int, len(hard))
	for kind, n := range hard {
		if n > 0 {
			out[string(kind)] = n
		}
	}
	return out
}

func violatedKinds(hard map[ConstraintKind]int) []string {
	var kinds []string
	for kind, n := range hard {
		if n > 0 {
			kinds = append(kinds, string(kind))
		}
	}
	sort.Strings(kinds)
	return kinds
}
