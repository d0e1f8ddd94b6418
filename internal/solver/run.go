package solver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/campwire/bunkmate/internal/common"
	"github.com/campwire/bunkmate/internal/config"
	"github.com/campwire/bunkmate/internal/model"
	"github.com/campwire/bunkmate/internal/service"
)

// Runner executes solver runs with the full lifecycle: configuration
// snapshot and validation, status transitions, persisted progress and logs,
// and assignment writes on success.
type Runner struct {
	storage service.Storage
	logger  *slog.Logger
}

// NewRunner creates a run executor.
func NewRunner(storage service.Storage, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{storage: storage, logger: logger}
}

// Execute performs one solver run for the scenario. Concurrent solves
// against the same scenario are rejected; runs for different scenarios or
// sessions proceed independently. The returned run record is terminal.
func (r *Runner) Execute(ctx context.Context, scenarioID, sessionID string, year int) (*model.SolverRun, error) {
	if active, err := r.storage.GetActiveSolverRun(ctx, scenarioID); err != nil && !errors.Is(err, common.ErrNotFound) {
		return nil, fmt.Errorf("failed to check for active runs: %w", err)
	} else if active != nil && !active.Status.IsTerminal() {
		return nil, fmt.Errorf("run %s: %w", active.ID, common.ErrRunInProgress)
	}

	run := &model.SolverRun{
		CreatedAt:  time.Now(),
		ID:         uuid.NewString(),
		ScenarioID: scenarioID,
		SessionID:  sessionID,
		Status:     model.RunPending,
		Year:       year,
	}
	if err := r.storage.CreateSolverRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create solver run: %w", err)
	}

	// Snapshot and validate configuration before anything else. A bad value
	// silently changes objective semantics, so it fails the run here, never
	// mid-search.
	cfg, err := config.Load(ctx, r.storage)
	if err != nil {
		r.finish(ctx, run, model.RunError, "configuration rejected: "+err.Error(), nil)
		return run, err
	}

	if err := r.transition(ctx, run, model.RunRunning); err != nil {
		return run, err
	}
	now := time.Now()
	run.StartedAt = &now
	r.log(ctx, run, "info", fmt.Sprintf("run started for session %s scenario %q", sessionID, scenarioID))

	inst, err := BuildInstance(ctx, r.storage, cfg, scenarioID, sessionID, year)
	if err != nil {
		r.finish(ctx, run, model.RunError, "failed to build instance: "+err.Error(), nil)
		return run, err
	}
	r.log(ctx, run, "info", fmt.Sprintf("instance built: %d campers, %d bunks, %d locked groups",
		len(inst.Campers), len(inst.Slots), len(inst.Groups)))

	progress := func(pct int) {
		if pct <= run.Progress {
			return
		}
		run.Progress = pct
		if err := r.storage.UpdateSolverRun(ctx, run); err != nil {
			r.logger.Warn("failed to persist run progress", "run", run.ID, "error", err)
		}
	}

	sol, solveErr := New(cfg, r.logger).Solve(ctx, inst, progress)
	if solveErr != nil && sol == nil {
		r.finish(ctx, run, model.RunError, solveErr.Error(), nil)
		return run, solveErr
	}

	if !sol.Feasible {
		detail := "infeasible: " + strings.Join(violatedKinds(sol.Violations), ", ")
		r.log(ctx, run, "error", detail)
		r.finish(ctx, run, model.RunFailed, detail, &sol.Stats)
		return run, solveErr
	}

	assignments := New(cfg, r.logger).Assignments(inst, sol, time.Now())
	if err := r.storage.ReplaceAssignments(ctx, scenarioID, sessionID, year, assignments); err != nil {
		r.finish(ctx, run, model.RunError, "failed to write assignments: "+err.Error(), &sol.Stats)
		return run, err
	}

	r.log(ctx, run, "info", fmt.Sprintf("objective %.2f, %d/%d requests satisfied, %d campers with none",
		sol.Stats.Objective, sol.Stats.RequestsSatisfied, sol.Stats.RequestsConsidered, sol.Stats.ZeroSatisfaction))
	run.Progress = 100
	r.finish(ctx, run, model.RunSuccess, "", &sol.Stats)
	return run, nil
}

func (r *Runner) transition(ctx context.Context, run *model.SolverRun, next model.RunStatus) error {
	if !run.Status.CanTransition(next) {
		return fmt.Errorf("illegal run transition %s -> %s", run.Status, next)
	}
	run.Status = next
	if err := r.storage.UpdateSolverRun(ctx, run); err != nil {
		return fmt.Errorf("failed to update run %s: %w", run.ID, err)
	}
	return nil
}

func (r *Runner) finish(ctx context.Context, run *model.SolverRun, status model.RunStatus, detail string, stats *model.RunStats) {
	now := time.Now()
	run.FinishedAt = &now
	run.FailureDetail = detail
	run.Stats = stats
	if run.Status.CanTransition(status) {
		run.Status = status
	} else if run.Status.CanTransition(model.RunError) {
		run.Status = model.RunError
	}
	if err := r.storage.UpdateSolverRun(ctx, run); err != nil {
		r.logger.Error("failed to finalize run", "run", run.ID, "error", err)
	}
	if detail != "" {
		r.log(ctx, run, "error", detail)
	}
}

// log writes one line to both the process log and the run's persisted log.
func (r *Runner) log(ctx context.Context, run *model.SolverRun, level, message string) {
	if level == "error" {
		r.logger.Error(message, "run", run.ID)
	} else {
		r.logger.Info(message, "run", run.ID)
	}
	line := &model.RunLogLine{At: time.Now(), RunID: run.ID, Level: level, Message: message}
	if err := r.storage.AppendRunLog(ctx, line); err != nil {
		r.logger.Warn("failed to persist run log line", "run", run.ID, "error", err)
	}
}
