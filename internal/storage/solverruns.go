package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/campwire/bunkmate/internal/common"
	"github.com/campwire/bunkmate/internal/model"
)

const solverRunColumns = `id, scenario_id, session_id, year, status, failure_detail, progress, stats, created_at, started_at, finished_at`

// CreateSolverRun inserts a new run record.
func (q *queries) CreateSolverRun(ctx context.Context, run *model.SolverRun) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRun(run); err != nil {
		return err
	}

	stats, err := encodeStats(run.Stats)
	if err != nil {
		return err
	}
	_, err = q.db.ExecContext(ctx, `
		INSERT INTO solver_runs (id, scenario_id, session_id, year, status, failure_detail, progress, stats, created_at, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.ScenarioID, run.SessionID, run.Year, run.Status, run.FailureDetail,
		run.Progress, stats, run.CreatedAt, run.StartedAt, run.FinishedAt)
	if err != nil {
		return fmt.Errorf("failed to create solver run: %w", err)
	}
	return nil
}

// UpdateSolverRun persists a run's current state.
func (q *queries) UpdateSolverRun(ctx context.Context, run *model.SolverRun) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRun(run); err != nil {
		return err
	}

	stats, err := encodeStats(run.Stats)
	if err != nil {
		return err
	}
	result, err := q.db.ExecContext(ctx, `
		UPDATE solver_runs SET status = ?, failure_detail = ?, progress = ?, stats = ?, started_at = ?, finished_at = ?
		WHERE id = ?`,
		run.Status, run.FailureDetail, run.Progress, stats, run.StartedAt, run.FinishedAt, run.ID)
	if err != nil {
		return fmt.Errorf("failed to update solver run: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("solver run %s: %w", run.ID, common.ErrNotFound)
	}
	return nil
}

// GetSolverRun fetches one run by id.
func (q *queries) GetSolverRun(ctx context.Context, id string) (*model.SolverRun, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := q.db.QueryRowContext(ctx,
		`SELECT `+solverRunColumns+` FROM solver_runs WHERE id = ?`, id)
	run, err := scanSolverRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("solver run %s: %w", id, common.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get solver run: %w", err)
	}
	return run, nil
}

// GetActiveSolverRun returns the scenario's pending or running run, or
// ErrNotFound if the scenario is idle.
func (q *queries) GetActiveSolverRun(ctx context.Context, scenarioID string) (*model.SolverRun, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	row := q.db.QueryRowContext(ctx, `
		SELECT `+solverRunColumns+` FROM solver_runs
		WHERE scenario_id = ? AND status IN (?, ?)
		ORDER BY created_at DESC LIMIT 1`,
		scenarioID, model.RunPending, model.RunRunning)
	run, err := scanSolverRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("no active run for scenario %q: %w", scenarioID, common.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get active solver run: %w", err)
	}
	return run, nil
}

// AppendRunLog persists one structured log line for a run.
func (q *queries) AppendRunLog(ctx context.Context, line *model.RunLogLine) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if line == nil {
		return fmt.Errorf("%w: line", ErrNilParameter)
	}
	if err := validateString(line.RunID, "runID"); err != nil {
		return err
	}

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO run_logs (run_id, level, message, at) VALUES (?, ?, ?, ?)`,
		line.RunID, line.Level, line.Message, line.At)
	if err != nil {
		return fmt.Errorf("failed to append run log: %w", err)
	}
	return nil
}

// GetRunLogs returns a run's log lines in order.
func (q *queries) GetRunLogs(ctx context.Context, runID string) ([]model.RunLogLine, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(runID, "runID"); err != nil {
		return nil, err
	}

	rows, err := q.db.QueryContext(ctx, `
		SELECT id, run_id, level, message, at FROM run_logs WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query run logs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.RunLogLine
	for rows.Next() {
		var l model.RunLogLine
		if err := rows.Scan(&l.ID, &l.RunID, &l.Level, &l.Message, &l.At); err != nil {
			return nil, fmt.Errorf("failed to scan run log: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func encodeStats(stats *model.RunStats) (any, error) {
	if stats == nil {
		return nil, nil
	}
	data, err := json.Marshal(stats)
	if err != nil {
		return nil, fmt.Errorf("failed to encode run stats: %w", err)
	}
	return string(data), nil
}

func scanSolverRun(row rowScanner) (*model.SolverRun, error) {
	var run model.SolverRun
	var detail, stats sql.NullString
	var started, finished sql.NullTime
	err := row.Scan(&run.ID, &run.ScenarioID, &run.SessionID, &run.Year, &run.Status,
		&detail, &run.Progress, &stats, &run.CreatedAt, &started, &finished)
	if err != nil {
		return nil, err
	}
	run.FailureDetail = detail.String
	if started.Valid {
		run.StartedAt = &started.Time
	}
	if finished.Valid {
		run.FinishedAt = &finished.Time
	}
	if stats.Valid && stats.String != "" {
		var s model.RunStats
		if err := json.Unmarshal([]byte(stats.String), &s); err != nil {
			return nil, fmt.Errorf("failed to decode run stats: %w", err)
		}
		run.Stats = &s
	}
	return &run, nil
}
