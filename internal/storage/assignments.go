package storage

import (
	"context"
	"fmt"

	"github.com/campwire/bunkmate/internal/common"
	"github.com/campwire/bunkmate/internal/model"
)

const assignmentColumns = `id, person_external_id, bunk_external_id, bunk_plan_id, session_id, scenario_id, source, year, assigned_at`

// ReplaceAssignments swaps the full assignment set for one scenario scope.
// Scenario "" is production.
func (q *queries) ReplaceAssignments(ctx context.Context, scenarioID, sessionID string, year int, assignments []model.Assignment) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(sessionID, "sessionID"); err != nil {
		return err
	}

	_, err := q.db.ExecContext(ctx, `
		DELETE FROM assignments WHERE scenario_id = ? AND session_id = ? AND year = ?`,
		scenarioID, sessionID, year)
	if err != nil {
		return fmt.Errorf("failed to clear assignments: %w", err)
	}

	for _, a := range assignments {
		_, err := q.db.ExecContext(ctx, `
			INSERT INTO assignments (person_external_id, bunk_external_id, bunk_plan_id, session_id, scenario_id, source, year, assigned_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			a.PersonExternalID, a.BunkExternalID, a.BunkPlanID, sessionID, scenarioID, a.Source, year, a.AssignedAt)
		if err != nil {
			return fmt.Errorf("failed to insert assignment for %s: %w", a.PersonExternalID, err)
		}
	}
	return nil
}

// ReplaceAssignments on the root storage swaps the set atomically.
func (s *SQLiteStorage) ReplaceAssignments(ctx context.Context, scenarioID, sessionID string, year int, assignments []model.Assignment) error {
	return s.withTx(ctx, func(q *queries) error {
		return q.ReplaceAssignments(ctx, scenarioID, sessionID, year, assignments)
	})
}

// GetAssignments returns the assignment set for one scenario scope.
func (q *queries) GetAssignments(ctx context.Context, scenarioID, sessionID string, year int) ([]model.Assignment, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(sessionID, "sessionID"); err != nil {
		return nil, err
	}
	return q.queryAssignments(ctx, `
		SELECT `+assignmentColumns+` FROM assignments
		WHERE scenario_id = ? AND session_id = ? AND year = ?
		ORDER BY bunk_external_id, person_external_id`, scenarioID, sessionID, year)
}

// GetProductionAssignmentsByYear returns every production assignment across
// all sessions of a year.
func (q *queries) GetProductionAssignmentsByYear(ctx context.Context, year int) ([]model.Assignment, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return q.queryAssignments(ctx, `
		SELECT `+assignmentColumns+` FROM assignments
		WHERE scenario_id = '' AND year = ?
		ORDER BY session_id, bunk_external_id, person_external_id`, year)
}

// PromoteScenario copies a draft's assignments over production for the
// session. The draft itself is left in place for reference.
func (q *queries) PromoteScenario(ctx context.Context, scenarioID, sessionID string, year int) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(scenarioID, "scenarioID"); err != nil {
		return err
	}
	if err := validateString(sessionID, "sessionID"); err != nil {
		return err
	}

	var count int
	err := q.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM assignments WHERE scenario_id = ? AND session_id = ? AND year = ?`,
		scenarioID, sessionID, year).Scan(&count)
	if err != nil {
		return fmt.Errorf("failed to count draft assignments: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("scenario %s has no assignments: %w", scenarioID, common.ErrNotFound)
	}

	_, err = q.db.ExecContext(ctx, `
		DELETE FROM assignments WHERE scenario_id = '' AND session_id = ? AND year = ?`,
		sessionID, year)
	if err != nil {
		return fmt.Errorf("failed to clear production assignments: %w", err)
	}

	_, err = q.db.ExecContext(ctx, `
		INSERT INTO assignments (person_external_id, bunk_external_id, bunk_plan_id, session_id, scenario_id, source, year, assigned_at)
		SELECT person_external_id, bunk_external_id, bunk_plan_id, session_id, '', source, year, assigned_at
		FROM assignments WHERE scenario_id = ? AND session_id = ? AND year = ?`,
		scenarioID, sessionID, year)
	if err != nil {
		return fmt.Errorf("failed to promote scenario: %w", err)
	}
	return nil
}

// PromoteScenario on the root storage promotes atomically.
func (s *SQLiteStorage) PromoteScenario(ctx context.Context, scenarioID, sessionID string, year int) error {
	return s.withTx(ctx, func(q *queries) error {
		return q.PromoteScenario(ctx, scenarioID, sessionID, year)
	})
}

func (q *queries) queryAssignments(ctx context.Context, query string, args ...any) ([]model.Assignment, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query assignments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Assignment
	for rows.Next() {
		var a model.Assignment
		var id int64
		err := rows.Scan(&id, &a.PersonExternalID, &a.BunkExternalID, &a.BunkPlanID,
			&a.SessionID, &a.ScenarioID, &a.Source, &a.Year, &a.AssignedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
