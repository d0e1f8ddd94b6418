package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/campwire/bunkmate/internal/common"
	"github.com/campwire/bunkmate/internal/model"
)

// SaveLockedGroup inserts or updates a locked group. Member ids are stored
// as a JSON array.
func (q *queries) SaveLockedGroup(ctx context.Context, group *model.LockedGroup) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if group == nil {
		return 0, fmt.Errorf("%w: group", ErrNilParameter)
	}
	if err := validateString(group.SessionID, "sessionID"); err != nil {
		return 0, err
	}
	if len(group.MemberIDs) < 2 {
		return 0, fmt.Errorf("%w: locked group needs at least two members", ErrEmptySlice)
	}

	members, err := json.Marshal(group.MemberIDs)
	if err != nil {
		return 0, fmt.Errorf("failed to encode member ids: %w", err)
	}

	if group.ID != 0 {
		result, err := q.db.ExecContext(ctx, `
			UPDATE locked_groups SET name = ?, member_ids = ? WHERE id = ?`,
			group.Name, string(members), group.ID)
		if err != nil {
			return 0, fmt.Errorf("failed to update locked group: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return 0, fmt.Errorf("locked group %d: %w", group.ID, common.ErrNotFound)
		}
		return group.ID, nil
	}

	result, err := q.db.ExecContext(ctx, `
		INSERT INTO locked_groups (scenario_id, session_id, name, member_ids, year)
		VALUES (?, ?, ?, ?, ?)`,
		group.ScenarioID, group.SessionID, group.Name, string(members), group.Year)
	if err != nil {
		return 0, fmt.Errorf("failed to insert locked group: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read inserted id: %w", err)
	}
	group.ID = id
	return id, nil
}

// GetLockedGroups returns the groups for one scenario scope.
func (q *queries) GetLockedGroups(ctx context.Context, scenarioID, sessionID string, year int) ([]model.LockedGroup, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(sessionID, "sessionID"); err != nil {
		return nil, err
	}

	rows, err := q.db.QueryContext(ctx, `
		SELECT id, scenario_id, session_id, name, member_ids, year, created_at
		FROM locked_groups WHERE scenario_id = ? AND session_id = ? AND year = ?
		ORDER BY id`, scenarioID, sessionID, year)
	if err != nil {
		return nil, fmt.Errorf("failed to query locked groups: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.LockedGroup
	for rows.Next() {
		var g model.LockedGroup
		var members string
		if err := rows.Scan(&g.ID, &g.ScenarioID, &g.SessionID, &g.Name, &members, &g.Year, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan locked group: %w", err)
		}
		if err := json.Unmarshal([]byte(members), &g.MemberIDs); err != nil {
			return nil, fmt.Errorf("failed to decode member ids for group %d: %w", g.ID, err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// DeleteLockedGroup removes a group.
func (q *queries) DeleteLockedGroup(ctx context.Context, id int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	result, err := q.db.ExecContext(ctx, `DELETE FROM locked_groups WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete locked group: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("locked group %d: %w", id, common.ErrNotFound)
	}
	return nil
}
