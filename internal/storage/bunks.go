package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/campwire/bunkmate/internal/model"
)

// nullTime stores zero times as NULL.
func nullTime(t interface{ IsZero() bool }) any {
	if t.IsZero() {
		return nil
	}
	return t
}

// SaveSessions upserts the session feed.
func (q *queries) SaveSessions(ctx context.Context, sessions []model.Session) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if len(sessions) == 0 {
		return fmt.Errorf("%w: sessions", ErrEmptySlice)
	}

	for _, s := range sessions {
		if s.ExternalID == "" {
			return fmt.Errorf("%w: session missing external id", ErrEmptyString)
		}
		_, err := q.db.ExecContext(ctx, `
			INSERT INTO sessions (external_id, year, name, kind, start_date, end_date)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (external_id, year) DO UPDATE SET
				name = excluded.name,
				kind = excluded.kind,
				start_date = excluded.start_date,
				end_date = excluded.end_date`,
			s.ExternalID, s.Year, s.Name, s.Kind, nullTime(s.StartDate), nullTime(s.EndDate))
		if err != nil {
			return fmt.Errorf("failed to save session %s: %w", s.ExternalID, err)
		}
	}
	return nil
}

// SaveSessions on the root storage runs the batch atomically.
func (s *SQLiteStorage) SaveSessions(ctx context.Context, sessions []model.Session) error {
	return s.withTx(ctx, func(q *queries) error {
		return q.SaveSessions(ctx, sessions)
	})
}

// GetSessions returns all sessions for a year.
func (q *queries) GetSessions(ctx context.Context, year int) ([]model.Session, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := q.db.QueryContext(ctx, `
		SELECT external_id, year, name, kind, start_date, end_date
		FROM sessions WHERE year = ? ORDER BY start_date, external_id`, year)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Session
	for rows.Next() {
		var s model.Session
		var start, end sql.NullTime
		if err := rows.Scan(&s.ExternalID, &s.Year, &s.Name, &s.Kind, &start, &end); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		s.StartDate = start.Time
		s.EndDate = end.Time
		out = append(out, s)
	}
	return out, rows.Err()
}

// SaveBunks upserts the cabin feed.
func (q *queries) SaveBunks(ctx context.Context, bunks []model.Bunk) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if len(bunks) == 0 {
		return fmt.Errorf("%w: bunks", ErrEmptySlice)
	}

	for _, b := range bunks {
		if b.ExternalID == "" {
			return fmt.Errorf("%w: bunk missing external id", ErrEmptyString)
		}
		_, err := q.db.ExecContext(ctx, `
			INSERT INTO bunks (external_id, year, name, gender, level, is_active)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (external_id, year) DO UPDATE SET
				name = excluded.name,
				gender = excluded.gender,
				level = excluded.level,
				is_active = excluded.is_active`,
			b.ExternalID, b.Year, b.Name, b.Gender, b.Level, b.IsActive)
		if err != nil {
			return fmt.Errorf("failed to save bunk %s: %w", b.ExternalID, err)
		}
	}
	return nil
}

// SaveBunks on the root storage runs the batch atomically.
func (s *SQLiteStorage) SaveBunks(ctx context.Context, bunks []model.Bunk) error {
	return s.withTx(ctx, func(q *queries) error {
		return q.SaveBunks(ctx, bunks)
	})
}

// GetBunks returns all cabins for a year.
func (q *queries) GetBunks(ctx context.Context, year int) ([]model.Bunk, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := q.db.QueryContext(ctx, `
		SELECT external_id, year, name, gender, level, is_active
		FROM bunks WHERE year = ? ORDER BY external_id`, year)
	if err != nil {
		return nil, fmt.Errorf("failed to query bunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Bunk
	for rows.Next() {
		var b model.Bunk
		var gender sql.NullString
		if err := rows.Scan(&b.ExternalID, &b.Year, &b.Name, &gender, &b.Level, &b.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan bunk: %w", err)
		}
		b.Gender = gender.String
		out = append(out, b)
	}
	return out, rows.Err()
}

// SaveBunkPlans upserts capacity definitions, keyed by (bunk, session, year).
func (q *queries) SaveBunkPlans(ctx context.Context, plans []model.BunkPlan) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if len(plans) == 0 {
		return fmt.Errorf("%w: plans", ErrEmptySlice)
	}

	for _, p := range plans {
		if p.BunkExternalID == "" || p.SessionID == "" {
			return fmt.Errorf("%w: bunk plan missing identity", ErrEmptyString)
		}
		_, err := q.db.ExecContext(ctx, `
			INSERT INTO bunk_plans (bunk_external_id, session_id, year, capacity, max_capacity, hard_minimum, preferred_minimum)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (bunk_external_id, session_id, year) DO UPDATE SET
				capacity = excluded.capacity,
				max_capacity = excluded.max_capacity,
				hard_minimum = excluded.hard_minimum,
				preferred_minimum = excluded.preferred_minimum`,
			p.BunkExternalID, p.SessionID, p.Year, p.Capacity, p.MaxCapacity, p.HardMinimum, p.PreferredMinimum)
		if err != nil {
			return fmt.Errorf("failed to save bunk plan %s/%s: %w", p.BunkExternalID, p.SessionID, err)
		}
	}
	return nil
}

// SaveBunkPlans on the root storage runs the batch atomically.
func (s *SQLiteStorage) SaveBunkPlans(ctx context.Context, plans []model.BunkPlan) error {
	return s.withTx(ctx, func(q *queries) error {
		return q.SaveBunkPlans(ctx, plans)
	})
}

// GetBunkPlans returns the capacity definitions for one session/year.
func (q *queries) GetBunkPlans(ctx context.Context, sessionID string, year int) ([]model.BunkPlan, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(sessionID, "sessionID"); err != nil {
		return nil, err
	}

	rows, err := q.db.QueryContext(ctx, `
		SELECT id, bunk_external_id, session_id, year, capacity, max_capacity, hard_minimum, preferred_minimum
		FROM bunk_plans WHERE session_id = ? AND year = ? ORDER BY bunk_external_id`, sessionID, year)
	if err != nil {
		return nil, fmt.Errorf("failed to query bunk plans: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.BunkPlan
	for rows.Next() {
		var p model.BunkPlan
		err := rows.Scan(&p.ID, &p.BunkExternalID, &p.SessionID, &p.Year,
			&p.Capacity, &p.MaxCapacity, &p.HardMinimum, &p.PreferredMinimum)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bunk plan: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
