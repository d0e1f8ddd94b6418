package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/campwire/bunkmate/internal/common"
	"github.com/campwire/bunkmate/internal/model"
)

// SavePersons upserts a batch of person-year records. The feed is
// authoritative; every field is overwritten on conflict.
func (q *queries) SavePersons(ctx context.Context, persons []model.Person) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validatePersons(persons); err != nil {
		return err
	}

	for _, p := range persons {
		_, err := q.db.ExecContext(ctx, `
			INSERT INTO persons (external_id, year, first_name, last_name, preferred_name, school, household_id, gender, grade, birthdate)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (external_id, year) DO UPDATE SET
				first_name = excluded.first_name,
				last_name = excluded.last_name,
				preferred_name = excluded.preferred_name,
				school = excluded.school,
				household_id = excluded.household_id,
				gender = excluded.gender,
				grade = excluded.grade,
				birthdate = excluded.birthdate`,
			p.ExternalID, p.Year, p.FirstName, p.LastName, p.PreferredName,
			p.School, p.HouseholdID, p.Gender, p.Grade, nullTime(p.Birthdate))
		if err != nil {
			return fmt.Errorf("failed to save person %s: %w", p.ExternalID, err)
		}
	}
	return nil
}

// SavePersons on the root storage runs the batch atomically.
func (s *SQLiteStorage) SavePersons(ctx context.Context, persons []model.Person) error {
	return s.withTx(ctx, func(q *queries) error {
		return q.SavePersons(ctx, persons)
	})
}

// GetPerson fetches one person-year record.
func (q *queries) GetPerson(ctx context.Context, externalID string, year int) (*model.Person, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(externalID, "externalID"); err != nil {
		return nil, err
	}

	row := q.db.QueryRowContext(ctx, `
		SELECT external_id, year, first_name, last_name, preferred_name, school, household_id, gender, grade, birthdate
		FROM persons WHERE external_id = ? AND year = ?`, externalID, year)

	p, err := scanPerson(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("person %s/%d: %w", externalID, year, common.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get person: %w", err)
	}
	return p, nil
}

// SaveAttendees upserts enrollment records.
func (q *queries) SaveAttendees(ctx context.Context, attendees []model.Attendee) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if len(attendees) == 0 {
		return fmt.Errorf("%w: attendees", ErrEmptySlice)
	}

	for _, a := range attendees {
		if a.Person.ExternalID == "" || a.SessionID == "" {
			return fmt.Errorf("%w: attendee missing identity", ErrInvalidPerson)
		}
		_, err := q.db.ExecContext(ctx, `
			INSERT INTO attendees (person_external_id, session_id, year, status, prior_level)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (person_external_id, session_id, year) DO UPDATE SET
				status = excluded.status,
				prior_level = excluded.prior_level`,
			a.Person.ExternalID, a.SessionID, a.Year, a.Status, a.PriorLevel)
		if err != nil {
			return fmt.Errorf("failed to save attendee %s: %w", a.Person.ExternalID, err)
		}
	}
	return nil
}

// SaveAttendees on the root storage runs the batch atomically.
func (s *SQLiteStorage) SaveAttendees(ctx context.Context, attendees []model.Attendee) error {
	return s.withTx(ctx, func(q *queries) error {
		return q.SaveAttendees(ctx, attendees)
	})
}

// GetAttendeesBySession returns the enrollment roster with person records
// joined in.
func (q *queries) GetAttendeesBySession(ctx context.Context, sessionID string, year int) ([]model.Attendee, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(sessionID, "sessionID"); err != nil {
		return nil, err
	}
	return q.queryAttendees(ctx, `
		SELECT a.person_external_id, a.session_id, a.year, a.status, a.prior_level,
		       p.external_id, p.year, p.first_name, p.last_name, p.preferred_name, p.school, p.household_id, p.gender, p.grade, p.birthdate
		FROM attendees a
		JOIN persons p ON p.external_id = a.person_external_id AND p.year = a.year
		WHERE a.session_id = ? AND a.year = ?
		ORDER BY a.person_external_id`, sessionID, year)
}

// GetAttendeesByYear returns every enrollment across all sessions of a year.
func (q *queries) GetAttendeesByYear(ctx context.Context, year int) ([]model.Attendee, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return q.queryAttendees(ctx, `
		SELECT a.person_external_id, a.session_id, a.year, a.status, a.prior_level,
		       p.external_id, p.year, p.first_name, p.last_name, p.preferred_name, p.school, p.household_id, p.gender, p.grade, p.birthdate
		FROM attendees a
		JOIN persons p ON p.external_id = a.person_external_id AND p.year = a.year
		WHERE a.year = ?
		ORDER BY a.session_id, a.person_external_id`, year)
}

func (q *queries) queryAttendees(ctx context.Context, query string, args ...any) ([]model.Attendee, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query attendees: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Attendee
	for rows.Next() {
		var a model.Attendee
		var personID string
		var preferred, school, household, gender sql.NullString
		var birthdate sql.NullTime
		err := rows.Scan(&personID, &a.SessionID, &a.Year, &a.Status, &a.PriorLevel,
			&a.Person.ExternalID, &a.Person.Year, &a.Person.FirstName, &a.Person.LastName,
			&preferred, &school, &household, &gender, &a.Person.Grade, &birthdate)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attendee: %w", err)
		}
		a.Person.PreferredName = preferred.String
		a.Person.School = school.String
		a.Person.HouseholdID = household.String
		a.Person.Gender = gender.String
		a.Person.Birthdate = birthdate.Time
		out = append(out, a)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPerson(row rowScanner) (*model.Person, error) {
	var p model.Person
	var preferred, school, household, gender sql.NullString
	var birthdate sql.NullTime
	err := row.Scan(&p.ExternalID, &p.Year, &p.FirstName, &p.LastName,
		&preferred, &school, &household, &gender, &p.Grade, &birthdate)
	if err != nil {
		return nil, err
	}
	p.PreferredName = preferred.String
	p.School = school.String
	p.HouseholdID = household.String
	p.Gender = gender.String
	p.Birthdate = birthdate.Time
	return &p, nil
}
