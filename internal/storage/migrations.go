package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application
// expects. If the database cannot be migrated to this version, it's a fatal
// error.
const ExpectedSchemaVersion = 4

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Entity feed tables",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS persons (
					external_id TEXT NOT NULL,
					year INTEGER NOT NULL,
					first_name TEXT NOT NULL,
					last_name TEXT NOT NULL,
					preferred_name TEXT,
					school TEXT,
					household_id TEXT,
					gender TEXT,
					grade INTEGER DEFAULT 0,
					birthdate DATETIME,
					PRIMARY KEY (external_id, year)
				)`,
				`CREATE INDEX idx_persons_year ON persons(year)`,

				`CREATE TABLE IF NOT EXISTS attendees (
					person_external_id TEXT NOT NULL,
					session_id TEXT NOT NULL,
					year INTEGER NOT NULL,
					status TEXT NOT NULL,
					prior_level INTEGER DEFAULT 0,
					PRIMARY KEY (person_external_id, session_id, year)
				)`,
				`CREATE INDEX idx_attendees_session ON attendees(session_id, year)`,

				`CREATE TABLE IF NOT EXISTS sessions (
					external_id TEXT NOT NULL,
					year INTEGER NOT NULL,
					name TEXT NOT NULL,
					kind TEXT NOT NULL,
					start_date DATETIME,
					end_date DATETIME,
					PRIMARY KEY (external_id, year)
				)`,

				`CREATE TABLE IF NOT EXISTS bunks (
					external_id TEXT NOT NULL,
					year INTEGER NOT NULL,
					name TEXT NOT NULL,
					gender TEXT,
					level INTEGER DEFAULT 0,
					is_active INTEGER DEFAULT 1,
					PRIMARY KEY (external_id, year)
				)`,

				`CREATE TABLE IF NOT EXISTS bunk_plans (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					bunk_external_id TEXT NOT NULL,
					session_id TEXT NOT NULL,
					year INTEGER NOT NULL,
					capacity INTEGER NOT NULL,
					max_capacity INTEGER DEFAULT 0,
					hard_minimum INTEGER DEFAULT 0,
					preferred_minimum INTEGER DEFAULT 0,
					UNIQUE (bunk_external_id, session_id, year)
				)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Request intake and resolution tables",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS original_requests (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					requester_external_id TEXT NOT NULL,
					field_type TEXT NOT NULL,
					year INTEGER NOT NULL,
					raw_text TEXT NOT NULL,
					content_hash TEXT NOT NULL,
					processed_hash TEXT,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					processed_at DATETIME,
					UNIQUE (requester_external_id, field_type, year)
				)`,
				`CREATE INDEX idx_original_requests_year ON original_requests(year)`,

				`CREATE TABLE IF NOT EXISTS resolved_requests (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					requester_external_id TEXT NOT NULL,
					requestee_external_id TEXT,
					session_id TEXT NOT NULL,
					source_field TEXT NOT NULL,
					source_category TEXT,
					type TEXT NOT NULL,
					status TEXT NOT NULL,
					state TEXT NOT NULL,
					level TEXT,
					explanation TEXT,
					audit_trail TEXT,
					merged_into_id INTEGER DEFAULT 0,
					year INTEGER NOT NULL,
					priority INTEGER DEFAULT 1,
					confidence REAL DEFAULT 0,
					requires_manual_review INTEGER DEFAULT 0,
					is_reciprocal INTEGER DEFAULT 0,
					can_be_dropped INTEGER DEFAULT 0,
					is_active INTEGER DEFAULT 1,
					locked INTEGER DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					UNIQUE (requester_external_id, requestee_external_id, type, year, session_id, source_field)
				)`,
				`CREATE INDEX idx_resolved_requests_session ON resolved_requests(session_id, year)`,
				`CREATE INDEX idx_resolved_requests_merged ON resolved_requests(merged_into_id)`,

				`CREATE TABLE IF NOT EXISTS request_sources (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					resolved_request_id INTEGER NOT NULL,
					original_request_id INTEGER NOT NULL,
					is_primary INTEGER DEFAULT 0,
					UNIQUE (resolved_request_id, original_request_id),
					FOREIGN KEY (resolved_request_id) REFERENCES resolved_requests(id),
					FOREIGN KEY (original_request_id) REFERENCES original_requests(id)
				)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     3,
		Description: "Assignments, locked groups, and solver runs",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS assignments (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					person_external_id TEXT NOT NULL,
					bunk_external_id TEXT NOT NULL,
					bunk_plan_id INTEGER NOT NULL,
					session_id TEXT NOT NULL,
					scenario_id TEXT NOT NULL DEFAULT '',
					source TEXT NOT NULL,
					year INTEGER NOT NULL,
					assigned_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					UNIQUE (person_external_id, session_id, scenario_id, year)
				)`,
				`CREATE INDEX idx_assignments_scope ON assignments(scenario_id, session_id, year)`,

				`CREATE TABLE IF NOT EXISTS locked_groups (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					scenario_id TEXT NOT NULL DEFAULT '',
					session_id TEXT NOT NULL,
					name TEXT,
					member_ids TEXT NOT NULL,
					year INTEGER NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_locked_groups_scope ON locked_groups(scenario_id, session_id, year)`,

				`CREATE TABLE IF NOT EXISTS solver_runs (
					id TEXT PRIMARY KEY,
					scenario_id TEXT NOT NULL DEFAULT '',
					session_id TEXT NOT NULL,
					year INTEGER NOT NULL,
					status TEXT NOT NULL,
					failure_detail TEXT,
					progress INTEGER DEFAULT 0,
					stats TEXT,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					started_at DATETIME,
					finished_at DATETIME
				)`,
				`CREATE INDEX idx_solver_runs_scenario ON solver_runs(scenario_id, status)`,

				`CREATE TABLE IF NOT EXISTS run_logs (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					run_id TEXT NOT NULL,
					level TEXT NOT NULL,
					message TEXT NOT NULL,
					at DATETIME DEFAULT CURRENT_TIMESTAMP,
					FOREIGN KEY (run_id) REFERENCES solver_runs(id)
				)`,
				`CREATE INDEX idx_run_logs_run ON run_logs(run_id)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     4,
		Description: "Configuration values",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS config_values (
					category TEXT NOT NULL,
					subcategory TEXT NOT NULL,
					key TEXT NOT NULL,
					value TEXT NOT NULL,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					PRIMARY KEY (category, subcategory, key)
				)
			`)
			return err
		},
	},
}

// Migrate applies all pending schema migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var currentVersion int
	err := s.sqlDB.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.sqlDB.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	var finalVersion int
	err = s.sqlDB.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}
