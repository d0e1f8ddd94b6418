package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/campwire/bunkmate/internal/common"
)

// GetConfigValue returns one persisted configuration value.
func (q *queries) GetConfigValue(ctx context.Context, category, subcategory, key string) (string, error) {
	if err := validateContext(ctx); err != nil {
		return "", err
	}
	if err := validateString(category, "category"); err != nil {
		return "", err
	}
	if err := validateString(key, "key"); err != nil {
		return "", err
	}

	var value string
	err := q.db.QueryRowContext(ctx, `
		SELECT value FROM config_values WHERE category = ? AND subcategory = ? AND key = ?`,
		category, subcategory, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("config %s.%s.%s: %w", category, subcategory, key, common.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get config value: %w", err)
	}
	return value, nil
}

// SetConfigValue persists one configuration value. Bounds checking happens
// in the config package before this is called.
func (q *queries) SetConfigValue(ctx context.Context, category, subcategory, key, value string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(category, "category"); err != nil {
		return err
	}
	if err := validateString(key, "key"); err != nil {
		return err
	}

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO config_values (category, subcategory, key, value, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (category, subcategory, key) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP`,
		category, subcategory, key, value)
	if err != nil {
		return fmt.Errorf("failed to set config value: %w", err)
	}
	return nil
}

// AllConfigValues returns every persisted value keyed by dotted path.
func (q *queries) AllConfigValues(ctx context.Context) (map[string]string, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := q.db.QueryContext(ctx, `SELECT category, subcategory, key, value FROM config_values`)
	if err != nil {
		return nil, fmt.Errorf("failed to query config values: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]string)
	for rows.Next() {
		var category, subcategory, key, value string
		if err := rows.Scan(&category, &subcategory, &key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan config value: %w", err)
		}
		out[fmt.Sprintf("%s.%s.%s", category, subcategory, key)] = value
	}
	return out, rows.Err()
}
