// Package testutil provides shared test helpers.
package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/campwire/bunkmate/internal/storage"
)

// NewTestDatabase returns a migrated in-memory store, closed automatically
// when the test finishes.
func NewTestDatabase(t *testing.T) *storage.SQLiteStorage {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))

	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}
