// Package testutil provides shared helpers for package tests.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/sublarr/sublarr/internal/database"
	"github.com/sublarr/sublarr/internal/store"
)

// NewDB opens a migrated throwaway database under t.TempDir.
func NewDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.Migrate())
	return db
}

// NewStore opens a migrated throwaway database and wraps it in a store.
func NewStore(t *testing.T) *store.Store {
	t.Helper()
	return store.New(NewDB(t).Conn(), zerolog.Nop())
}
