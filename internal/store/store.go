package store

import (
	"database/sql"
	"errors"

	"github.com/rs/zerolog"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrClaimLost is returned by TransitionStatus when the item is not in
	// any of the expected source states. The caller lost the claim race and
	// should skip the item.
	ErrClaimLost = errors.New("status claim lost")
)

// Store provides durable state for the whole pipeline. The contract is
// strictly synchronous; all concurrency is the caller's responsibility.
// Writes serialize through the single sqlite connection.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// New creates a store over an already-migrated database connection.
func New(db *sql.DB, logger zerolog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger.With().Str("component", "store").Logger(),
	}
}

// DB exposes the underlying connection for read-only query composition
// (filter presets compile into WHERE fragments executed here).
func (s *Store) DB() *sql.DB {
	return s.db
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(i int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(i), Valid: i != 0}
}
