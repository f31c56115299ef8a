// Package sqlite stores contractor accounts in SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	sqlitemigrate "github.com/acdrainwiz/drainwiz/internal/platform/storage/sqlitemigrate"
	"github.com/acdrainwiz/drainwiz/internal/services/account/storage"
	"github.com/acdrainwiz/drainwiz/internal/services/account/storage/sqlite/migrations"
)

// Store provides SQLite-backed account persistence.
type Store struct {
	sqlDB *sql.DB
}

var _ storage.Store = (*Store)(nil)

// Open opens the account store and applies migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	sqlDB, err := sqlitemigrate.Open(ctx, path, migrations.FS, "")
	if err != nil {
		return nil, err
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close releases the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

func requireOneRow(result sql.Result, op string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if rowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

var (
	toMillis       = sqlitemigrate.ToMillis
	fromMillis     = sqlitemigrate.FromMillis
	nullMillis     = sqlitemigrate.NullMillis
	fromNullMillis = sqlitemigrate.FromNullMillis
)
