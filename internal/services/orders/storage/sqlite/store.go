// Package sqlite implements order and outbox persistence over SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"strings"

	sqlitemigrate "github.com/acdrainwiz/drainwiz/internal/platform/storage/sqlitemigrate"
	"github.com/acdrainwiz/drainwiz/internal/services/orders/storage"
	"github.com/acdrainwiz/drainwiz/internal/services/orders/storage/sqlite/migrations"
)

// Store implements storage.OrderStore and storage.OutboxStore.
//
// Orders and their outbox rows share one database so an order and the
// events it emits commit together.
type Store struct {
	sqlDB *sql.DB
}

var (
	_ storage.OrderStore  = (*Store)(nil)
	_ storage.OutboxStore = (*Store)(nil)
)

// Open opens the orders database and applies bundled migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	sqlDB, err := sqlitemigrate.Open(ctx, path, migrations.FS, "")
	if err != nil {
		return nil, err
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close releases the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

var toMillis = sqlitemigrate.ToMillis
var fromMillis = sqlitemigrate.FromMillis
