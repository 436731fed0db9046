package auth

import (
	"context"
	"database/sql"

	"github.com/mealbuddy/mealbuddy/internal/database"
)

// Store hands out user repositories bound either to the connection pool or
// to a request-scoped transaction.
type Store interface {
	// Users returns a repository for single-statement reads and writes.
	Users() UserRepository

	// WithinTx runs fn against a transactional repository. The transaction
	// commits when fn returns nil and rolls back on error or panic.
	WithinTx(ctx context.Context, fn func(repo UserRepository) error) error
}

// sqlStore implements Store over a MariaDB pool.
type sqlStore struct {
	db    *sql.DB
	users UserRepository
}

// NewStore creates a Store backed by db.
func NewStore(db *sql.DB) Store {
	return &sqlStore{db: db, users: NewUserRepository(db)}
}

func (s *sqlStore) Users() UserRepository {
	return s.users
}

func (s *sqlStore) WithinTx(ctx context.Context, fn func(repo UserRepository) error) error {
	return database.WithTx(ctx, s.db, nil, func(ctx context.Context, tx database.DBTX) error {
		return fn(NewUserRepository(tx))
	})
}
