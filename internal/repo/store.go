package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// Querier is satisfied by both *sql.DB and *sql.Tx
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repos groups the repositories bound to one Querier
type Repos struct {
	Users     UserRepo
	Documents DocumentRepo
	Devices   DeviceRepo
	Sessions  SessionRepo
}

// Store hands out repositories and runs transactional scopes
type Store interface {
	Repos() Repos
	// WithTx runs fn inside one transaction. The transaction commits when fn
	// returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(r Repos) error) error
	Ping(ctx context.Context) error
}

type pgStore struct {
	db *sql.DB
}

// NewStore creates a Postgres-backed Store
func NewStore(db *sql.DB) Store {
	return &pgStore{db: db}
}

func (s *pgStore) Repos() Repos {
	return bind(s.db)
}

func (s *pgStore) WithTx(ctx context.Context, fn func(r Repos) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return translate("tx.begin", err)
	}
	defer tx.Rollback()

	if err := fn(bind(tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return translate("tx.commit", err)
	}
	return nil
}

func (s *pgStore) Ping(ctx context.Context) error {
	return translate("ping", s.db.PingContext(ctx))
}

func bind(q Querier) Repos {
	return Repos{
		Users:     NewUserRepo(q),
		Documents: NewDocumentRepo(q),
		Devices:   NewDeviceRepo(q),
		Sessions:  NewSessionRepo(q),
	}
}

// newID returns a time-ordered UUIDv7
func newID() (uuid.UUID, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.Nil, fmt.Errorf("generate uuid: %w", err)
	}
	return id, nil
}
