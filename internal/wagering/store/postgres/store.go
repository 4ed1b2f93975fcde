// Package postgres implementa store.Store sobre database/sql + lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/radieske/sports-wager-engine/internal/wagering/model"
	"github.com/radieske/sports-wager-engine/internal/wagering/store"
)

var _ store.Store = (*Store)(nil)
var _ store.Tx = (*txStore)(nil)

// querier é o subconjunto comum a *sql.DB e *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implementa store.Queries sobre qualquer querier.
type queries struct {
	q querier
}

// Store usa o pool *sql.DB para leituras e abre transações em InTx.
type Store struct {
	queries
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{queries: queries{q: db}, db: db}
}

type txStore struct {
	queries
	tx *sql.Tx
}

// InTx executa fn numa transação READ COMMITTED; os locks de linha
// (SELECT ... FOR UPDATE) serializam o que precisa ser serializado.
func (s *Store) InTx(ctx context.Context, fn func(store.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&txStore{queries: queries{q: tx}, tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: commit: %w", mapErr(err))
	}
	return nil
}

// mapErr traduz erros do driver para os sentinelas do domínio.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return model.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return fmt.Errorf("%w: %s", model.ErrDuplicate, pqErr.Constraint)
	}
	return err
}
