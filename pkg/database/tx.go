package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// TxBeginner is satisfied by *sqlx.DB.
type TxBeginner interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// TxFunc is the body of a unit of work.
type TxFunc func(ctx context.Context, tx *sqlx.Tx) error

// TxManager runs functions inside a single database transaction.
// The transaction commits only when the function returns nil; any error or panic rolls it back.
type TxManager struct {
	db   TxBeginner
	opts *sql.TxOptions
}

// NewTxManager builds a TxManager using read-committed isolation.
func NewTxManager(db TxBeginner) *TxManager {
	return &TxManager{db: db, opts: &sql.TxOptions{Isolation: sql.LevelReadCommitted}}
}

// WithinTx executes fn in a transaction. Errors returned by fn are passed through unchanged.
func (m *TxManager) WithinTx(ctx context.Context, fn TxFunc) (err error) {
	tx, err := m.db.BeginTxx(ctx, m.opts)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(ctx, tx); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
