package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"
)

// TxFunc is executed inside a transaction
type TxFunc func(tx *sql.Tx) error

// WithTransaction wraps fn in a transaction.
// Rolls back when fn returns an error or panics, commits otherwise.
func WithTransaction(ctx context.Context, db *sql.DB, fn TxFunc) (err error) {
	// Begin transaction
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		} else if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Warn().Err(rbErr).Msg("transaction rollback failed")
			}
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}

	// Commit transaction
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// TxManager binds WithTransaction to one database handle so services can
// depend on it through a small interface.
type TxManager struct {
	db *sql.DB
}

func NewTxManager(db *sql.DB) *TxManager {
	return &TxManager{db: db}
}

func (m *TxManager) WithTransaction(ctx context.Context, fn TxFunc) error {
	return WithTransaction(ctx, m.db, fn)
}
