package sqlstore

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"pluggysync/internal/domain/itemsync"
)

const insertTransactionQuery = `INSERT INTO transactions (account_id, transaction_id, amount, description) VALUES (%s, %s, %s, %s)`

// TransactionWriter inserts one row per (account, transaction) pair.
type TransactionWriter struct {
	dsn    string
	logger zerolog.Logger
}

// Ensure TransactionWriter implements itemsync.Writer
var _ itemsync.Writer = (*TransactionWriter)(nil)

func NewTransactionWriter(dsn string, logger zerolog.Logger) *TransactionWriter {
	return &TransactionWriter{
		dsn:    dsn,
		logger: logger.With().Str("component", "sqlstore").Logger(),
	}
}

// Write opens a connection, inserts every pair inside one transaction and
// commits once. On any error the transaction is rolled back, so either all
// rows are committed or none are.
func (w *TransactionWriter) Write(ctx context.Context, data *itemsync.ItemData) (*itemsync.PersistResult, error) {
	db, err := Open(ctx, w.dsn)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(insertTransactionQuery,
		db.Placeholder(1), db.Placeholder(2), db.Placeholder(3), db.Placeholder(4))

	inserted := 0
	for _, acc := range data.Accounts {
		for _, t := range acc.Transactions {
			if _, err := tx.ExecContext(ctx, query, acc.ID, t.ID, t.Amount, t.Description); err != nil {
				if rbErr := tx.Rollback(); rbErr != nil {
					w.logger.Error().Err(rbErr).Msg("Rollback failed")
				}
				return nil, fmt.Errorf("failed to insert transaction %s of account %s: %w", t.ID, acc.ID, err)
			}
			inserted++
		}
	}

	if err := tx.CommitContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transactions: %w", err)
	}

	w.logger.Info().
		Str("driver", db.Driver()).
		Int("rows", inserted).
		Msg("Saved transactions to database")

	return &itemsync.PersistResult{Inserted: inserted}, nil
}
