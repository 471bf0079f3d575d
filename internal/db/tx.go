package db

import (
	"context"
	"errors"
	"fmt"
)

// WithTx runs fn inside a transaction. The transaction is rolled back when fn
// fails, so a partially applied mutation is never committed.
func WithTx(ctx context.Context, pool Pool, fn func(q Querier) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
