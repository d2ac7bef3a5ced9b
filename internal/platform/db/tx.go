package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// maxTxAttempts bounds how often WithTx reruns fn after a serialization failure.
const maxTxAttempts = 3

// WithTx executes a function within a transaction using the RepeatableRead
// isolation level. Serialization failures rerun fn in a fresh transaction, so
// fn must not have side effects outside tx.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	return retrySerializable(ctx, maxTxAttempts, func() error {
		return run(ctx, pool, pgx.TxOptions{IsoLevel: pgx.RepeatableRead}, fn)
	})
}

// WithReadTx executes fn inside a read-only RepeatableRead transaction, giving
// every statement in fn the same snapshot.
func WithReadTx(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	return run(ctx, pool, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, fn)
}

func run(ctx context.Context, pool *pgxpool.Pool, opts pgx.TxOptions, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, opts)
	if err != nil {
		return Classify(fmt.Errorf("platform/db: begin tx: %w", err))
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return Classify(fmt.Errorf("platform/db: commit tx: %w", err))
	}

	return nil
}

func retrySerializable(ctx context.Context, attempts int, attempt func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = attempt(); err == nil || !IsSerializationFailure(err) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return err
		}
	}
	return err
}
