package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cabinetworks/mto/internal/shared"
)

// WithLockingTx runs fn under ReadCommitted. Callers serialise on rows with
// SELECT ... FOR UPDATE.
func WithLockingTx(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	return WithTxOptions(ctx, pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, fn)
}

// WithTxOptions executes fn in a transaction started with opts.
func WithTxOptions(ctx context.Context, pool *pgxpool.Pool, opts pgx.TxOptions, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return MapError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return MapError(fmt.Errorf("platform/db: commit tx: %w", err))
	}

	return nil
}

// StorageError classifies a driver failure into the shared error taxonomy.
// Error returns a message that is safe to send to clients; the driver error
// is kept as the cause for logs and errors.As.
type StorageError struct {
	Kind   error
	Detail string
	cause  error
}

func (e *StorageError) Error() string {
	if e.Detail == "" {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Detail
}

// Unwrap exposes both the taxonomy sentinel and the driver error.
func (e *StorageError) Unwrap() []error { return []error{e.Kind, e.cause} }

// Cause returns the underlying driver error.
func (e *StorageError) Cause() error { return e.cause }

// MapError translates storage errors into the shared error taxonomy.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	var mapped *StorageError
	if errors.As(err, &mapped) {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return &StorageError{Kind: shared.ErrNotFound, Detail: "record does not exist", cause: err}
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "40001", "40P01", "55P03":
		return &StorageError{Kind: shared.ErrConflictingState, Detail: "concurrent update, retry", cause: err}
	case "23514":
		return &StorageError{Kind: shared.ErrInvalidQuantity, Detail: constraintDetail("check", pgErr), cause: err}
	case "23503":
		return &StorageError{Kind: shared.ErrNotFound, Detail: constraintDetail("referenced record missing", pgErr), cause: err}
	case "23505":
		return &StorageError{Kind: shared.ErrConflictingState, Detail: constraintDetail("duplicate", pgErr), cause: err}
	}
	return err
}

func constraintDetail(kind string, pgErr *pgconn.PgError) string {
	if pgErr.ConstraintName == "" {
		return kind
	}
	return kind + " " + pgErr.ConstraintName
}
