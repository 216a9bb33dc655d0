package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/cabinetworks/mto/internal/shared"
)

func TestMapError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{name: "no rows", err: pgx.ErrNoRows, want: shared.ErrNotFound},
		{name: "serialization", err: &pgconn.PgError{Code: "40001"}, want: shared.ErrConflictingState},
		{name: "deadlock", err: fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: "40P01"}), want: shared.ErrConflictingState},
		{name: "check", err: &pgconn.PgError{Code: "23514", ConstraintName: "items_quantity_check"}, want: shared.ErrInvalidQuantity},
		{name: "fk", err: &pgconn.PgError{Code: "23503"}, want: shared.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.ErrorIs(t, MapError(tc.err), tc.want)
		})
	}

	plain := errors.New("boom")
	require.Equal(t, plain, MapError(plain))
	require.NoError(t, MapError(nil))
}

func TestMapErrorHidesDriverText(t *testing.T) {
	pgErr := &pgconn.PgError{
		Code:           "23505",
		Message:        `duplicate key value violates unique constraint "purchase_orders_number_key"`,
		Detail:         "Key (number)=(PO-1) already exists.",
		ConstraintName: "purchase_orders_number_key",
	}
	err := MapError(fmt.Errorf("insert purchase order: %w", pgErr))

	require.ErrorIs(t, err, shared.ErrConflictingState)
	require.Equal(t, "conflicting state: duplicate purchase_orders_number_key", err.Error())
	require.NotContains(t, err.Error(), "Key (number)")

	var cause *pgconn.PgError
	require.ErrorAs(t, err, &cause)
	require.Equal(t, "23505", cause.Code)

	var storageErr *StorageError
	require.ErrorAs(t, err, &storageErr)
	require.Same(t, pgErr, errors.Unwrap(storageErr.Cause()))

	lock := MapError(&pgconn.PgError{Code: "55P03", Message: "canceling statement due to lock timeout"})
	require.ErrorIs(t, lock, shared.ErrConflictingState)
	require.NotContains(t, lock.Error(), "canceling statement")

	noRows := MapError(fmt.Errorf("get item: %w", pgx.ErrNoRows))
	require.ErrorIs(t, noRows, shared.ErrNotFound)
	require.NotContains(t, noRows.Error(), "no rows in result set")
	require.Same(t, noRows, MapError(noRows))
}
