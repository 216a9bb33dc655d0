package reservation

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cabinetworks/mto/internal/ledger"
	"github.com/cabinetworks/mto/internal/platform/db"
	"github.com/cabinetworks/mto/internal/shared"
)

// Repository persists reservations in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository extends the ledger's transactional operations so that the
// stock decrement and the reservation insert share one transaction.
type TxRepository interface {
	ledger.TxRepository
	GetLine(ctx context.Context, lineID int64) (LineRef, error)
	InsertReservation(ctx context.Context, res Reservation) (Reservation, error)
}

type txRepo struct {
	*ledger.PgTxRepo
}

// WithTx executes the callback inside a read-committed transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithLockingTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{PgTxRepo: ledger.NewPgTxRepo(tx)})
	})
}

const reservationColumns = `id, item_id, mto_line_id, quantity, used_quantity, notes, COALESCE(created_by, 0), created_at`

func scanReservations(rows pgx.Rows) ([]Reservation, error) {
	defer rows.Close()
	var out []Reservation
	for rows.Next() {
		var res Reservation
		if err := rows.Scan(&res.ID, &res.ItemID, &res.MTOLineID, &res.Quantity, &res.UsedQuantity, &res.Notes, &res.CreatedBy, &res.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

// ListByLine returns the reservations of an MTO line.
func (r *Repository) ListByLine(ctx context.Context, lineID int64) ([]Reservation, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE mto_line_id = $1 ORDER BY created_at, id`, lineID)
	if err != nil {
		return nil, err
	}
	return scanReservations(rows)
}

// ListByItem returns the reservations drawn from an item.
func (r *Repository) ListByItem(ctx context.Context, itemID int64) ([]Reservation, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE item_id = $1 ORDER BY created_at, id`, itemID)
	if err != nil {
		return nil, err
	}
	return scanReservations(rows)
}

// GetLine reads the line and its MTO, holding a share lock on the line so it
// cannot be soft-deleted while the reservation is written.
func (r *txRepo) GetLine(ctx context.Context, lineID int64) (LineRef, error) {
	var ref LineRef
	err := r.Tx().QueryRow(ctx, `SELECT l.id, l.mto_id, l.item_id, l.deleted_at IS NOT NULL, m.deleted_at IS NOT NULL
FROM mto_lines l JOIN materials_to_order m ON m.id = l.mto_id
WHERE l.id = $1
FOR SHARE OF l`, lineID).Scan(&ref.ID, &ref.MTOID, &ref.ItemID, &ref.Deleted, &ref.MTODeleted)
	if errors.Is(err, pgx.ErrNoRows) {
		return LineRef{}, shared.NotFoundf("mto line %d", lineID)
	}
	return ref, err
}

func (r *txRepo) InsertReservation(ctx context.Context, res Reservation) (Reservation, error) {
	var createdBy any
	if res.CreatedBy != 0 {
		createdBy = res.CreatedBy
	}
	err := r.Tx().QueryRow(ctx, `INSERT INTO reservations (item_id, mto_line_id, quantity, used_quantity, notes, created_by, created_at)
VALUES ($1, $2, $3, 0, $4, $5, $6) RETURNING id`, res.ItemID, res.MTOLineID, res.Quantity, res.Notes, createdBy, res.CreatedAt).Scan(&res.ID)
	if err != nil {
		return Reservation{}, err
	}
	return res, nil
}
