package procurement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/cabinetworks/mto/internal/platform/db"
	"github.com/cabinetworks/mto/internal/shared"
)

// Repository persists purchase orders in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	InsertPO(ctx context.Context, po PurchaseOrder) (PurchaseOrder, error)
	InsertOrderedItem(ctx context.Context, item OrderedItem) (OrderedItem, error)
	GetPOForUpdate(ctx context.Context, id int64) (PurchaseOrder, error)
	ListOrderedItems(ctx context.Context, poID int64) ([]OrderedItem, error)
	UpdatePOStatus(ctx context.Context, id int64, status POStatus, at time.Time) error
	GetLineForUpdate(ctx context.Context, lineID int64) (LineRef, error)
	SetQuantityOrdered(ctx context.Context, lineID int64, qty int64, at time.Time) error
	AddQuantityOrderedPO(ctx context.Context, lineID int64, qty decimal.Decimal, at time.Time) error
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a read-committed transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithLockingTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const poColumns = `id, number, supplier_id, status, notes, COALESCE(created_by, 0), created_at, ordered_at, received_at`

func scanPO(row pgx.Row) (PurchaseOrder, error) {
	var po PurchaseOrder
	err := row.Scan(&po.ID, &po.Number, &po.SupplierID, &po.Status, &po.Notes, &po.CreatedBy, &po.CreatedAt, &po.OrderedAt, &po.ReceivedAt)
	return po, err
}

func queryItems(ctx context.Context, q interface {
	Query(context.Context, string, ...any) (pgx.Rows, error)
}, poID int64) ([]OrderedItem, error) {
	rows, err := q.Query(ctx, `SELECT id, purchase_order_id, mto_line_id, quantity FROM ordered_items WHERE purchase_order_id = $1 ORDER BY id`, poID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []OrderedItem
	for rows.Next() {
		var item OrderedItem
		if err := rows.Scan(&item.ID, &item.PurchaseOrderID, &item.MTOLineID, &item.Quantity); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// GetPurchaseOrder loads a purchase order and its items.
func (r *Repository) GetPurchaseOrder(ctx context.Context, id int64) (PODetail, error) {
	po, err := scanPO(r.pool.QueryRow(ctx, `SELECT `+poColumns+` FROM purchase_orders WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return PODetail{}, shared.NotFoundf("purchase order %d", id)
	}
	if err != nil {
		return PODetail{}, err
	}
	items, err := queryItems(ctx, r.pool, id)
	if err != nil {
		return PODetail{}, err
	}
	return PODetail{PurchaseOrder: po, Items: items}, nil
}

// ListPurchaseOrders returns purchase orders newest first.
func (r *Repository) ListPurchaseOrders(ctx context.Context, filter ListFilter) ([]PurchaseOrder, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.SupplierID != 0 {
		args = append(args, filter.SupplierID)
		conds = append(conds, fmt.Sprintf("supplier_id = $%d", len(args)))
	}
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `SELECT ` + poColumns + ` FROM purchase_orders`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, limit, filter.Offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PurchaseOrder
	for rows.Next() {
		po, err := scanPO(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, po)
	}
	return out, rows.Err()
}

func (tx *txRepo) InsertPO(ctx context.Context, po PurchaseOrder) (PurchaseOrder, error) {
	var createdBy any
	if po.CreatedBy != 0 {
		createdBy = po.CreatedBy
	}
	err := tx.tx.QueryRow(ctx, `INSERT INTO purchase_orders (number, supplier_id, status, notes, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`, po.Number, po.SupplierID, string(po.Status), po.Notes, createdBy, po.CreatedAt).Scan(&po.ID)
	if err != nil {
		return PurchaseOrder{}, err
	}
	return po, nil
}

func (tx *txRepo) InsertOrderedItem(ctx context.Context, item OrderedItem) (OrderedItem, error) {
	err := tx.tx.QueryRow(ctx, `INSERT INTO ordered_items (purchase_order_id, mto_line_id, quantity) VALUES ($1, $2, $3) RETURNING id`,
		item.PurchaseOrderID, item.MTOLineID, item.Quantity).Scan(&item.ID)
	if err != nil {
		return OrderedItem{}, err
	}
	return item, nil
}

func (tx *txRepo) GetPOForUpdate(ctx context.Context, id int64) (PurchaseOrder, error) {
	po, err := scanPO(tx.tx.QueryRow(ctx, `SELECT `+poColumns+` FROM purchase_orders WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return PurchaseOrder{}, shared.NotFoundf("purchase order %d", id)
	}
	return po, err
}

func (tx *txRepo) ListOrderedItems(ctx context.Context, poID int64) ([]OrderedItem, error) {
	return queryItems(ctx, tx.tx, poID)
}

func (tx *txRepo) UpdatePOStatus(ctx context.Context, id int64, status POStatus, at time.Time) error {
	query := `UPDATE purchase_orders SET status = $2 WHERE id = $1`
	switch status {
	case POStatusOrdered:
		query = `UPDATE purchase_orders SET status = $2, ordered_at = $3 WHERE id = $1`
	case POStatusReceived:
		query = `UPDATE purchase_orders SET status = $2, received_at = $3 WHERE id = $1`
	default:
		_, err := tx.tx.Exec(ctx, query, id, string(status))
		return err
	}
	_, err := tx.tx.Exec(ctx, query, id, string(status), at)
	return err
}

func (tx *txRepo) GetLineForUpdate(ctx context.Context, lineID int64) (LineRef, error) {
	var ref LineRef
	err := tx.tx.QueryRow(ctx, `SELECT id, mto_id, quantity_ordered, deleted_at IS NOT NULL FROM mto_lines WHERE id = $1 FOR UPDATE`, lineID).
		Scan(&ref.ID, &ref.MTOID, &ref.QuantityOrdered, &ref.Deleted)
	if errors.Is(err, pgx.ErrNoRows) {
		return LineRef{}, shared.NotFoundf("mto line %d", lineID)
	}
	return ref, err
}

func (tx *txRepo) SetQuantityOrdered(ctx context.Context, lineID int64, qty int64, at time.Time) error {
	_, err := tx.tx.Exec(ctx, `UPDATE mto_lines SET quantity_ordered = $2, updated_at = $3 WHERE id = $1`, lineID, qty, at)
	return err
}

func (tx *txRepo) AddQuantityOrderedPO(ctx context.Context, lineID int64, qty decimal.Decimal, at time.Time) error {
	_, err := tx.tx.Exec(ctx, `UPDATE mto_lines SET quantity_ordered_po = quantity_ordered_po + $2, updated_at = $3 WHERE id = $1`, lineID, qty, at)
	return err
}
