package ledger

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

// Repository persists items and stock transactions in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the transactional operations of the ledger. Other
// modules embed it so that their writes share the ledger's transaction.
type TxRepository interface {
	GetItemForUpdate(ctx context.Context, itemID int64) (Item, error)
	UpdateItemQuantity(ctx context.Context, itemID int64, quantity decimal.Decimal, at time.Time) error
	InsertStockTransaction(ctx context.Context, txn StockTransaction) (StockTransaction, error)
}

// PgTxRepo implements TxRepository on a pgx transaction.
type PgTxRepo struct {
	tx pgx.Tx
}

// NewPgTxRepo wraps tx.
func NewPgTxRepo(tx pgx.Tx) *PgTxRepo {
	return &PgTxRepo{tx: tx}
}

// Tx returns the underlying transaction.
func (r *PgTxRepo) Tx() pgx.Tx {
	return r.tx
}

// WithTx executes the callback inside a read-committed transaction. Rows are
// locked explicitly with FOR UPDATE.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithLockingTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewPgTxRepo(tx))
	})
}

const itemColumns = `i.id, i.code, i.name, i.category, i.quantity, i.supplier_id, s.name, i.updated_at`

func scanItem(row pgx.Row) (Item, error) {
	var (
		item         Item
		supplierName *string
	)
	if err := row.Scan(&item.ID, &item.Code, &item.Name, &item.Category, &item.Quantity, &item.SupplierID, &supplierName, &item.UpdatedAt); err != nil {
		return Item{}, err
	}
	if supplierName != nil {
		item.SupplierName = *supplierName
	}
	return item, nil
}

// GetItem loads a single item.
func (r *Repository) GetItem(ctx context.Context, id int64) (Item, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+itemColumns+`
FROM items i LEFT JOIN suppliers s ON s.id = i.supplier_id
WHERE i.id = $1`, id)
	item, err := scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, shared.NotFoundf("item %d", id)
	}
	return item, err
}

// ListItems returns items matching filter ordered by name.
func (r *Repository) ListItems(ctx context.Context, filter ItemFilter) ([]Item, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Category != "" {
		args = append(args, filter.Category)
		conds = append(conds, fmt.Sprintf("i.category = $%d", len(args)))
	}
	if filter.SupplierID != 0 {
		args = append(args, filter.SupplierID)
		conds = append(conds, fmt.Sprintf("i.supplier_id = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		conds = append(conds, fmt.Sprintf("(i.name ILIKE $%d OR i.code ILIKE $%d)", len(args), len(args)))
	}
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `SELECT ` + itemColumns + ` FROM items i LEFT JOIN suppliers s ON s.id = i.supplier_id`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, limit, filter.Offset)
	query += fmt.Sprintf(" ORDER BY i.name, i.id LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ListTransactions returns the newest transactions of an item first.
func (r *Repository) ListTransactions(ctx context.Context, itemID int64, limit int) ([]StockTransaction, error) {
	if limit <= 0 || limit > 500 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT id, item_id, quantity, tx_type, notes, COALESCE(created_by, 0), created_at
FROM stock_transactions WHERE item_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`, itemID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StockTransaction
	for rows.Next() {
		var txn StockTransaction
		if err := rows.Scan(&txn.ID, &txn.ItemID, &txn.Quantity, &txn.Type, &txn.Notes, &txn.CreatedBy, &txn.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, txn)
	}
	return out, rows.Err()
}

// GetItemForUpdate locks and returns the item row.
func (r *PgTxRepo) GetItemForUpdate(ctx context.Context, itemID int64) (Item, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+itemColumns+`
FROM items i LEFT JOIN suppliers s ON s.id = i.supplier_id
WHERE i.id = $1
FOR UPDATE OF i`, itemID)
	item, err := scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, shared.NotFoundf("item %d", itemID)
	}
	return item, err
}

// UpdateItemQuantity stores the new on-hand quantity.
func (r *PgTxRepo) UpdateItemQuantity(ctx context.Context, itemID int64, quantity decimal.Decimal, at time.Time) error {
	tag, err := r.tx.Exec(ctx, `UPDATE items SET quantity = $2, updated_at = $3 WHERE id = $1`, itemID, quantity, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFoundf("item %d", itemID)
	}
	return nil
}

// InsertStockTransaction appends a ledger row.
func (r *PgTxRepo) InsertStockTransaction(ctx context.Context, txn StockTransaction) (StockTransaction, error) {
	var createdBy any
	if txn.CreatedBy != 0 {
		createdBy = txn.CreatedBy
	}
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_transactions (item_id, quantity, tx_type, notes, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`, txn.ItemID, txn.Quantity, string(txn.Type), txn.Notes, createdBy, txn.CreatedAt).Scan(&txn.ID)
	if err != nil {
		return StockTransaction{}, err
	}
	return txn, nil
}
