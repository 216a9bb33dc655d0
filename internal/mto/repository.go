package mto

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

// Repository persists MTOs and their lines in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by service and resolver.
type TxRepository interface {
	GetMTOForUpdate(ctx context.Context, id int64) (MTO, error)
	ListLineCoverage(ctx context.Context, mtoID int64) ([]LineCoverage, error)
	UpdateStatus(ctx context.Context, id int64, status Status, at time.Time) error
	InsertMTO(ctx context.Context, m MTO) (MTO, error)
	InsertLotLinks(ctx context.Context, mtoID int64, lotIDs []int64) error
	InsertLine(ctx context.Context, line Line) (Line, error)
	ItemExists(ctx context.Context, itemID int64) (bool, error)
	GetLineForUpdate(ctx context.Context, lineID int64) (Line, error)
	SetMTODeleted(ctx context.Context, id int64, deletedAt *time.Time, at time.Time) error
	SetLineDeleted(ctx context.Context, id int64, deletedAt *time.Time, at time.Time) error
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

const mtoColumns = `m.id, m.project_id, COALESCE(p.name, ''), m.status, m.notes, COALESCE(m.created_by, 0), m.created_at, m.updated_at, m.deleted_at`

func scanMTO(row pgx.Row) (MTO, error) {
	var m MTO
	err := row.Scan(&m.ID, &m.ProjectID, &m.ProjectName, &m.Status, &m.Notes, &m.CreatedBy, &m.CreatedAt, &m.UpdatedAt, &m.DeletedAt)
	return m, err
}

// GetMTO loads an MTO with its lot links.
func (r *Repository) GetMTO(ctx context.Context, id int64) (MTO, error) {
	m, err := scanMTO(r.pool.QueryRow(ctx, `SELECT `+mtoColumns+`
FROM materials_to_order m LEFT JOIN projects p ON p.id = m.project_id
WHERE m.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return MTO{}, shared.NotFoundf("mto %d", id)
	}
	if err != nil {
		return MTO{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT lot_id FROM mto_lots WHERE mto_id = $1 ORDER BY lot_id`, id)
	if err != nil {
		return MTO{}, err
	}
	m.LotIDs, err = pgx.CollectRows(rows, pgx.RowTo[int64])
	return m, err
}

// ListLines returns the lines of an MTO with item and reservation totals.
func (r *Repository) ListLines(ctx context.Context, mtoID int64, includeDeleted bool) ([]LineDetail, error) {
	query := `SELECT l.id, l.mto_id, l.item_id, l.quantity, l.quantity_ordered, l.quantity_ordered_po, l.notes, l.created_at, l.deleted_at,
	i.name, COALESCE(s.name, ''), COALESCE(SUM(r.quantity), 0), COUNT(r.id)
FROM mto_lines l
JOIN items i ON i.id = l.item_id
LEFT JOIN suppliers s ON s.id = i.supplier_id
LEFT JOIN reservations r ON r.mto_line_id = l.id
WHERE l.mto_id = $1`
	if !includeDeleted {
		query += ` AND l.deleted_at IS NULL`
	}
	query += ` GROUP BY l.id, i.name, s.name ORDER BY l.id`
	rows, err := r.pool.Query(ctx, query, mtoID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LineDetail
	for rows.Next() {
		var d LineDetail
		if err := rows.Scan(&d.ID, &d.MTOID, &d.ItemID, &d.Quantity, &d.QuantityOrdered, &d.QuantityOrderedPO, &d.Notes, &d.CreatedAt, &d.DeletedAt,
			&d.ItemName, &d.SupplierName, &d.ReservedQuantity, &d.ReservationCount); err != nil {
			return nil, err
		}
		d.Covered = IsCovered(d.Coverage())
		out = append(out, d)
	}
	return out, rows.Err()
}

// List returns MTOs matching filter, newest first.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]MTO, error) {
	var (
		conds []string
		args  []any
	)
	if !filter.IncludeDeleted {
		conds = append(conds, "m.deleted_at IS NULL")
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("m.status = $%d", len(args)))
	}
	if filter.ProjectID != 0 {
		args = append(args, filter.ProjectID)
		conds = append(conds, fmt.Sprintf("m.project_id = $%d", len(args)))
	}
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `SELECT ` + mtoColumns + ` FROM materials_to_order m LEFT JOIN projects p ON p.id = m.project_id`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, limit, filter.Offset)
	query += fmt.Sprintf(" ORDER BY m.created_at DESC, m.id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []MTO
	for rows.Next() {
		m, err := scanMTO(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListActiveMTOIDs returns the ids of every non-deleted MTO.
func (r *Repository) ListActiveMTOIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM materials_to_order WHERE deleted_at IS NULL ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

func (r *txRepo) GetMTOForUpdate(ctx context.Context, id int64) (MTO, error) {
	m, err := scanMTO(r.tx.QueryRow(ctx, `SELECT `+mtoColumns+`
FROM materials_to_order m LEFT JOIN projects p ON p.id = m.project_id
WHERE m.id = $1
FOR UPDATE OF m`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return MTO{}, shared.NotFoundf("mto %d", id)
	}
	return m, err
}

func (r *txRepo) ListLineCoverage(ctx context.Context, mtoID int64) ([]LineCoverage, error) {
	rows, err := r.tx.Query(ctx, `SELECT l.id, l.quantity_ordered, l.quantity_ordered_po, COUNT(r.id)
FROM mto_lines l LEFT JOIN reservations r ON r.mto_line_id = l.id
WHERE l.mto_id = $1 AND l.deleted_at IS NULL
GROUP BY l.id ORDER BY l.id`, mtoID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LineCoverage
	for rows.Next() {
		var c LineCoverage
		if err := rows.Scan(&c.LineID, &c.QuantityOrdered, &c.QuantityOrderedPO, &c.ReservationCount); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *txRepo) UpdateStatus(ctx context.Context, id int64, status Status, at time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE materials_to_order SET status = $2, updated_at = $3 WHERE id = $1`, id, string(status), at)
	return err
}

func (r *txRepo) InsertMTO(ctx context.Context, m MTO) (MTO, error) {
	var createdBy any
	if m.CreatedBy != 0 {
		createdBy = m.CreatedBy
	}
	err := r.tx.QueryRow(ctx, `INSERT INTO materials_to_order (project_id, status, notes, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $5) RETURNING id`, m.ProjectID, string(m.Status), m.Notes, createdBy, m.CreatedAt).Scan(&m.ID)
	if err != nil {
		return MTO{}, err
	}
	m.UpdatedAt = m.CreatedAt
	return m, nil
}

func (r *txRepo) InsertLotLinks(ctx context.Context, mtoID int64, lotIDs []int64) error {
	for _, lotID := range lotIDs {
		if _, err := r.tx.Exec(ctx, `INSERT INTO mto_lots (mto_id, lot_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, mtoID, lotID); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepo) InsertLine(ctx context.Context, line Line) (Line, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO mto_lines (mto_id, item_id, quantity, quantity_ordered, quantity_ordered_po, notes, created_at, updated_at)
VALUES ($1, $2, $3, 0, 0, $4, $5, $5) RETURNING id`, line.MTOID, line.ItemID, line.Quantity, line.Notes, line.CreatedAt).Scan(&line.ID)
	if err != nil {
		return Line{}, err
	}
	line.QuantityOrderedPO = decimal.Zero
	return line, nil
}

func (r *txRepo) ItemExists(ctx context.Context, itemID int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM items WHERE id = $1)`, itemID).Scan(&exists)
	return exists, err
}

func (r *txRepo) GetLineForUpdate(ctx context.Context, lineID int64) (Line, error) {
	var l Line
	err := r.tx.QueryRow(ctx, `SELECT id, mto_id, item_id, quantity, quantity_ordered, quantity_ordered_po, notes, created_at, deleted_at
FROM mto_lines WHERE id = $1 FOR UPDATE`, lineID).
		Scan(&l.ID, &l.MTOID, &l.ItemID, &l.Quantity, &l.QuantityOrdered, &l.QuantityOrderedPO, &l.Notes, &l.CreatedAt, &l.DeletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Line{}, shared.NotFoundf("mto line %d", lineID)
	}
	return l, err
}

func (r *txRepo) SetMTODeleted(ctx context.Context, id int64, deletedAt *time.Time, at time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE materials_to_order SET deleted_at = $2, updated_at = $3 WHERE id = $1`, id, deletedAt, at)
	return err
}

func (r *txRepo) SetLineDeleted(ctx context.Context, id int64, deletedAt *time.Time, at time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE mto_lines SET deleted_at = $2, updated_at = $3 WHERE id = $1`, id, deletedAt, at)
	return err
}
