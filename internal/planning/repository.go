package planning

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cabinetworks/mto/internal/mto"
)

// Repository reads planning snapshots from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func statusStrings(statuses []mto.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// DemandLines returns live lines of live MTOs in the given statuses.
func (r *Repository) DemandLines(ctx context.Context, statuses ...mto.Status) ([]DemandLine, error) {
	rows, err := r.pool.Query(ctx, `SELECT m.id, m.status, COALESCE(p.name, ''), l.id, i.id, i.name, i.supplier_id, COALESCE(s.name, ''),
       l.quantity, l.quantity_ordered_po,
       (SELECT COUNT(*) FROM reservations r WHERE r.mto_line_id = l.id)
FROM mto_lines l
JOIN materials_to_order m ON m.id = l.mto_id
LEFT JOIN projects p ON p.id = m.project_id
JOIN items i ON i.id = l.item_id
LEFT JOIN suppliers s ON s.id = i.supplier_id
WHERE l.deleted_at IS NULL AND m.deleted_at IS NULL AND m.status = ANY($1)
ORDER BY m.id, l.id`, statusStrings(statuses))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []DemandLine
	for rows.Next() {
		var d DemandLine
		if err := rows.Scan(&d.MTOID, &d.MTOStatus, &d.ProjectName, &d.LineID, &d.ItemID, &d.ItemName, &d.SupplierID, &d.SupplierName,
			&d.Quantity, &d.QuantityOrderedPO, &d.ReservationCount); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Snapshots returns live MTOs in status with their live lines.
func (r *Repository) Snapshots(ctx context.Context, status mto.Status) ([]MTOSnapshot, error) {
	rows, err := r.pool.Query(ctx, `SELECT m.id, COALESCE(p.name, ''), m.status, m.created_at,
       l.id, i.id, i.name, COALESCE(s.name, ''), l.quantity,
       (SELECT COUNT(*) FROM reservations r WHERE r.mto_line_id = l.id),
       (SELECT COUNT(*) FROM ordered_items oi JOIN purchase_orders po ON po.id = oi.purchase_order_id
         WHERE oi.mto_line_id = l.id AND po.status = 'RECEIVED')
FROM materials_to_order m
LEFT JOIN projects p ON p.id = m.project_id
JOIN mto_lines l ON l.mto_id = m.id AND l.deleted_at IS NULL
JOIN items i ON i.id = l.item_id
LEFT JOIN suppliers s ON s.id = i.supplier_id
WHERE m.deleted_at IS NULL AND m.status = $1
ORDER BY m.created_at DESC, m.id DESC, l.id`, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []MTOSnapshot
	for rows.Next() {
		var (
			snap MTOSnapshot
			line SnapshotLine
		)
		if err := rows.Scan(&snap.MTOID, &snap.ProjectName, &snap.Status, &snap.CreatedAt,
			&line.LineID, &line.ItemID, &line.ItemName, &line.SupplierName, &line.Quantity,
			&line.ReservationCount, &line.ReceivedPOItems); err != nil {
			return nil, err
		}
		if n := len(out); n > 0 && out[n-1].MTOID == snap.MTOID {
			out[n-1].Lines = append(out[n-1].Lines, line)
			continue
		}
		snap.Lines = []SnapshotLine{line}
		out = append(out, snap)
	}
	return out, rows.Err()
}
