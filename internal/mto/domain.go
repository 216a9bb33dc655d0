package mto

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the aggregate fulfilment state of an MTO.
type Status string

const (
	// StatusDraft means no line is covered yet.
	StatusDraft Status = "DRAFT"
	// StatusPartiallyOrdered means some but not all lines are covered.
	StatusPartiallyOrdered Status = "PARTIALLY_ORDERED"
	// StatusFullyOrdered means every line is covered.
	StatusFullyOrdered Status = "FULLY_ORDERED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPartiallyOrdered, StatusFullyOrdered:
		return true
	}
	return false
}

// Open reports whether the MTO still has outstanding demand.
func (s Status) Open() bool {
	return s == StatusDraft || s == StatusPartiallyOrdered
}

// MTO is a materials-to-order request.
type MTO struct {
	ID          int64      `json:"id"`
	ProjectID   *int64     `json:"project_id,omitempty"`
	ProjectName string     `json:"project_name,omitempty"`
	Status      Status     `json:"status"`
	Notes       string     `json:"notes,omitempty"`
	CreatedBy   int64      `json:"created_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
	LotIDs      []int64    `json:"lot_ids,omitempty"`
}

// Deleted reports whether the MTO is soft-deleted.
func (m MTO) Deleted() bool { return m.DeletedAt != nil }

// Line is one requested quantity of one item.
type Line struct {
	ID                int64           `json:"id"`
	MTOID             int64           `json:"mto_id"`
	ItemID            int64           `json:"item_id"`
	Quantity          decimal.Decimal `json:"quantity"`
	QuantityOrdered   int64           `json:"quantity_ordered"`
	QuantityOrderedPO decimal.Decimal `json:"quantity_ordered_po"`
	Notes             string          `json:"notes,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	DeletedAt         *time.Time      `json:"deleted_at,omitempty"`
}

// Deleted reports whether the line is soft-deleted.
func (l Line) Deleted() bool { return l.DeletedAt != nil }

// Remaining is the demand not yet met by received purchase orders.
func (l Line) Remaining() decimal.Decimal {
	rem := l.Quantity.Sub(l.QuantityOrderedPO)
	if rem.IsNegative() {
		return decimal.Zero
	}
	return rem
}

// LineDetail is a line enriched with its item and reservation totals.
type LineDetail struct {
	Line
	ItemName         string          `json:"item_name"`
	SupplierName     string          `json:"supplier_name,omitempty"`
	ReservedQuantity decimal.Decimal `json:"reserved_quantity"`
	ReservationCount int             `json:"reservation_count"`
	Covered          bool            `json:"covered"`
}

// Coverage extracts the fields the status resolver reads.
func (d LineDetail) Coverage() LineCoverage {
	return LineCoverage{
		LineID:            d.ID,
		QuantityOrdered:   d.QuantityOrdered,
		QuantityOrderedPO: d.QuantityOrderedPO,
		ReservationCount:  d.ReservationCount,
	}
}

// LineCoverage is the fulfilment evidence of one line.
type LineCoverage struct {
	LineID            int64
	QuantityOrdered   int64
	QuantityOrderedPO decimal.Decimal
	ReservationCount  int
}

// Detail is an MTO with its lines.
type Detail struct {
	MTO
	Lines []LineDetail `json:"lines"`
}

// LineInput describes a requested line.
type LineInput struct {
	ItemID   int64           `json:"item_id" validate:"required,gt=0"`
	Quantity decimal.Decimal `json:"quantity"`
	Notes    string          `json:"notes" validate:"max=500"`
}

// CreateInput describes a new MTO.
type CreateInput struct {
	ProjectID *int64
	Notes     string
	LotIDs    []int64
	Lines     []LineInput
	ActorID   int64
}

// ListFilter narrows MTO listings.
type ListFilter struct {
	Status         Status
	ProjectID      int64
	IncludeDeleted bool
	Limit          int
	Offset         int
}

// LineChange reports a line mutation and the status recomputed after it.
type LineChange struct {
	Line          Line   `json:"line"`
	Status        Status `json:"status,omitempty"`
	StatusChanged bool   `json:"status_changed"`
}
