package reservation

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/cabinetworks/mto/internal/mto"
	"github.com/cabinetworks/mto/internal/shared"
)

// Reservation allocates on-hand stock to one MTO line. Quantity, item and
// line never change after creation; UsedQuantity is maintained by the
// production consumption flow.
type Reservation struct {
	ID           int64           `json:"id"`
	ItemID       int64           `json:"item_id"`
	MTOLineID    int64           `json:"mto_line_id"`
	Quantity     decimal.Decimal `json:"quantity"`
	UsedQuantity decimal.Decimal `json:"used_quantity"`
	Notes        string          `json:"notes,omitempty"`
	CreatedBy    int64           `json:"created_by,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// LineRef is the part of an MTO line the reservation path needs.
type LineRef struct {
	ID         int64
	MTOID      int64
	ItemID     int64
	Deleted    bool
	MTODeleted bool
}

// ReserveInput describes a reservation request.
type ReserveInput struct {
	ItemID         int64
	MTOLineID      int64
	Quantity       decimal.Decimal
	Notes          string
	ActorID        int64
	IdempotencyKey string
}

// ReserveResult is returned after a reservation commits.
type ReserveResult struct {
	Reservation   Reservation     `json:"reservation"`
	ItemQuantity  decimal.Decimal `json:"item_quantity"`
	MTOID         int64           `json:"mto_id"`
	Status        mto.Status      `json:"status,omitempty"`
	StatusChanged bool            `json:"status_changed"`
	Warnings      shared.Warnings `json:"warnings,omitempty"`
}

// Reservation outcomes reported to metrics.
const (
	OutcomeReserved          = "reserved"
	OutcomeInsufficientStock = "insufficient_stock"
	OutcomeRejected          = "rejected"
	OutcomeError             = "error"
)
