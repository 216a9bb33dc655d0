package ledger

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cabinetworks/mto/internal/shared"
)

// TransactionType enumerates supported stock movements.
type TransactionType string

const (
	// TransactionAdded increases on-hand stock.
	TransactionAdded TransactionType = "ADDED"
	// TransactionWasted writes stock off after a count or damage.
	TransactionWasted TransactionType = "WASTED"
	// TransactionReserved moves stock into a reservation.
	TransactionReserved TransactionType = "RESERVED"
)

// Valid reports whether t is a known movement type.
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionAdded, TransactionWasted, TransactionReserved:
		return true
	}
	return false
}

// Inbound reports whether the movement increases stock.
func (t TransactionType) Inbound() bool {
	return t == TransactionAdded
}

// Item is an inventory item with its current on-hand quantity.
type Item struct {
	ID           int64           `json:"id"`
	Code         string          `json:"code"`
	Name         string          `json:"name"`
	Category     string          `json:"category"`
	Quantity     decimal.Decimal `json:"quantity"`
	SupplierID   *int64          `json:"supplier_id,omitempty"`
	SupplierName string          `json:"supplier_name,omitempty"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// StockTransaction is an append-only record of one quantity change.
// Quantity is always the absolute magnitude of the change.
type StockTransaction struct {
	ID        int64           `json:"id"`
	ItemID    int64           `json:"item_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	Type      TransactionType `json:"type"`
	Notes     string          `json:"notes,omitempty"`
	CreatedBy int64           `json:"created_by,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// DeltaInput describes a signed change to an item's quantity.
type DeltaInput struct {
	ItemID   int64
	Quantity decimal.Decimal
	Type     TransactionType
	Notes    string
	ActorID  int64
}

// DeltaResult is returned after a delta is applied.
type DeltaResult struct {
	ItemID      int64            `json:"item_id"`
	OldQuantity decimal.Decimal  `json:"old_quantity"`
	NewQuantity decimal.Decimal  `json:"new_quantity"`
	Transaction StockTransaction `json:"transaction"`
}

// TallyEntry is one physical count in a stock-tally batch.
type TallyEntry struct {
	ItemID      int64           `json:"item_id"`
	NewQuantity decimal.Decimal `json:"quantity"`
}

// TallyInput is a stock-tally batch.
type TallyInput struct {
	Entries []TallyEntry
	Notes   string
	ActorID int64
}

// Tally outcomes reported per entry.
const (
	TallyUpdated   = "updated"
	TallyUnchanged = "unchanged"
	TallyFailed    = "failed"
)

// TallyResult reports what happened to one entry.
type TallyResult struct {
	ItemID      int64            `json:"item_id"`
	Outcome     string           `json:"outcome"`
	OldQuantity *decimal.Decimal `json:"old_quantity,omitempty"`
	NewQuantity *decimal.Decimal `json:"new_quantity,omitempty"`
	Type        TransactionType  `json:"type,omitempty"`
	Magnitude   *decimal.Decimal `json:"magnitude,omitempty"`
	ErrorCode   string           `json:"error_code,omitempty"`
	Error       string           `json:"error,omitempty"`

	err error
}

// Err returns the underlying failure for failed entries.
func (r TallyResult) Err() error {
	return r.err
}

// TallyReport is the per-item breakdown of a batch.
type TallyReport struct {
	BatchID   string          `json:"batch_id"`
	Results   []TallyResult   `json:"results"`
	Updated   int             `json:"updated"`
	Unchanged int             `json:"unchanged"`
	Failed    int             `json:"failed"`
	Warnings  shared.Warnings `json:"warnings,omitempty"`
}

// ItemFilter narrows item listings.
type ItemFilter struct {
	Category   string
	SupplierID int64
	Search     string
	Limit      int
	Offset     int
}

// ErrMalformedTally is returned when a tally file cannot be parsed.
var ErrMalformedTally = errors.New("ledger: malformed tally file")
