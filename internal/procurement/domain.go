package procurement

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/cabinetworks/mto/internal/mto"
	"github.com/cabinetworks/mto/internal/shared"
)

// POStatus is the purchase order lifecycle status.
type POStatus string

const (
	POStatusDraft     POStatus = "DRAFT"
	POStatusOrdered   POStatus = "ORDERED"
	POStatusReceived  POStatus = "RECEIVED"
	POStatusCancelled POStatus = "CANCELLED"
)

// Open reports whether the order can still be ordered, received or cancelled.
func (s POStatus) Open() bool {
	return s == POStatusDraft || s == POStatusOrdered
}

// PurchaseOrder is a supplier-scoped order.
type PurchaseOrder struct {
	ID         int64      `json:"id"`
	Number     string     `json:"number"`
	SupplierID int64      `json:"supplier_id"`
	Status     POStatus   `json:"status"`
	Notes      string     `json:"notes,omitempty"`
	CreatedBy  int64      `json:"created_by,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	OrderedAt  *time.Time `json:"ordered_at,omitempty"`
	ReceivedAt *time.Time `json:"received_at,omitempty"`
}

// OrderedItem joins a purchase order to an MTO line.
type OrderedItem struct {
	ID              int64           `json:"id"`
	PurchaseOrderID int64           `json:"purchase_order_id"`
	MTOLineID       int64           `json:"mto_line_id"`
	Quantity        decimal.Decimal `json:"quantity"`
}

// PODetail is a purchase order with its items.
type PODetail struct {
	PurchaseOrder
	Items []OrderedItem `json:"items"`
}

// LineRef is the part of an MTO line the tracker reads and writes.
type LineRef struct {
	ID              int64
	MTOID           int64
	QuantityOrdered int64
	Deleted         bool
}

// POItemInput describes one ordered line.
type POItemInput struct {
	MTOLineID int64           `json:"mto_line_id" validate:"required,gt=0"`
	Quantity  decimal.Decimal `json:"quantity"`
}

// CreatePOInput describes a new purchase order.
type CreatePOInput struct {
	Number     string
	SupplierID int64
	Notes      string
	Items      []POItemInput
	ActorID    int64
}

// ListFilter narrows purchase order listings.
type ListFilter struct {
	Status     POStatus
	SupplierID int64
	Limit      int
	Offset     int
}

// MTOStatus is the outcome of re-resolving one affected MTO.
type MTOStatus struct {
	MTOID   int64      `json:"mto_id"`
	Status  mto.Status `json:"status,omitempty"`
	Changed bool       `json:"changed"`
}

// ReceiptResult is returned after a purchase order is received.
type ReceiptResult struct {
	PurchaseOrder PODetail        `json:"purchase_order"`
	MTOs          []MTOStatus     `json:"mtos"`
	Warnings      shared.Warnings `json:"warnings,omitempty"`
}

// QuantityOrderedResult is returned after the manual counter changes.
type QuantityOrderedResult struct {
	LineID          int64           `json:"line_id"`
	MTOID           int64           `json:"mto_id"`
	QuantityOrdered int64           `json:"quantity_ordered"`
	Status          mto.Status      `json:"status,omitempty"`
	StatusChanged   bool            `json:"status_changed"`
	Warnings        shared.Warnings `json:"warnings,omitempty"`
}
