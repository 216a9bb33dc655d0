package planning

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/cabinetworks/mto/internal/mto"
)

// UnassignedSupplier names the bucket for items without a supplier.
const UnassignedSupplier = "Unassigned"

// DemandLine is one active MTO line as seen by the cumulative view.
type DemandLine struct {
	MTOID             int64
	MTOStatus         mto.Status
	ProjectName       string
	LineID            int64
	ItemID            int64
	ItemName          string
	SupplierID        *int64
	SupplierName      string
	Quantity          decimal.Decimal
	QuantityOrderedPO decimal.Decimal
	ReservationCount  int
}

// SourceTrace records one line's contribution to an item total.
type SourceTrace struct {
	MTOID       int64           `json:"mto_id"`
	MTOLineID   int64           `json:"mto_line_id"`
	ProjectName string          `json:"project_name"`
	Quantity    decimal.Decimal `json:"quantity"`
}

// ItemDemand is the outstanding quantity of one item.
type ItemDemand struct {
	ItemID   int64           `json:"item_id"`
	ItemName string          `json:"item_name"`
	Quantity decimal.Decimal `json:"quantity"`
	Sources  []SourceTrace   `json:"sources"`
}

// SupplierDemand groups outstanding demand by supplier.
type SupplierDemand struct {
	SupplierID   *int64          `json:"supplier_id"`
	SupplierName string          `json:"supplier_name"`
	Quantity     decimal.Decimal `json:"quantity"`
	Items        []ItemDemand    `json:"items"`
}

// SnapshotLine is a line of a fully ordered MTO.
type SnapshotLine struct {
	LineID           int64           `json:"mto_line_id"`
	ItemID           int64           `json:"item_id"`
	ItemName         string          `json:"item_name"`
	SupplierName     string          `json:"supplier_name"`
	Quantity         decimal.Decimal `json:"quantity"`
	ReservationCount int             `json:"reservation_count"`
	ReceivedPOItems  int             `json:"received_po_items"`
}

// Received reports whether the line is backed by stock or a received order.
func (l SnapshotLine) Received() bool {
	return l.ReservationCount > 0 || l.ReceivedPOItems > 0
}

// MTOSnapshot is an MTO with its live lines.
type MTOSnapshot struct {
	MTOID       int64          `json:"mto_id"`
	ProjectName string         `json:"project_name"`
	Status      mto.Status     `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	Lines       []SnapshotLine `json:"lines"`
}

// Stats are derived from the line set on every read.
type Stats struct {
	TotalItems    int             `json:"total_items"`
	TotalQuantity decimal.Decimal `json:"total_quantity"`
	ReceivedItems int             `json:"received_items"`
	PendingItems  int             `json:"pending_items"`
	SupplierItems map[string]int  `json:"supplier_items"`
}

// ClassifiedMTO is an MTO with its statistics.
type ClassifiedMTO struct {
	MTOSnapshot
	Stats Stats `json:"stats"`
}

// UsedMaterials splits fully ordered MTOs by material availability.
type UsedMaterials struct {
	ReadyToUse []ClassifiedMTO `json:"ready_to_use"`
	Upcoming   []ClassifiedMTO `json:"upcoming"`
}

// Overview bundles both planning views.
type Overview struct {
	Cumulative    []SupplierDemand `json:"cumulative"`
	UsedMaterials UsedMaterials    `json:"used_materials"`
}
