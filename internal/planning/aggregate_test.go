package planning

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/cabinetworks/mto/internal/mto"
)

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func supplier(id int64) *int64 { return &id }

func TestBuildCumulativeGroupsAndDeduplicates(t *testing.T) {
	lines := []DemandLine{
		{MTOID: 1, MTOStatus: mto.StatusDraft, ProjectName: "Kitchen A", LineID: 11, ItemID: 100, ItemName: "Hinge", SupplierID: supplier(2), SupplierName: "blum", Quantity: dec("10"), QuantityOrderedPO: dec("4")},
		{MTOID: 2, MTOStatus: mto.StatusPartiallyOrdered, ProjectName: "Bath B", LineID: 21, ItemID: 100, ItemName: "Hinge", SupplierID: supplier(2), SupplierName: "blum", Quantity: dec("3")},
		{MTOID: 2, MTOStatus: mto.StatusPartiallyOrdered, ProjectName: "Bath B", LineID: 22, ItemID: 101, ItemName: "Drawer slide", SupplierID: supplier(2), SupplierName: "blum", Quantity: dec("2")},
		{MTOID: 1, MTOStatus: mto.StatusDraft, ProjectName: "Kitchen A", LineID: 12, ItemID: 200, ItemName: "Panel", SupplierID: supplier(1), SupplierName: "Avery", Quantity: dec("1.5")},
		{MTOID: 1, MTOStatus: mto.StatusDraft, ProjectName: "Kitchen A", LineID: 13, ItemID: 300, ItemName: "Glue", Quantity: dec("2")},
	}

	out := BuildCumulative(lines)
	require.Len(t, out, 3)
	require.Equal(t, "Avery", out[0].SupplierName)
	require.Equal(t, "blum", out[1].SupplierName)
	require.Equal(t, UnassignedSupplier, out[2].SupplierName)
	require.Nil(t, out[2].SupplierID)

	blum := out[1]
	require.Len(t, blum.Items, 2)
	require.Equal(t, "Drawer slide", blum.Items[0].ItemName)
	hinge := blum.Items[1]
	require.Equal(t, int64(100), hinge.ItemID)
	require.True(t, hinge.Quantity.Equal(dec("9")), hinge.Quantity.String())
	require.Len(t, hinge.Sources, 2)
	require.Equal(t, int64(11), hinge.Sources[0].MTOLineID)
	require.Equal(t, "Kitchen A", hinge.Sources[0].ProjectName)
	require.True(t, hinge.Sources[0].Quantity.Equal(dec("6")))
	require.Equal(t, int64(2), hinge.Sources[1].MTOID)
	require.True(t, hinge.Sources[1].Quantity.Equal(dec("3")))
	require.True(t, blum.Quantity.Equal(dec("11")))
}

func TestBuildCumulativeExcludesReservedLines(t *testing.T) {
	line := DemandLine{MTOID: 1, MTOStatus: mto.StatusDraft, LineID: 11, ItemID: 100, ItemName: "Hinge", Quantity: dec("10")}
	require.Len(t, BuildCumulative([]DemandLine{line}), 1)

	line.ReservationCount = 1
	require.Empty(t, BuildCumulative([]DemandLine{line}))
}

func TestBuildCumulativeSkipsCoveredAndClosed(t *testing.T) {
	lines := []DemandLine{
		{MTOID: 1, MTOStatus: mto.StatusDraft, LineID: 11, ItemID: 100, Quantity: dec("5"), QuantityOrderedPO: dec("5")},
		{MTOID: 1, MTOStatus: mto.StatusDraft, LineID: 12, ItemID: 101, Quantity: dec("5"), QuantityOrderedPO: dec("8")},
		{MTOID: 2, MTOStatus: mto.StatusFullyOrdered, LineID: 21, ItemID: 102, Quantity: dec("5")},
	}
	require.Empty(t, BuildCumulative(lines))
}

func TestBuildCumulativeEmptyInput(t *testing.T) {
	out := BuildCumulative(nil)
	require.NotNil(t, out)
	require.Empty(t, out)
}

func TestClassifySplitsReadyAndUpcoming(t *testing.T) {
	snaps := []MTOSnapshot{
		{MTOID: 1, Status: mto.StatusFullyOrdered, Lines: []SnapshotLine{
			{LineID: 11, SupplierName: "Blum", Quantity: dec("2"), ReservationCount: 1},
			{LineID: 12, SupplierName: "Blum", Quantity: dec("3"), ReceivedPOItems: 1},
		}},
		{MTOID: 2, Status: mto.StatusFullyOrdered, Lines: []SnapshotLine{
			{LineID: 21, SupplierName: "Blum", Quantity: dec("1"), ReservationCount: 2},
			{LineID: 22, Quantity: dec("4.5")},
		}},
		{MTOID: 3, Status: mto.StatusPartiallyOrdered, Lines: []SnapshotLine{{LineID: 31, Quantity: dec("1"), ReservationCount: 1}}},
	}

	used := Classify(snaps)
	require.Len(t, used.ReadyToUse, 1)
	require.Equal(t, int64(1), used.ReadyToUse[0].MTOID)
	require.Equal(t, 2, used.ReadyToUse[0].Stats.ReceivedItems)

	require.Len(t, used.Upcoming, 1)
	stats := used.Upcoming[0].Stats
	require.Equal(t, 2, stats.TotalItems)
	require.True(t, stats.TotalQuantity.Equal(dec("5.5")))
	require.Equal(t, 1, stats.ReceivedItems)
	require.Equal(t, 1, stats.PendingItems)
	require.Equal(t, map[string]int{"Blum": 1, UnassignedSupplier: 1}, stats.SupplierItems)
}
