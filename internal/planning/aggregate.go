package planning

import (
	"sort"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"

	"github.com/cabinetworks/mto/internal/mto"
)

var fold = cases.Fold()

func foldLess(a, b string) (less, equal bool) {
	fa, fb := fold.String(a), fold.String(b)
	return fa < fb, fa == fb
}

// BuildCumulative folds open MTO lines into outstanding demand per supplier.
// Lines with any reservation are treated as satisfied and skipped. Demand per
// line is the quantity not yet covered by received purchase orders.
func BuildCumulative(lines []DemandLine) []SupplierDemand {
	type supplierKey struct {
		id   int64
		none bool
	}
	suppliers := make(map[supplierKey]*SupplierDemand)
	itemIndex := make(map[supplierKey]map[int64]int)

	for _, line := range lines {
		if !line.MTOStatus.Open() || line.ReservationCount > 0 {
			continue
		}
		remaining := line.Quantity.Sub(line.QuantityOrderedPO)
		if !remaining.IsPositive() {
			continue
		}
		key := supplierKey{none: line.SupplierID == nil}
		if line.SupplierID != nil {
			key.id = *line.SupplierID
		}
		sd, ok := suppliers[key]
		if !ok {
			sd = &SupplierDemand{SupplierName: UnassignedSupplier, Quantity: decimal.Zero}
			if !key.none {
				id := key.id
				sd.SupplierID = &id
				sd.SupplierName = line.SupplierName
			}
			suppliers[key] = sd
			itemIndex[key] = make(map[int64]int)
		}
		trace := SourceTrace{MTOID: line.MTOID, MTOLineID: line.LineID, ProjectName: line.ProjectName, Quantity: remaining}
		idx, ok := itemIndex[key][line.ItemID]
		if !ok {
			sd.Items = append(sd.Items, ItemDemand{ItemID: line.ItemID, ItemName: line.ItemName, Quantity: decimal.Zero})
			idx = len(sd.Items) - 1
			itemIndex[key][line.ItemID] = idx
		}
		item := &sd.Items[idx]
		item.Quantity = item.Quantity.Add(remaining)
		item.Sources = append(item.Sources, trace)
		sd.Quantity = sd.Quantity.Add(remaining)
	}

	out := make([]SupplierDemand, 0, len(suppliers))
	for _, sd := range suppliers {
		sort.SliceStable(sd.Items, func(i, j int) bool {
			less, equal := foldLess(sd.Items[i].ItemName, sd.Items[j].ItemName)
			if equal {
				return sd.Items[i].ItemID < sd.Items[j].ItemID
			}
			return less
		})
		out = append(out, *sd)
	}
	sort.Slice(out, func(i, j int) bool {
		less, equal := foldLess(out[i].SupplierName, out[j].SupplierName)
		if !equal {
			return less
		}
		return supplierOrder(out[i].SupplierID) < supplierOrder(out[j].SupplierID)
	})
	return out
}

// unassigned sorts after a real supplier of the same name.
func supplierOrder(id *int64) int64 {
	if id == nil {
		return 1<<63 - 1
	}
	return *id
}

// Classify splits fully ordered MTOs into ready-to-use and upcoming and
// derives their statistics. Snapshots in any other status are ignored.
func Classify(snapshots []MTOSnapshot) UsedMaterials {
	out := UsedMaterials{ReadyToUse: []ClassifiedMTO{}, Upcoming: []ClassifiedMTO{}}
	for _, snap := range snapshots {
		if snap.Status != mto.StatusFullyOrdered {
			continue
		}
		c := ClassifiedMTO{MTOSnapshot: snap, Stats: ComputeStats(snap.Lines)}
		if c.Stats.PendingItems == 0 {
			out.ReadyToUse = append(out.ReadyToUse, c)
		} else {
			out.Upcoming = append(out.Upcoming, c)
		}
	}
	return out
}

// ComputeStats scans lines; nothing is read from stored counters.
func ComputeStats(lines []SnapshotLine) Stats {
	stats := Stats{TotalQuantity: decimal.Zero, SupplierItems: make(map[string]int)}
	for _, line := range lines {
		stats.TotalItems++
		stats.TotalQuantity = stats.TotalQuantity.Add(line.Quantity)
		if line.Received() {
			stats.ReceivedItems++
		} else {
			stats.PendingItems++
		}
		name := line.SupplierName
		if name == "" {
			name = UnassignedSupplier
		}
		stats.SupplierItems[name]++
	}
	return stats
}
