package planning

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"
)

var cumulativeHeader = []string{"Supplier", "Item ID", "Item", "Quantity", "Sources"}

// WriteCumulativeCSV emits one row per supplier item. Sources lists the
// contributing lines as mto_id/line_id:quantity.
func WriteCumulativeCSV(w io.Writer, demand []SupplierDemand) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()
	if err := writer.Write(cumulativeHeader); err != nil {
		return err
	}
	for _, supplier := range demand {
		for _, item := range supplier.Items {
			if err := writer.Write([]string{
				supplier.SupplierName,
				strconv.FormatInt(item.ItemID, 10),
				item.ItemName,
				item.Quantity.String(),
				formatSources(item.Sources),
			}); err != nil {
				return err
			}
		}
	}
	writer.Flush()
	return writer.Error()
}

func formatSources(sources []SourceTrace) string {
	parts := make([]string, 0, len(sources))
	for _, src := range sources {
		parts = append(parts, strconv.FormatInt(src.MTOID, 10)+"/"+strconv.FormatInt(src.MTOLineID, 10)+":"+src.Quantity.String())
	}
	return strings.Join(parts, " ")
}
