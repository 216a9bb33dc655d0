package planning

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestWriteCumulativeCSV(t *testing.T) {
	supplierID := int64(3)
	demand := []SupplierDemand{{
		SupplierID:   &supplierID,
		SupplierName: "Northwood Timber",
		Quantity:     decimal.NewFromInt(9),
		Items: []ItemDemand{{
			ItemID:   11,
			ItemName: "Birch plywood, 18mm",
			Quantity: decimal.NewFromInt(9),
			Sources: []SourceTrace{
				{MTOID: 1, MTOLineID: 4, Quantity: decimal.NewFromInt(5)},
				{MTOID: 2, MTOLineID: 8, Quantity: decimal.NewFromInt(4)},
			},
		}},
	}, {
		SupplierName: UnassignedSupplier,
	}}

	buf := &bytes.Buffer{}
	require.NoError(t, WriteCumulativeCSV(buf, demand))

	records, err := csv.NewReader(bytes.NewReader(buf.Bytes())).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, cumulativeHeader, records[0])
	require.Equal(t, []string{"Northwood Timber", "11", "Birch plywood, 18mm", "9", "1/4:5 2/8:4"}, records[1])
}
