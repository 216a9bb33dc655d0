package ledger

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var tallyHeader = []string{"item_id", "quantity"}

// ParseTallyCSV reads `item_id,quantity` rows. Structural problems fail the
// whole file; value problems such as a negative count are left to the batch
// so that they are reported per item.
func ParseTallyCSV(r io.Reader) ([]TallyEntry, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = len(tallyHeader)

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty file", ErrMalformedTally)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedTally, err)
	}
	if !validateHeader(header) {
		return nil, fmt.Errorf("%w: header mismatch, expected %v, got %v", ErrMalformedTally, tallyHeader, header)
	}

	var entries []TallyEntry
	for row := 2; ; row++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedTally, err)
		}
		itemID, err := strconv.ParseInt(strings.TrimSpace(record[0]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: invalid item_id %q", ErrMalformedTally, row, record[0])
		}
		qty, err := decimal.NewFromString(strings.TrimSpace(record[1]))
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: invalid quantity %q", ErrMalformedTally, row, record[1])
		}
		entries = append(entries, TallyEntry{ItemID: itemID, NewQuantity: qty})
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: no data rows", ErrMalformedTally)
	}
	return entries, nil
}

func validateHeader(header []string) bool {
	if len(header) != len(tallyHeader) {
		return false
	}
	for i, col := range header {
		col = strings.TrimPrefix(col, "\ufeff")
		if !strings.EqualFold(strings.TrimSpace(col), tallyHeader[i]) {
			return false
		}
	}
	return true
}
