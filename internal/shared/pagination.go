package shared

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Listing window bounds.
const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// Page is the limit/offset window of a listing request.
type Page struct {
	Limit  int
	Offset int
}

// ParsePage reads `limit` and `offset` from q. A missing limit defaults to
// DefaultPageSize and larger values are clamped to MaxPageSize.
func ParsePage(q url.Values) (Page, error) {
	page := Page{Limit: DefaultPageSize}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return Page{}, fmt.Errorf("limit must be a positive integer, got %q", raw)
		}
		page.Limit = min(n, MaxPageSize)
	}
	if raw := strings.TrimSpace(q.Get("offset")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return Page{}, fmt.Errorf("offset must be a non-negative integer, got %q", raw)
		}
		page.Offset = n
	}
	return page, nil
}
