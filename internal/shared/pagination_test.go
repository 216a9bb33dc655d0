package shared

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParsePage(t *testing.T) {
	page, err := ParsePage(url.Values{})
	require.NoError(t, err)
	require.Equal(t, Page{Limit: DefaultPageSize}, page)

	page, err = ParsePage(url.Values{"limit": {"10"}, "offset": {"30"}})
	require.NoError(t, err)
	require.Equal(t, Page{Limit: 10, Offset: 30}, page)

	page, err = ParsePage(url.Values{"limit": {"100000"}})
	require.NoError(t, err)
	require.Equal(t, MaxPageSize, page.Limit)

	for _, q := range []url.Values{
		{"limit": {"0"}},
		{"limit": {"ten"}},
		{"offset": {"-1"}},
	} {
		_, err := ParsePage(q)
		require.Error(t, err, q.Encode())
	}
}
