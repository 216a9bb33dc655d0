package migrations

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNamesAreOrdered(t *testing.T) {
	names, err := Names()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	require.Equal(t, "0001_init.sql", names[0])
}

func TestSchemaGuardsQuantities(t *testing.T) {
	body, err := Files.ReadFile("0001_init.sql")
	require.NoError(t, err)
	schema := string(body)
	for _, want := range []string{
		"CHECK (quantity >= 0)",
		"CHECK (quantity > 0)",
		"CHECK (quantity_ordered >= 0)",
		"'PARTIALLY_ORDERED'",
		"CREATE TABLE IF NOT EXISTS idempotency_keys",
	} {
		require.True(t, strings.Contains(schema, want), want)
	}
}
