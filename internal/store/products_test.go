package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/PratikDhanave/product-importer/internal/models"
)

func TestContainsPattern_EscapesWildcards(t *testing.T) {
	require.Equal(t, `%abc%`, containsPattern("abc"))
	require.Equal(t, `%50\%\_off%`, containsPattern("50%_off"))
	require.Equal(t, `%a\\b%`, containsPattern(`a\b`))
}

func TestProductWhere(t *testing.T) {
	where, args := productWhere(models.ProductFilter{})
	require.Empty(t, where)
	require.Empty(t, args)

	active := true
	where, args = productWhere(models.ProductFilter{SKU: "a_1", Active: &active, Search: "100%"})
	require.Equal(t,
		` WHERE sku ILIKE $1 ESCAPE '\' AND active = $2 AND (sku ILIKE $3 ESCAPE '\' OR name ILIKE $3 ESCAPE '\' OR description ILIKE $3 ESCAPE '\')`,
		where)
	require.Equal(t, []any{`%a\_1%`, true, `%100\%%`}, args)
}
