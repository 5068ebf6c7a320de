package ingest

import (
	"strings"

	"github.com/PratikDhanave/product-importer/internal/models"
)

// FoldSKU is the case-folded natural key used for uniqueness.
func FoldSKU(sku string) string {
	return strings.ToLower(sku)
}

// Dedupe collapses candidates sharing a case-folded SKU, the later one in
// input order winning. A single INSERT ... ON CONFLICT DO UPDATE cannot touch
// the same row twice, so every key must appear at most once per batch.
func Dedupe(items []models.ProductInput) map[string]models.ProductInput {
	out := make(map[string]models.ProductInput, len(items))
	for _, it := range items {
		out[FoldSKU(it.SKU)] = it
	}
	return out
}

// Batch flattens a deduplicated map for the storage collaborator. Order is
// unspecified.
func Batch(m map[string]models.ProductInput) []models.ProductInput {
	out := make([]models.ProductInput, 0, len(m))
	for _, it := range m {
		out = append(out, it)
	}
	return out
}
