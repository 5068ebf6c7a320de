// Package ingest turns a delimited product file into catalog upserts.
//
// One run is strictly linear: rows are read in order, buffered into chunks,
// and every chunk goes through Normalize, Dedupe and the bulk upsert before
// the next row is read.
package ingest

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/PratikDhanave/product-importer/internal/models"
)

// Recognized columns. Any other header is ignored.
const (
	ColumnSKU         = "sku"
	ColumnName        = "name"
	ColumnDescription = "description"
	ColumnPrice       = "price"
)

// Verdict classifies one source row.
type Verdict int

const (
	// Accept means the row produced a candidate for the upsert.
	Accept Verdict = iota
	// Skip means the row is counted as processed but not stored.
	Skip
)

// SkipReason says why a row was not accepted.
type SkipReason string

const (
	ReasonMissingSKU   SkipReason = "missing_sku"
	ReasonMissingName  SkipReason = "missing_name"
	ReasonMissingPrice SkipReason = "missing_price"
	ReasonBadPrice     SkipReason = "invalid_price"
	ReasonNegative     SkipReason = "negative_price"
)

// Result is the typed outcome of normalizing one row. Row defects are never
// errors; anything that should stop a run is reported by the reader instead.
type Result struct {
	Verdict Verdict
	Item    models.ProductInput
	Reason  SkipReason
}

// Normalize validates one raw row keyed by lower-cased column name.
func Normalize(row map[string]string) Result {
	sku := strings.TrimSpace(row[ColumnSKU])
	if sku == "" {
		return skip(ReasonMissingSKU)
	}
	name := strings.TrimSpace(row[ColumnName])
	if name == "" {
		return skip(ReasonMissingName)
	}

	rawPrice := strings.TrimSpace(row[ColumnPrice])
	if rawPrice == "" {
		return skip(ReasonMissingPrice)
	}
	price, err := decimal.NewFromString(rawPrice)
	if err != nil {
		return skip(ReasonBadPrice)
	}
	if price.IsNegative() {
		return skip(ReasonNegative)
	}

	var description *string
	if d := strings.TrimSpace(row[ColumnDescription]); d != "" {
		description = &d
	}

	return Result{
		Verdict: Accept,
		Item: models.ProductInput{
			SKU:         sku,
			Name:        name,
			Description: description,
			Price:       price,
			Active:      true,
		},
	}
}

func skip(reason SkipReason) Result {
	return Result{Verdict: Skip, Reason: reason}
}
