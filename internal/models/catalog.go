package models

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Prices are rendered as JSON numbers, not quoted strings.
	decimal.MarshalJSONWithoutQuotes = true
}

// Product is one catalog entry. SKU is unique case-insensitively; the
// identifier is assigned by the store and never changes.
type Product struct {
	ID          int64           `json:"id"`
	SKU         string          `json:"sku"`
	Name        string          `json:"name"`
	Description *string         `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Active      bool            `json:"active"`
	CreatedAt   *time.Time      `json:"created_at"`
	UpdatedAt   *time.Time      `json:"updated_at"`
}

// ProductInput is a validated candidate row ready for the bulk upsert.
type ProductInput struct {
	SKU         string
	Name        string
	Description *string
	Price       decimal.Decimal
	Active      bool
}

// ProductCreateRequest is the POST /api/products payload.
type ProductCreateRequest struct {
	SKU         string           `json:"sku" binding:"required"`
	Name        string           `json:"name" binding:"required"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price" binding:"required"`
	Active      *bool            `json:"active"`
}

// ProductUpdateRequest is the PUT /api/products/:id payload.
// Nil fields are left untouched.
type ProductUpdateRequest struct {
	SKU         *string          `json:"sku"`
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	Active      *bool            `json:"active"`
}

// ProductFilter narrows GET /api/products. String filters are
// case-insensitive substring matches.
type ProductFilter struct {
	SKU    string
	Name   string
	Search string
	Active *bool
	Skip   int
	Limit  int
}

// ProductPage is one page of the product listing.
type ProductPage struct {
	Total    int64     `json:"total"`
	Skip     int       `json:"skip"`
	Limit    int       `json:"limit"`
	Products []Product `json:"products"`
}
