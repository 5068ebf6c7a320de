package store

import (
	"context"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/PratikDhanave/product-importer/internal/models"
)

const productColumns = `id, sku, name, description, price::text, active, created_at, updated_at`

// UpsertBatch inserts or overwrites every item in one statement. Items must
// already be unique by lower(sku); the conflict target matches idx_sku_lower
// so keys differing only in case land on the same row.
func (p *PostgresStore) UpsertBatch(ctx context.Context, items []models.ProductInput) error {
	if len(items) == 0 {
		return nil
	}

	skus := make([]string, len(items))
	names := make([]string, len(items))
	descs := make([]*string, len(items))
	prices := make([]string, len(items))
	actives := make([]bool, len(items))
	for i, it := range items {
		skus[i] = it.SKU
		names[i] = it.Name
		descs[i] = it.Description
		prices[i] = it.Price.String()
		actives[i] = it.Active
	}

	_, err := p.pool.Exec(ctx, `
		INSERT INTO products (sku, name, description, price, active)
		SELECT * FROM unnest($1::text[], $2::text[], $3::text[], $4::numeric[], $5::bool[])
		ON CONFLICT (lower(sku)) DO UPDATE SET
			name        = EXCLUDED.name,
			description = EXCLUDED.description,
			price       = EXCLUDED.price,
			active      = EXCLUDED.active,
			updated_at  = now()
	`, skus, names, descs, prices, actives)
	if err != nil {
		return errors.Wrap(err, "bulk upsert")
	}
	return nil
}

// ListProducts returns one page, newest first.
func (p *PostgresStore) ListProducts(ctx context.Context, f models.ProductFilter) (models.ProductPage, error) {
	where, args := productWhere(f)

	page := models.ProductPage{Skip: f.Skip, Limit: f.Limit, Products: []models.Product{}}
	if err := p.pool.QueryRow(ctx, `SELECT count(*) FROM products`+where, args...).Scan(&page.Total); err != nil {
		return page, errors.Wrap(err, "count products")
	}

	args = append(args, f.Limit, f.Skip)
	q := `SELECT ` + productColumns + ` FROM products` + where +
		` ORDER BY id DESC LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))
	rows, err := p.pool.Query(ctx, q, args...)
	if err != nil {
		return page, errors.Wrap(err, "list products")
	}
	defer rows.Close()

	for rows.Next() {
		pr, err := scanProduct(rows)
		if err != nil {
			return page, err
		}
		page.Products = append(page.Products, pr)
	}
	if err := rows.Err(); err != nil {
		return page, errors.Wrap(err, "iterate products")
	}
	return page, nil
}

func productWhere(f models.ProductFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, strings.ReplaceAll(cond, "?", "$"+strconv.Itoa(len(args))))
	}
	if f.SKU != "" {
		add(`sku ILIKE ? ESCAPE '\'`, containsPattern(f.SKU))
	}
	if f.Name != "" {
		add(`name ILIKE ? ESCAPE '\'`, containsPattern(f.Name))
	}
	if f.Active != nil {
		add("active = ?", *f.Active)
	}
	if f.Search != "" {
		add(`(sku ILIKE ? ESCAPE '\' OR name ILIKE ? ESCAPE '\' OR description ILIKE ? ESCAPE '\')`, containsPattern(f.Search))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern matches s literally anywhere in the column.
func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

func (p *PostgresStore) GetProduct(ctx context.Context, id int64) (models.Product, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	pr, err := scanProduct(row)
	return pr, mapError(err)
}

// SKUExists reports whether sku is taken case-insensitively by a row other
// than exceptID (0 matches no row).
func (p *PostgresStore) SKUExists(ctx context.Context, sku string, exceptID int64) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM products WHERE lower(sku) = lower($1) AND id <> $2)`,
		sku, exceptID,
	).Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, "check sku")
	}
	return exists, nil
}

func (p *PostgresStore) CreateProduct(ctx context.Context, in models.ProductInput) (models.Product, error) {
	row := p.pool.QueryRow(ctx, `
		INSERT INTO products (sku, name, description, price, active)
		VALUES ($1, $2, $3, $4::numeric, $5)
		RETURNING `+productColumns,
		in.SKU, in.Name, in.Description, in.Price.String(), in.Active,
	)
	pr, err := scanProduct(row)
	return pr, mapError(err)
}

// UpdateProduct overwrites every mutable column of id.
func (p *PostgresStore) UpdateProduct(ctx context.Context, id int64, in models.ProductInput) (models.Product, error) {
	row := p.pool.QueryRow(ctx, `
		UPDATE products
		SET sku = $2, name = $3, description = $4, price = $5::numeric, active = $6, updated_at = now()
		WHERE id = $1
		RETURNING `+productColumns,
		id, in.SKU, in.Name, in.Description, in.Price.String(), in.Active,
	)
	pr, err := scanProduct(row)
	return pr, mapError(err)
}

// DeleteProduct removes id and returns the deleted row.
func (p *PostgresStore) DeleteProduct(ctx context.Context, id int64) (models.Product, error) {
	row := p.pool.QueryRow(ctx, `DELETE FROM products WHERE id = $1 RETURNING `+productColumns, id)
	pr, err := scanProduct(row)
	return pr, mapError(err)
}

// DeleteAllProducts empties the catalog and returns how many rows went.
func (p *PostgresStore) DeleteAllProducts(ctx context.Context) (int64, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM products`)
	if err != nil {
		return 0, errors.Wrap(err, "delete products")
	}
	return tag.RowsAffected(), nil
}

func scanProduct(row pgx.Row) (models.Product, error) {
	var (
		pr    models.Product
		price string
	)
	if err := row.Scan(&pr.ID, &pr.SKU, &pr.Name, &pr.Description, &price, &pr.Active, &pr.CreatedAt, &pr.UpdatedAt); err != nil {
		return pr, err
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return pr, errors.Wrapf(err, "parse price %q", price)
	}
	pr.Price = d
	return pr, nil
}
