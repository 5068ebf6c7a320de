package store

import (
	"context"
	"embed"
	"io/fs"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// migrationsFS is embedded so every binary can migrate its own database.
//
//go:embed migrations/*.sql
var migrationsFS embed.FS

var (
	// ErrNotFound is returned when a looked-up row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateSKU is returned when a SKU collides case-insensitively.
	ErrDuplicateSKU = errors.New("duplicate sku")
)

const skuIndex = "idx_sku_lower"

// PostgresStore is the durable persistence layer for the catalog, import
// tasks and webhook subscriptions.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a connection pool and fails fast if DB is unreachable.
func NewPostgresStore(ctx context.Context, dbURL string) (*PostgresStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, errors.Wrap(err, "create pool")
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "ping database")
	}

	return &PostgresStore{pool: pool}, nil
}

// Migrate applies ("up") or rolls back one step of ("down") the embedded
// migrations.
func (p *PostgresStore) Migrate(ctx context.Context, direction string) error {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return errors.Wrap(err, "migrations fs")
	}
	db := stdlib.OpenDBFromPool(p.pool)
	defer db.Close()

	provider, err := goose.NewProvider(goose.DialectPostgres, db, sub)
	if err != nil {
		return errors.Wrap(err, "goose provider")
	}

	switch direction {
	case "up", "":
		_, err = provider.Up(ctx)
	case "down":
		_, err = provider.Down(ctx)
	default:
		return errors.Errorf("unknown migration direction %q", direction)
	}
	if err != nil {
		return errors.Wrapf(err, "migrate %s", direction)
	}
	return nil
}

// EnsureSchema applies all pending migrations. Safe to run multiple times.
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	return p.Migrate(ctx, "up")
}

// Ping is used by readiness endpoint to validate DB connectivity.
func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close shuts down the connection pool.
func (p *PostgresStore) Close() {
	p.pool.Close()
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == skuIndex {
		return errors.Wrap(ErrDuplicateSKU, pgErr.Detail)
	}
	return err
}
