package store

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/PratikDhanave/product-importer/internal/models"
)

const webhookColumns = `id, url, event_type, enabled, created_at, updated_at`

// ListEnabledSubscriptions returns every enabled subscription for eventType.
func (p *PostgresStore) ListEnabledSubscriptions(ctx context.Context, eventType string) ([]models.WebhookSubscription, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+webhookColumns+` FROM webhooks WHERE enabled AND event_type = $1 ORDER BY id`, eventType)
	if err != nil {
		return nil, errors.Wrap(err, "list enabled webhooks")
	}
	return collectWebhooks(rows)
}

func (p *PostgresStore) ListWebhooks(ctx context.Context) ([]models.WebhookSubscription, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+webhookColumns+` FROM webhooks ORDER BY id`)
	if err != nil {
		return nil, errors.Wrap(err, "list webhooks")
	}
	return collectWebhooks(rows)
}

func (p *PostgresStore) GetWebhook(ctx context.Context, id int64) (models.WebhookSubscription, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+webhookColumns+` FROM webhooks WHERE id = $1`, id)
	w, err := scanWebhook(row)
	return w, mapError(err)
}

func (p *PostgresStore) CreateWebhook(ctx context.Context, w models.WebhookSubscription) (models.WebhookSubscription, error) {
	row := p.pool.QueryRow(ctx, `
		INSERT INTO webhooks (url, event_type, enabled) VALUES ($1, $2, $3)
		RETURNING `+webhookColumns, w.URL, w.EventType, w.Enabled)
	out, err := scanWebhook(row)
	if err != nil {
		return out, errors.Wrap(err, "create webhook")
	}
	return out, nil
}

// UpdateWebhook overwrites url, event type and enabled flag of w.ID.
func (p *PostgresStore) UpdateWebhook(ctx context.Context, w models.WebhookSubscription) (models.WebhookSubscription, error) {
	row := p.pool.QueryRow(ctx, `
		UPDATE webhooks SET url = $2, event_type = $3, enabled = $4, updated_at = now()
		WHERE id = $1
		RETURNING `+webhookColumns, w.ID, w.URL, w.EventType, w.Enabled)
	out, err := scanWebhook(row)
	return out, mapError(err)
}

func (p *PostgresStore) DeleteWebhook(ctx context.Context, id int64) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM webhooks WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "delete webhook")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func collectWebhooks(rows pgx.Rows) ([]models.WebhookSubscription, error) {
	defer rows.Close()
	out := []models.WebhookSubscription{}
	for rows.Next() {
		w, err := scanWebhook(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan webhook")
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate webhooks")
	}
	return out, nil
}

func scanWebhook(row rowScanner) (models.WebhookSubscription, error) {
	var w models.WebhookSubscription
	err := row.Scan(&w.ID, &w.URL, &w.EventType, &w.Enabled, &w.CreatedAt, &w.UpdatedAt)
	return w, err
}
