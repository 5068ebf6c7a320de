package store

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/PratikDhanave/product-importer/internal/models"
)

const taskColumns = `id, filename, status, progress, total_rows, processed_rows, error_message, created_at, updated_at`

// CreateTask records an accepted upload in pending.
func (p *PostgresStore) CreateTask(ctx context.Context, id, filename string) (models.ImportTask, error) {
	row := p.pool.QueryRow(ctx, `
		INSERT INTO upload_tasks (id, filename, status)
		VALUES ($1, $2, 'pending')
		RETURNING `+taskColumns, id, filename)
	t, err := scanTask(row)
	if err != nil {
		return t, errors.Wrap(err, "create task")
	}
	return t, nil
}

// BeginTask moves the task to processing, creating it when the accepting
// side has not committed it yet. Terminal tasks are left alone and
// reported with started=false.
func (p *PostgresStore) BeginTask(ctx context.Context, id, filename string) (bool, error) {
	tag, err := p.pool.Exec(ctx, `
		INSERT INTO upload_tasks (id, filename, status)
		VALUES ($1, $2, 'processing')
		ON CONFLICT (id) DO UPDATE SET
			status     = 'processing',
			updated_at = now()
		WHERE upload_tasks.status IN ('pending', 'processing')
	`, id, filename)
	if err != nil {
		return false, errors.Wrap(err, "begin task")
	}
	return tag.RowsAffected() == 1, nil
}

func (p *PostgresStore) SetTotalRows(ctx context.Context, id string, total int64) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE upload_tasks SET total_rows = $2, updated_at = now()
		WHERE id = $1 AND status = 'processing'
	`, id, total)
	if err != nil {
		return errors.Wrap(err, "set total rows")
	}
	return nil
}

// SaveProgress persists the counters after a chunk flush. Progress never
// moves backwards.
func (p *PostgresStore) SaveProgress(ctx context.Context, id string, processed int64, progress int) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE upload_tasks
		SET processed_rows = GREATEST(processed_rows, $2),
		    progress       = GREATEST(progress, $3),
		    updated_at     = now()
		WHERE id = $1 AND status = 'processing'
	`, id, processed, progress)
	if err != nil {
		return errors.Wrap(err, "save progress")
	}
	return nil
}

// CompleteTask marks a processing task completed with progress 100.
func (p *PostgresStore) CompleteTask(ctx context.Context, id string) (models.ImportTask, error) {
	row := p.pool.QueryRow(ctx, `
		UPDATE upload_tasks
		SET status = 'completed', progress = 100, updated_at = now()
		WHERE id = $1 AND status = 'processing'
		RETURNING `+taskColumns, id)
	t, err := scanTask(row)
	return t, mapError(err)
}

// FailTask marks a non-terminal task failed. A task that already reached a
// terminal state is not touched.
func (p *PostgresStore) FailTask(ctx context.Context, id, message string) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE upload_tasks
		SET status = 'failed', error_message = $2, updated_at = now()
		WHERE id = $1 AND status IN ('pending', 'processing')
	`, id, message)
	if err != nil {
		return errors.Wrap(err, "fail task")
	}
	return nil
}

func (p *PostgresStore) GetTask(ctx context.Context, id string) (models.ImportTask, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM upload_tasks WHERE id = $1`, id)
	t, err := scanTask(row)
	return t, mapError(err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (models.ImportTask, error) {
	var (
		t      models.ImportTask
		status string
	)
	err := row.Scan(&t.ID, &t.Filename, &status, &t.Progress, &t.TotalRows, &t.ProcessedRows,
		&t.ErrorMessage, &t.CreatedAt, &t.UpdatedAt)
	t.Status = models.TaskStatus(status)
	return t, err
}
