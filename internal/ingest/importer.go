package ingest

import (
	"context"
	"io"
	"os"
	"time"
	"unicode/utf8"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"

	"github.com/PratikDhanave/product-importer/internal/metrics"
	"github.com/PratikDhanave/product-importer/internal/models"
)

// ErrTaskTerminal is returned when a run targets a task that already
// completed or failed.
var ErrTaskTerminal = errors.New("task already terminal")

// CatalogWriter applies one deduplicated batch atomically.
type CatalogWriter interface {
	UpsertBatch(ctx context.Context, items []models.ProductInput) error
}

// TaskRecorder persists the lifecycle of one import task.
type TaskRecorder interface {
	// BeginTask moves the task to processing, creating it when missing.
	// started is false when the task is already terminal.
	BeginTask(ctx context.Context, id, filename string) (started bool, err error)
	SetTotalRows(ctx context.Context, id string, total int64) error
	SaveProgress(ctx context.Context, id string, processed int64, progress int) error
	CompleteTask(ctx context.Context, id string) (models.ImportTask, error)
	FailTask(ctx context.Context, id, message string) error
}

// EventPublisher hands catalog events to the webhook fan-out.
type EventPublisher interface {
	Publish(ctx context.Context, event string, payload any) error
}

// Options tune one Importer.
type Options struct {
	ChunkSize       int
	Delimiter       rune
	ErrorMaxBytes   int
	FailureDeadline time.Duration
}

func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = 10000
	}
	if o.Delimiter == 0 {
		o.Delimiter = ','
	}
	if o.ErrorMaxBytes <= 0 {
		o.ErrorMaxBytes = 2048
	}
	if o.FailureDeadline <= 0 {
		o.FailureDeadline = 10 * time.Second
	}
	return o
}

// Importer drives one import run from staged file to terminal state.
type Importer struct {
	catalog CatalogWriter
	tasks   TaskRecorder
	events  EventPublisher
	opts    Options
	log     *logrus.Entry
}

// NewImporter returns an Importer writing to catalog, recording lifecycle
// in tasks and announcing completion through events.
func NewImporter(catalog CatalogWriter, tasks TaskRecorder, events EventPublisher, opts Options, log *logrus.Entry) *Importer {
	return &Importer{
		catalog: catalog,
		tasks:   tasks,
		events:  events,
		opts:    opts.withDefaults(),
		log:     log.WithField("component", "importer"),
	}
}

// Run imports path into the catalog under task id. The staged file is
// removed on every return path. Chunks committed before a failure stay
// in the catalog.
func (im *Importer) Run(ctx context.Context, id, path, filename string) error {
	log := im.log.WithFields(logrus.Fields{"task_id": id, "filename": filename})
	defer im.release(log, path)

	started, err := im.tasks.BeginTask(ctx, id, filename)
	if err != nil {
		return errors.Wrap(err, "begin task")
	}
	if !started {
		log.Info("task already terminal, skipping")
		return ErrTaskTerminal
	}

	total, err := im.execute(ctx, id, path, log)
	if err != nil {
		im.fail(id, err, log)
		metrics.Get().RunsTotal.WithLabelValues(string(models.TaskFailed)).Inc()
		return err
	}

	task, err := im.tasks.CompleteTask(ctx, id)
	if err != nil {
		err = errors.Wrap(err, "complete task")
		im.fail(id, err, log)
		metrics.Get().RunsTotal.WithLabelValues(string(models.TaskFailed)).Inc()
		return err
	}
	metrics.Get().RunsTotal.WithLabelValues(string(models.TaskCompleted)).Inc()
	log.WithField("total_rows", total).Info("import completed")

	payload := models.UploadCompletePayload{
		TaskID:    id,
		Filename:  filename,
		TotalRows: task.TotalRows,
		Status:    task.Status,
	}
	if err := im.events.Publish(ctx, models.EventUploadComplete, payload); err != nil {
		log.WithError(err).Error("publish upload_complete")
	}
	return nil
}

func (im *Importer) execute(ctx context.Context, id, path string, log *logrus.Entry) (int64, error) {
	total, err := CountRows(path, im.opts.Delimiter)
	if err != nil {
		return 0, errors.Wrap(err, "count rows")
	}
	if err := im.tasks.SetTotalRows(ctx, id, total); err != nil {
		return 0, errors.Wrap(err, "set total rows")
	}
	log.WithField("total_rows", total).Info("import started")

	rr, err := OpenRows(path, im.opts.Delimiter)
	if err != nil {
		return total, err
	}
	defer rr.Close()

	var (
		processed int64
		chunk     = make([]map[string]string, 0, im.opts.ChunkSize)
	)
	flush := func() error {
		if len(chunk) == 0 {
			return nil
		}
		if err := im.applyChunk(ctx, chunk); err != nil {
			return err
		}
		processed += int64(len(chunk))
		chunk = chunk[:0]
		if err := im.tasks.SaveProgress(ctx, id, processed, Percent(processed, total)); err != nil {
			return errors.Wrap(err, "save progress")
		}
		return nil
	}

	for {
		row, err := rr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return total, err
		}
		chunk = append(chunk, row)
		if len(chunk) >= im.opts.ChunkSize {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := flush(); err != nil {
		return total, err
	}
	return total, nil
}

func (im *Importer) applyChunk(ctx context.Context, rows []map[string]string) error {
	start := time.Now()
	m := metrics.Get()

	accepted := make([]models.ProductInput, 0, len(rows))
	for _, row := range rows {
		res := Normalize(row)
		if res.Verdict == Skip {
			m.RowsTotal.WithLabelValues("skipped").Inc()
			continue
		}
		accepted = append(accepted, res.Item)
	}

	batch := Batch(Dedupe(accepted))
	if len(batch) > 0 {
		if err := im.catalog.UpsertBatch(ctx, batch); err != nil {
			return errors.Wrap(err, "upsert chunk")
		}
	}
	m.RowsTotal.WithLabelValues("stored").Add(float64(len(batch)))
	m.RowsTotal.WithLabelValues("deduplicated").Add(float64(len(accepted) - len(batch)))
	m.ChunkDuration.Observe(time.Since(start).Seconds())
	return nil
}

// fail records the failure on a fresh context so a cancelled run can still
// reach its terminal state.
func (im *Importer) fail(id string, cause error, log *logrus.Entry) {
	log.WithError(cause).Error("import failed")

	ctx, cancel := context.WithTimeout(context.Background(), im.opts.FailureDeadline)
	defer cancel()
	if err := im.tasks.FailTask(ctx, id, TruncateMessage(cause.Error(), im.opts.ErrorMaxBytes)); err != nil {
		log.WithError(err).Error("record task failure")
	}
}

func (im *Importer) release(log *logrus.Entry, path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("remove staged file")
	}
}

// TruncateMessage cuts s to at most maxBytes without splitting a rune.
func TruncateMessage(s string, maxBytes int) string {
	if maxBytes <= 0 {
		return ""
	}
	if len(s) <= maxBytes {
		return s
	}
	b := []byte(s[:maxBytes])
	for len(b) > 0 && !utf8.Valid(b) {
		b = b[:len(b)-1]
	}
	return string(b)
}
