package ingest

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/PratikDhanave/product-importer/internal/logging"
	"github.com/PratikDhanave/product-importer/internal/metrics"
	"github.com/PratikDhanave/product-importer/internal/models"
)

// memCatalog applies batches under a case-folded key, like idx_sku_lower.
type memCatalog struct {
	mu      sync.Mutex
	rows    map[string]models.ProductInput
	batches int
	failAt  int
}

func newMemCatalog() *memCatalog {
	return &memCatalog{rows: map[string]models.ProductInput{}}
}

func (c *memCatalog) UpsertBatch(_ context.Context, items []models.ProductInput) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches++
	if c.failAt > 0 && c.batches == c.failAt {
		return errors.New("connection reset")
	}
	seen := map[string]bool{}
	for _, it := range items {
		k := FoldSKU(it.SKU)
		if seen[k] {
			return errors.New("ON CONFLICT DO UPDATE command cannot affect row a second time")
		}
		seen[k] = true
		c.rows[k] = it
	}
	return nil
}

type memTasks struct {
	mu        sync.Mutex
	tasks     map[string]*models.ImportTask
	snapshots []models.TaskSnapshot
}

func newMemTasks() *memTasks {
	return &memTasks{tasks: map[string]*models.ImportTask{}}
}

func (m *memTasks) record(t *models.ImportTask) {
	m.snapshots = append(m.snapshots, t.Snapshot())
}

func (m *memTasks) BeginTask(_ context.Context, id, filename string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		t = &models.ImportTask{ID: id, Filename: filename}
		m.tasks[id] = t
	}
	if t.Status.Terminal() {
		return false, nil
	}
	t.Status = models.TaskProcessing
	m.record(t)
	return true, nil
}

func (m *memTasks) SetTotalRows(_ context.Context, id string, total int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[id].TotalRows = total
	m.record(m.tasks[id])
	return nil
}

func (m *memTasks) SaveProgress(_ context.Context, id string, processed int64, progress int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.tasks[id]
	t.ProcessedRows = max(t.ProcessedRows, processed)
	t.Progress = max(t.Progress, progress)
	m.record(t)
	return nil
}

func (m *memTasks) CompleteTask(_ context.Context, id string) (models.ImportTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.tasks[id]
	t.Status = models.TaskCompleted
	t.Progress = 100
	m.record(t)
	return *t, nil
}

func (m *memTasks) FailTask(_ context.Context, id, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.tasks[id]
	if t.Status.Terminal() {
		return nil
	}
	t.Status = models.TaskFailed
	t.ErrorMessage = &message
	m.record(t)
	return nil
}

func (m *memTasks) get(id string) models.ImportTask {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.tasks[id]
}

type event struct {
	name    string
	payload any
}

type recordingPublisher struct {
	events []event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, name string, payload any) error {
	p.events = append(p.events, event{name, payload})
	return p.err
}

type fixture struct {
	catalog *memCatalog
	tasks   *memTasks
	events  *recordingPublisher
	im      *Importer
}

func newFixture(chunk int) *fixture {
	f := &fixture{catalog: newMemCatalog(), tasks: newMemTasks(), events: &recordingPublisher{}}
	f.im = NewImporter(f.catalog, f.tasks, f.events, Options{ChunkSize: chunk, ErrorMaxBytes: 64}, logging.Nop())
	return f
}

func (f *fixture) pending(id string) {
	f.tasks.tasks[id] = &models.ImportTask{ID: id, Filename: id + ".csv", Status: models.TaskPending}
}

func csvRows(n int, prefix string) string {
	var b strings.Builder
	b.WriteString("sku,name,price\n")
	for i := 0; i < n; i++ {
		b.WriteString(prefix)
		b.WriteString(strings.Repeat("x", i+1))
		b.WriteString(",Item,1\n")
	}
	return b.String()
}

func TestRun_ThreeRowExample(t *testing.T) {
	f := newFixture(10000)
	f.pending("t1")
	path := writeFile(t, "sku,name,price\nP1,Widget,10.0\np1,Widget Deluxe,12.0\n,Invalid,5.0\n")

	require.NoError(t, f.im.Run(context.Background(), "t1", path, "products.csv"))

	task := f.tasks.get("t1")
	require.Equal(t, models.TaskCompleted, task.Status)
	require.Equal(t, 100, task.Progress)
	require.EqualValues(t, 3, task.TotalRows)
	require.EqualValues(t, 3, task.ProcessedRows)
	require.Nil(t, task.ErrorMessage)

	require.Len(t, f.catalog.rows, 1)
	got := f.catalog.rows["p1"]
	require.Equal(t, "Widget Deluxe", got.Name)
	require.True(t, decimal.RequireFromString("12").Equal(got.Price))

	require.Len(t, f.events.events, 1)
	require.Equal(t, models.EventUploadComplete, f.events.events[0].name)
	require.Equal(t, models.UploadCompletePayload{
		TaskID: "t1", Filename: "products.csv", TotalRows: 3, Status: models.TaskCompleted,
	}, f.events.events[0].payload)

	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err), "staged file removed")
}

func TestRun_CaseInsensitiveAcrossBatches(t *testing.T) {
	f := newFixture(1)
	f.pending("t1")
	path := writeFile(t, "sku,name,price\nABC,First,1\nabc,Second,2\n")

	require.NoError(t, f.im.Run(context.Background(), "t1", path, "a.csv"))
	require.Equal(t, 2, f.catalog.batches)
	require.Len(t, f.catalog.rows, 1)
	require.Equal(t, "Second", f.catalog.rows["abc"].Name)
}

func TestRun_ProgressIsMonotonic(t *testing.T) {
	f := newFixture(3)
	f.pending("t1")
	path := writeFile(t, csvRows(10, "s"))

	require.NoError(t, f.im.Run(context.Background(), "t1", path, "a.csv"))

	rank := map[models.TaskStatus]int{models.TaskPending: 0, models.TaskProcessing: 1, models.TaskCompleted: 2, models.TaskFailed: 2}
	prev := models.TaskSnapshot{Status: models.TaskPending}
	var progress []int
	for _, s := range f.tasks.snapshots {
		require.GreaterOrEqual(t, s.Progress, prev.Progress)
		require.GreaterOrEqual(t, rank[s.Status], rank[prev.Status])
		progress = append(progress, s.Progress)
		prev = s
	}
	require.Equal(t, []int{0, 0, 30, 60, 90, 100, 100}, progress)
}

func TestRun_PartialFailureKeepsCommittedChunks(t *testing.T) {
	f := newFixture(2)
	f.catalog.failAt = 3
	f.pending("t1")
	path := writeFile(t, csvRows(6, "k"))

	err := f.im.Run(context.Background(), "t1", path, "a.csv")
	require.Error(t, err)

	task := f.tasks.get("t1")
	require.Equal(t, models.TaskFailed, task.Status)
	require.NotNil(t, task.ErrorMessage)
	require.Contains(t, *task.ErrorMessage, "upsert chunk")
	require.LessOrEqual(t, len(*task.ErrorMessage), 64)
	require.EqualValues(t, 4, task.ProcessedRows)
	require.Equal(t, 66, task.Progress)
	require.Len(t, f.catalog.rows, 4, "first two chunks stay committed")
	require.Empty(t, f.events.events)

	_, statErr := os.Stat(path)
	require.True(t, os.IsNotExist(statErr))
}

func TestRun_MissingTaskIsCreated(t *testing.T) {
	f := newFixture(100)
	path := writeFile(t, "sku,name,price\nA,a,1\n")

	require.NoError(t, f.im.Run(context.Background(), "late", path, "late.csv"))
	task := f.tasks.get("late")
	require.Equal(t, models.TaskCompleted, task.Status)
	require.Equal(t, "late.csv", task.Filename)
}

func TestRun_UnreadableFileFails(t *testing.T) {
	f := newFixture(100)
	f.pending("t1")

	err := f.im.Run(context.Background(), "t1", writeFile(t, "")+".missing", "gone.csv")
	require.Error(t, err)

	task := f.tasks.get("t1")
	require.Equal(t, models.TaskFailed, task.Status)
	require.EqualValues(t, 0, task.TotalRows)
	require.NotNil(t, task.ErrorMessage)
	require.Zero(t, f.catalog.batches)
}

func TestRun_EmptyFileCompletes(t *testing.T) {
	f := newFixture(100)
	f.pending("t1")

	require.NoError(t, f.im.Run(context.Background(), "t1", writeFile(t, "sku,name,price\n"), "empty.csv"))
	task := f.tasks.get("t1")
	require.Equal(t, models.TaskCompleted, task.Status)
	require.Equal(t, 100, task.Progress)
	require.EqualValues(t, 0, task.TotalRows)
	require.Zero(t, f.catalog.batches)
}

func TestRun_TerminalTaskIsLeftAlone(t *testing.T) {
	f := newFixture(100)
	f.tasks.tasks["t1"] = &models.ImportTask{ID: "t1", Status: models.TaskCompleted, Progress: 100}
	path := writeFile(t, "sku,name,price\nA,a,1\n")

	err := f.im.Run(context.Background(), "t1", path, "a.csv")
	require.ErrorIs(t, err, ErrTaskTerminal)
	require.Zero(t, f.catalog.batches)

	_, statErr := os.Stat(path)
	require.True(t, os.IsNotExist(statErr))
}

func TestRun_PublishFailureDoesNotFailImport(t *testing.T) {
	f := newFixture(100)
	f.events.err = errors.New("queue down")
	f.pending("t1")

	require.NoError(t, f.im.Run(context.Background(), "t1", writeFile(t, "sku,name,price\nA,a,1\n"), "a.csv"))
	require.Equal(t, models.TaskCompleted, f.tasks.get("t1").Status)
}

func TestRun_RowMetricsCountUpsertedRows(t *testing.T) {
	rows := metrics.Get().RowsTotal
	stored := testutil.ToFloat64(rows.WithLabelValues("stored"))
	deduped := testutil.ToFloat64(rows.WithLabelValues("deduplicated"))
	skipped := testutil.ToFloat64(rows.WithLabelValues("skipped"))

	f := newFixture(10000)
	f.pending("t1")
	path := writeFile(t, "sku,name,price\nP1,Widget,10.0\np1,Widget Deluxe,12.0\n,Invalid,5.0\n")
	require.NoError(t, f.im.Run(context.Background(), "t1", path, "products.csv"))

	require.Equal(t, stored+1, testutil.ToFloat64(rows.WithLabelValues("stored")))
	require.Equal(t, deduped+1, testutil.ToFloat64(rows.WithLabelValues("deduplicated")))
	require.Equal(t, skipped+1, testutil.ToFloat64(rows.WithLabelValues("skipped")))
}
