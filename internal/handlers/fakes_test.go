package handlers

import (
	"context"
	"strings"
	"sync"

	"github.com/PratikDhanave/product-importer/internal/models"
	"github.com/PratikDhanave/product-importer/internal/store"
)

type fakeTasks struct {
	mu     sync.Mutex
	tasks  map[string]models.ImportTask
	script map[string][]models.ImportTask
}

func newFakeTasks() *fakeTasks {
	return &fakeTasks{tasks: map[string]models.ImportTask{}, script: map[string][]models.ImportTask{}}
}

func (f *fakeTasks) CreateTask(_ context.Context, id, filename string) (models.ImportTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := models.ImportTask{ID: id, Filename: filename, Status: models.TaskPending}
	f.tasks[id] = t
	return t, nil
}

// GetTask replays scripted snapshots first, then the stored record.
func (f *fakeTasks) GetTask(_ context.Context, id string) (models.ImportTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s := f.script[id]; len(s) > 0 {
		f.script[id] = s[1:]
		f.tasks[id] = s[0]
		return s[0], nil
	}
	t, ok := f.tasks[id]
	if !ok {
		return t, store.ErrNotFound
	}
	return t, nil
}

func (f *fakeTasks) FailTask(_ context.Context, id, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.tasks[id]
	t.Status = models.TaskFailed
	t.ErrorMessage = &message
	f.tasks[id] = t
	return nil
}

type fakeStarter struct {
	calls []string
	paths []string
	err   error
}

func (f *fakeStarter) StartImport(_ context.Context, taskID, path, _ string) error {
	f.calls = append(f.calls, taskID)
	f.paths = append(f.paths, path)
	return f.err
}

type published struct {
	event   string
	payload any
}

type fakeEvents struct {
	mu     sync.Mutex
	events []published
}

func (f *fakeEvents) Publish(_ context.Context, event string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, published{event, payload})
	return nil
}

type fakeProducts struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]models.Product
	last   models.ProductFilter
}

func newFakeProducts() *fakeProducts {
	return &fakeProducts{rows: map[int64]models.Product{}}
}

func (f *fakeProducts) ListProducts(_ context.Context, flt models.ProductFilter) (models.ProductPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.last = flt
	page := models.ProductPage{Skip: flt.Skip, Limit: flt.Limit, Products: []models.Product{}}
	for id := f.nextID; id > 0; id-- {
		if p, ok := f.rows[id]; ok {
			page.Products = append(page.Products, p)
		}
	}
	page.Total = int64(len(page.Products))
	return page, nil
}

func (f *fakeProducts) GetProduct(_ context.Context, id int64) (models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.rows[id]
	if !ok {
		return p, store.ErrNotFound
	}
	return p, nil
}

func (f *fakeProducts) SKUExists(_ context.Context, sku string, exceptID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, p := range f.rows {
		if id != exceptID && strings.EqualFold(p.SKU, sku) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeProducts) CreateProduct(_ context.Context, in models.ProductInput) (models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	p := models.Product{ID: f.nextID, SKU: in.SKU, Name: in.Name, Description: in.Description, Price: in.Price, Active: in.Active}
	f.rows[p.ID] = p
	return p, nil
}

func (f *fakeProducts) UpdateProduct(_ context.Context, id int64, in models.ProductInput) (models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[id]; !ok {
		return models.Product{}, store.ErrNotFound
	}
	p := models.Product{ID: id, SKU: in.SKU, Name: in.Name, Description: in.Description, Price: in.Price, Active: in.Active}
	f.rows[id] = p
	return p, nil
}

func (f *fakeProducts) DeleteProduct(_ context.Context, id int64) (models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.rows[id]
	if !ok {
		return p, store.ErrNotFound
	}
	delete(f.rows, id)
	return p, nil
}

func (f *fakeProducts) DeleteAllProducts(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := int64(len(f.rows))
	f.rows = map[int64]models.Product{}
	return n, nil
}

type fakeWebhooks struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]models.WebhookSubscription
}

func newFakeWebhooks() *fakeWebhooks {
	return &fakeWebhooks{rows: map[int64]models.WebhookSubscription{}}
}

func (f *fakeWebhooks) ListWebhooks(context.Context) ([]models.WebhookSubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []models.WebhookSubscription{}
	for id := int64(1); id <= f.nextID; id++ {
		if w, ok := f.rows[id]; ok {
			out = append(out, w)
		}
	}
	return out, nil
}

func (f *fakeWebhooks) GetWebhook(_ context.Context, id int64) (models.WebhookSubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.rows[id]
	if !ok {
		return w, store.ErrNotFound
	}
	return w, nil
}

func (f *fakeWebhooks) CreateWebhook(_ context.Context, w models.WebhookSubscription) (models.WebhookSubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	w.ID = f.nextID
	f.rows[w.ID] = w
	return w, nil
}

func (f *fakeWebhooks) UpdateWebhook(_ context.Context, w models.WebhookSubscription) (models.WebhookSubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[w.ID]; !ok {
		return w, store.ErrNotFound
	}
	f.rows[w.ID] = w
	return w, nil
}

func (f *fakeWebhooks) DeleteWebhook(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.rows, id)
	return nil
}

type fakeTester struct {
	url string
}

func (f *fakeTester) Test(_ context.Context, url string) models.WebhookTestResult {
	f.url = url
	if strings.Contains(url, "down") {
		return models.WebhookTestResult{Error: "connection refused"}
	}
	code := 200
	rt := 0.01
	return models.WebhookTestResult{Success: true, StatusCode: &code, ResponseTime: &rt}
}
