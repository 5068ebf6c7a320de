package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"

	"github.com/PratikDhanave/product-importer/internal/models"
	"github.com/PratikDhanave/product-importer/internal/store"
)

// TaskStore is the task-record side of the storage collaborator.
type TaskStore interface {
	CreateTask(ctx context.Context, id, filename string) (models.ImportTask, error)
	GetTask(ctx context.Context, id string) (models.ImportTask, error)
	FailTask(ctx context.Context, id, message string) error
}

// ProductStore is the catalog CRUD side of the storage collaborator.
type ProductStore interface {
	ListProducts(ctx context.Context, f models.ProductFilter) (models.ProductPage, error)
	GetProduct(ctx context.Context, id int64) (models.Product, error)
	SKUExists(ctx context.Context, sku string, exceptID int64) (bool, error)
	CreateProduct(ctx context.Context, in models.ProductInput) (models.Product, error)
	UpdateProduct(ctx context.Context, id int64, in models.ProductInput) (models.Product, error)
	DeleteProduct(ctx context.Context, id int64) (models.Product, error)
	DeleteAllProducts(ctx context.Context) (int64, error)
}

// WebhookStore manages subscriptions.
type WebhookStore interface {
	ListWebhooks(ctx context.Context) ([]models.WebhookSubscription, error)
	GetWebhook(ctx context.Context, id int64) (models.WebhookSubscription, error)
	CreateWebhook(ctx context.Context, w models.WebhookSubscription) (models.WebhookSubscription, error)
	UpdateWebhook(ctx context.Context, w models.WebhookSubscription) (models.WebhookSubscription, error)
	DeleteWebhook(ctx context.Context, id int64) error
}

// ImportStarter submits an accepted upload for processing.
type ImportStarter interface {
	StartImport(ctx context.Context, taskID, path, filename string) error
}

// EventPublisher queues a webhook fan-out.
type EventPublisher interface {
	Publish(ctx context.Context, event string, payload any) error
}

// WebhookTester delivers one synchronous test event.
type WebhookTester interface {
	Test(ctx context.Context, url string) models.WebhookTestResult
}

// respondError writes the JSON error body used by every route.
func respondError(c *gin.Context, status int, msg string, err error) {
	body := gin.H{"error": msg}
	if err != nil {
		body["detail"] = err.Error()
	}
	c.AbortWithStatusJSON(status, body)
}

func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		respondError(c, http.StatusBadRequest, "invalid "+name, nil)
		return 0, false
	}
	return id, true
}

// storeError maps storage sentinels to HTTP statuses.
func storeError(c *gin.Context, notFound string, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		respondError(c, http.StatusNotFound, notFound, nil)
	default:
		respondError(c, http.StatusInternalServerError, "storage error", err)
	}
}

// publish queues an event; a failure is logged and never fails the request.
func publish(c *gin.Context, events EventPublisher, log *logrus.Entry, event string, payload any) {
	if err := events.Publish(c.Request.Context(), event, payload); err != nil {
		log.WithError(err).WithField("event", event).Error("publish event")
	}
}
