package models

import "time"

// Event types emitted to webhook subscribers.
const (
	EventUploadComplete      = "upload_complete"
	EventProductCreated      = "product_created"
	EventProductUpdated      = "product_updated"
	EventProductDeleted      = "product_deleted"
	EventProductsBulkDeleted = "products_bulk_deleted"
	EventTest                = "test"
)

// WebhookSubscription is an outbound callback registered for one event type.
type WebhookSubscription struct {
	ID        int64      `json:"id"`
	URL       string     `json:"url"`
	EventType string     `json:"event_type"`
	Enabled   bool       `json:"enabled"`
	CreatedAt *time.Time `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at"`
}

// WebhookCreateRequest is the POST /api/webhooks payload.
type WebhookCreateRequest struct {
	URL       string `json:"url" binding:"required"`
	EventType string `json:"event_type" binding:"required"`
	Enabled   *bool  `json:"enabled"`
}

// WebhookUpdateRequest is the PUT /api/webhooks/:id payload.
type WebhookUpdateRequest struct {
	URL       *string `json:"url"`
	EventType *string `json:"event_type"`
	Enabled   *bool   `json:"enabled"`
}

// WebhookEnvelope is the body POSTed to every subscriber.
type WebhookEnvelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// WebhookTestResult is the outcome of a synchronous test delivery.
type WebhookTestResult struct {
	Success      bool     `json:"success"`
	StatusCode   *int     `json:"status_code,omitempty"`
	ResponseTime *float64 `json:"response_time,omitempty"`
	Error        string   `json:"error,omitempty"`
}
