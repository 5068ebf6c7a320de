// Package jobs binds the import pipeline and the webhook fan-out to the
// task queue.
package jobs

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"

	"github.com/PratikDhanave/product-importer/internal/ingest"
	"github.com/PratikDhanave/product-importer/internal/queue"
	"github.com/PratikDhanave/product-importer/internal/webhook"
)

const (
	KindImportCSV       = "import_csv"
	KindTriggerWebhooks = "trigger_webhooks"
)

// ImportPayload is the body of an import_csv task.
type ImportPayload struct {
	TaskID   string `json:"task_id"`
	Path     string `json:"path"`
	Filename string `json:"filename"`
}

// WebhookPayload is the body of a trigger_webhooks task.
type WebhookPayload struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Submitter accepts tasks for asynchronous execution. SubmitFollowUp is
// used for work emitted by a running task and bypasses the intake gate.
type Submitter interface {
	Submit(ctx context.Context, t queue.Task) error
	SubmitFollowUp(ctx context.Context, t queue.Task) error
}

// Importer runs one import to a terminal state.
type Importer interface {
	Run(ctx context.Context, id, path, filename string) error
}

// Fanout delivers one event to its subscribers.
type Fanout interface {
	Trigger(ctx context.Context, event string, payload any) (webhook.Summary, error)
}

// Client submits pipeline work. Events it publishes go through the queue
// with trigger-level retries.
type Client struct {
	q              Submitter
	webhookRetries int
}

// NewClient returns a Client submitting to q. trigger_webhooks tasks are
// redelivered up to webhookRetries times.
func NewClient(q Submitter, webhookRetries int) *Client {
	return &Client{q: q, webhookRetries: webhookRetries}
}

// StartImport submits an import of a staged file. The caller has already
// recorded the task as pending.
func (c *Client) StartImport(ctx context.Context, taskID, path, filename string) error {
	t, err := queue.NewTask(KindImportCSV, ImportPayload{TaskID: taskID, Path: path, Filename: filename}, 0)
	if err != nil {
		return err
	}
	return c.q.Submit(ctx, t)
}

// TriggerWebhooks submits a fan-out of event with payload as data.
func (c *Client) TriggerWebhooks(ctx context.Context, event string, payload any) error {
	t, err := c.webhookTask(event, payload)
	if err != nil {
		return err
	}
	return c.q.Submit(ctx, t)
}

// Publish is TriggerWebhooks for request-scoped events.
func (c *Client) Publish(ctx context.Context, event string, payload any) error {
	return c.TriggerWebhooks(ctx, event, payload)
}

// FollowUps returns a publisher for events raised inside a running task.
// Its submissions are accepted while the queue drains.
func (c *Client) FollowUps() FollowUpPublisher {
	return FollowUpPublisher{c: c}
}

func (c *Client) webhookTask(event string, payload any) (queue.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return queue.Task{}, errors.Wrapf(err, "encode %s data", event)
	}
	return queue.NewTask(KindTriggerWebhooks, WebhookPayload{Event: event, Data: data}, c.webhookRetries)
}

// FollowUpPublisher queues webhook fan-outs through SubmitFollowUp.
type FollowUpPublisher struct {
	c *Client
}

func (p FollowUpPublisher) Publish(ctx context.Context, event string, payload any) error {
	t, err := p.c.webhookTask(event, payload)
	if err != nil {
		return err
	}
	return p.c.q.SubmitFollowUp(ctx, t)
}

// Registrar is the handler registry of a worker pool.
type Registrar interface {
	Register(kind string, h queue.Handler)
}

// Register installs the import_csv and trigger_webhooks handlers.
func Register(r Registrar, im Importer, fan Fanout) {
	r.Register(KindImportCSV, func(ctx context.Context, t queue.Task) error {
		var p ImportPayload
		if err := t.Decode(&p); err != nil {
			return err
		}
		err := im.Run(ctx, p.TaskID, p.Path, p.Filename)
		if errors.Is(err, ingest.ErrTaskTerminal) {
			return nil
		}
		return err
	})

	r.Register(KindTriggerWebhooks, func(ctx context.Context, t queue.Task) error {
		var p WebhookPayload
		if err := t.Decode(&p); err != nil {
			return err
		}
		_, err := fan.Trigger(ctx, p.Event, p.Data)
		return err
	})
}

// InlinePublisher delivers events synchronously without the queue.
type InlinePublisher struct {
	Fanout Fanout
}

// Publish runs the fan-out in the calling goroutine.
func (p InlinePublisher) Publish(ctx context.Context, event string, payload any) error {
	_, err := p.Fanout.Trigger(ctx, event, payload)
	return err
}
