// Package queue is the asynchronous task transport: a Broker that carries
// JSON task envelopes and a Manager whose workers execute them with
// bounded redelivery.
package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

var (
	// ErrClosed is returned by Push once the broker stopped accepting work.
	ErrClosed = errors.New("queue closed")
	// ErrIntakeClosed is returned by Manager.Submit during shutdown.
	ErrIntakeClosed = errors.New("queue intake closed")
)

// Task is the envelope moved through a Broker.
type Task struct {
	ID         string          `json:"id"`
	Kind       string          `json:"kind"`
	Payload    json.RawMessage `json:"payload"`
	Attempt    int             `json:"attempt"`
	MaxRetries int             `json:"max_retries"`
	EnqueuedAt time.Time       `json:"enqueued_at"`

	// receipt identifies the delivered copy for Ack.
	receipt string
}

// NewTask encodes payload into a fresh envelope.
func NewTask(kind string, payload any, maxRetries int) (Task, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Task{}, errors.Wrapf(err, "encode %s payload", kind)
	}
	return Task{
		ID:         uuid.NewString(),
		Kind:       kind,
		Payload:    raw,
		MaxRetries: maxRetries,
		EnqueuedAt: time.Now().UTC(),
	}, nil
}

// Decode unmarshals the payload into v.
func (t Task) Decode(v any) error {
	if err := json.Unmarshal(t.Payload, v); err != nil {
		return errors.Wrapf(err, "decode %s payload", t.Kind)
	}
	return nil
}

// Broker carries tasks between submitters and workers. Delivery is
// at least once: a popped task stays owned by the consumer until Ack, and
// an unacknowledged task may be delivered again.
type Broker interface {
	Push(ctx context.Context, t Task) error
	// Pop blocks until a task is available or ctx is done.
	Pop(ctx context.Context) (Task, error)
	// Ack releases a popped task once it is done or requeued.
	Ack(ctx context.Context, t Task) error
	Len(ctx context.Context) (int64, error)
	Close() error
}
