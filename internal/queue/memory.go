package queue

import (
	"context"
	"sync"
	"sync/atomic"
)

// MemoryBroker is an in-process Broker: an unbounded backlog plus a
// notify channel waking blocked Pop calls.
type MemoryBroker struct {
	mu      sync.Mutex
	backlog []Task
	notify  chan struct{}
	closed  atomic.Bool
}

// NewMemoryBroker returns an empty MemoryBroker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{notify: make(chan struct{}, 1)}
}

func (b *MemoryBroker) Push(_ context.Context, t Task) error {
	if b.closed.Load() {
		return ErrClosed
	}
	b.mu.Lock()
	b.backlog = append(b.backlog, t)
	b.mu.Unlock()
	b.wake()
	return nil
}

func (b *MemoryBroker) Pop(ctx context.Context) (Task, error) {
	for {
		b.mu.Lock()
		if len(b.backlog) > 0 {
			t := b.backlog[0]
			b.backlog[0] = Task{}
			b.backlog = b.backlog[1:]
			more := len(b.backlog) > 0
			b.mu.Unlock()
			if more {
				// pass the wakeup on to the next waiting worker
				b.wake()
			}
			return t, nil
		}
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return Task{}, ctx.Err()
		case <-b.notify:
		}
	}
}

// Ack is a no-op: in-process tasks do not outlive their process.
func (b *MemoryBroker) Ack(context.Context, Task) error { return nil }

func (b *MemoryBroker) Len(context.Context) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int64(len(b.backlog)), nil
}

// Close rejects further pushes. Queued tasks can still be popped.
func (b *MemoryBroker) Close() error {
	b.closed.Store(true)
	return nil
}

func (b *MemoryBroker) wake() {
	select {
	case b.notify <- struct{}{}:
	default:
	}
}
