package queue

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"

	"github.com/PratikDhanave/product-importer/internal/metrics"
)

// Handler executes one task. A returned error (or a panic) counts as a
// failed attempt.
type Handler func(ctx context.Context, t Task) error

// Options tune a Manager.
type Options struct {
	Workers        int
	TaskTimeout    time.Duration
	RetryBaseDelay time.Duration
	MaxRetryDelay  time.Duration
}

func (o Options) withDefaults() Options {
	if o.TaskTimeout <= 0 {
		o.TaskTimeout = time.Hour
	}
	if o.RetryBaseDelay <= 0 {
		o.RetryBaseDelay = time.Second
	}
	if o.MaxRetryDelay <= 0 {
		o.MaxRetryDelay = time.Minute
	}
	return o
}

// Manager coordinates workers draining a Broker.
type Manager struct {
	broker Broker
	opts   Options
	log    *logrus.Entry

	mu       sync.RWMutex
	handlers map[string]Handler

	popCtx    context.Context
	popCancel context.CancelFunc
	runCtx    context.Context
	runCancel context.CancelFunc

	wg       sync.WaitGroup
	retries  sync.WaitGroup
	inflight atomic.Int64
	waiting  atomic.Int64
	closed   atomic.Bool
}

// NewManager constructs a Manager over broker.
func NewManager(broker Broker, opts Options, log *logrus.Entry) *Manager {
	return &Manager{
		broker:   broker,
		opts:     opts.withDefaults(),
		log:      log.WithField("component", "queue"),
		handlers: make(map[string]Handler),
	}
}

// Register binds kind to h, replacing any previous handler.
func (m *Manager) Register(kind string, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[kind] = h
}

// Submit pushes t for asynchronous execution.
func (m *Manager) Submit(ctx context.Context, t Task) error {
	if m.closed.Load() {
		return ErrIntakeClosed
	}
	return m.push(ctx, t)
}

// SubmitFollowUp is Submit for work emitted by a running task. It is
// accepted after CloseIntake so a drained task can still hand off its
// events.
func (m *Manager) SubmitFollowUp(ctx context.Context, t Task) error {
	return m.push(ctx, t)
}

func (m *Manager) push(ctx context.Context, t Task) error {
	if err := m.broker.Push(ctx, t); err != nil {
		return errors.Wrapf(err, "submit %s", t.Kind)
	}
	return nil
}

// Start spawns the configured number of workers. Zero workers makes the
// Manager submit-only.
func (m *Manager) Start(parent context.Context) {
	m.popCtx, m.popCancel = context.WithCancel(parent)
	// running handlers outlive the pop loop until Shutdown gives up on them
	m.runCtx, m.runCancel = context.WithCancel(context.WithoutCancel(parent))
	for i := 0; i < m.opts.Workers; i++ {
		m.wg.Add(1)
		go m.worker(i)
	}
	m.log.WithField("worker_count", m.opts.Workers).Info("workers started")
}

// Stop cancels workers and running handlers and waits for them to return.
// Tasks waiting for a delayed retry are pushed back immediately.
func (m *Manager) Stop() {
	if m.popCancel == nil {
		return
	}
	m.popCancel()
	m.runCancel()
	m.wg.Wait()
	m.retries.Wait()
}

// Shutdown stops taking tasks and lets running handlers finish until ctx
// is done, after which they are cancelled.
func (m *Manager) Shutdown(ctx context.Context) {
	if m.popCancel == nil {
		return
	}
	m.popCancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		m.log.Warn("cancelling running tasks at shutdown deadline")
		m.runCancel()
		<-done
	}
	m.runCancel()
	m.retries.Wait()
}

// CloseIntake disallows future submissions. Retries and follow-ups of
// running tasks are still accepted.
func (m *Manager) CloseIntake() { m.closed.Store(true) }

// IsShuttingDown reports if intake has been closed.
func (m *Manager) IsShuttingDown() bool { return m.closed.Load() }

// DrainUntil blocks until no task is queued, running or waiting for a
// retry, or ctx is done. Idleness must be observed on two consecutive
// polls so a task between Pop and execution is not missed.
func (m *Manager) DrainUntil(ctx context.Context) bool {
	idle := 0
	for {
		n, err := m.broker.Len(ctx)
		if err == nil && n == 0 && m.inflight.Load() == 0 && m.waiting.Load() == 0 {
			idle++
			if idle >= 2 {
				return true
			}
		} else {
			idle = 0
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func (m *Manager) worker(n int) {
	defer m.wg.Done()
	log := m.log.WithField("worker", n)
	for {
		t, err := m.broker.Pop(m.popCtx)
		if err != nil {
			if m.popCtx.Err() != nil {
				return
			}
			log.WithError(err).Warn("pop task")
			select {
			case <-m.popCtx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		m.inflight.Add(1)
		m.process(t, log)
		m.inflight.Add(-1)
	}
}

func (m *Manager) process(t Task, log *logrus.Entry) {
	log = log.WithFields(logrus.Fields{"task_id": t.ID, "kind": t.Kind, "attempt": t.Attempt})
	mc := metrics.Get()

	start := time.Now()
	err := m.execute(t)
	mc.QueueTaskLatency.WithLabelValues(t.Kind).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		mc.QueueTasksTotal.WithLabelValues(t.Kind, "success").Inc()
	case t.Attempt < t.MaxRetries:
		mc.QueueTasksTotal.WithLabelValues(t.Kind, "retry").Inc()
		delay := RetryDelay(t.Attempt, m.opts.RetryBaseDelay, m.opts.MaxRetryDelay)
		log.WithError(err).WithField("retry_in", delay.String()).Warn("task failed, retrying")
		t.Attempt++
		// acked by the retry once the next attempt is queued
		m.scheduleRetry(t, delay, log)
		return
	default:
		mc.QueueTasksTotal.WithLabelValues(t.Kind, "dead").Inc()
		log.WithError(err).Error("task failed permanently")
	}
	m.ack(t, log)
}

func (m *Manager) ack(t Task, log *logrus.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.broker.Ack(ctx, t); err != nil {
		log.WithError(err).Error("ack task")
	}
}

// execute runs the handler under the task timeout and turns a panic into
// an error.
func (m *Manager) execute(t Task) (err error) {
	m.mu.RLock()
	h, ok := m.handlers[t.Kind]
	m.mu.RUnlock()
	if !ok {
		return errors.Errorf("no handler for kind %q", t.Kind)
	}

	ctx, cancel := context.WithTimeout(m.runCtx, m.opts.TaskTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, t)
}

func (m *Manager) scheduleRetry(t Task, delay time.Duration, log *logrus.Entry) {
	m.waiting.Add(1)
	m.retries.Add(1)
	go func() {
		defer m.retries.Done()
		defer m.waiting.Add(-1)

		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-m.popCtx.Done():
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		next := t
		next.receipt = ""
		if err := m.broker.Push(ctx, next); err != nil {
			// left unacked so the broker can hand it out again
			log.WithError(err).Error("requeue task")
			return
		}
		m.ack(t, log)
	}()
}

// RetryDelay is base*2^attempt capped at maxDelay.
func RetryDelay(attempt int, base, maxDelay time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := time.Duration(math.Pow(2, float64(attempt)) * float64(base))
	if d > maxDelay || d <= 0 {
		return maxDelay
	}
	return d
}
