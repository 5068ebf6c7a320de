// Package app wires configuration, storage, the task queue and the HTTP
// surface into runnable processes.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"

	"github.com/PratikDhanave/product-importer/internal/config"
	"github.com/PratikDhanave/product-importer/internal/handlers"
	"github.com/PratikDhanave/product-importer/internal/httpserver"
	"github.com/PratikDhanave/product-importer/internal/ingest"
	"github.com/PratikDhanave/product-importer/internal/jobs"
	"github.com/PratikDhanave/product-importer/internal/queue"
	"github.com/PratikDhanave/product-importer/internal/store"
	"github.com/PratikDhanave/product-importer/internal/webhook"
)

// App holds the long-lived collaborators of one process.
type App struct {
	Config     config.Config
	Log        *logrus.Entry
	Store      *store.PostgresStore
	Broker     queue.Broker
	Manager    *queue.Manager
	Dispatcher *webhook.Dispatcher
	Jobs       *jobs.Client
	Importer   *ingest.Importer
}

// New connects to the database and the broker and registers task handlers.
// workers overrides cfg.WorkerCount when non-negative.
func New(ctx context.Context, cfg config.Config, log *logrus.Logger, workers int) (*App, error) {
	entry := logrus.NewEntry(log)

	st, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	var broker queue.Broker
	if cfg.RedisURL != "" {
		rb, err := queue.NewRedisBroker(ctx, cfg.RedisURL, cfg.QueueName)
		if err != nil {
			st.Close()
			return nil, err
		}
		n, err := rb.Reclaim(ctx)
		if err != nil {
			_ = rb.Close()
			st.Close()
			return nil, err
		}
		entry.WithFields(logrus.Fields{"queue": cfg.QueueName, "reclaimed": n}).Info("using redis broker")
		broker = rb
	} else {
		broker = queue.NewMemoryBroker()
		entry.Info("using in-memory broker")
	}

	if workers < 0 {
		workers = cfg.WorkerCount
	}
	mgr := queue.NewManager(broker, queue.Options{
		Workers:        workers,
		TaskTimeout:    cfg.TaskTimeout,
		RetryBaseDelay: cfg.RetryBaseDelay,
	}, entry)

	dispatcher := webhook.NewDispatcher(st, &http.Client{}, webhook.Options{
		Timeout:     cfg.WebhookTimeout,
		TestTimeout: cfg.WebhookTestTimeout,
		Concurrency: cfg.WebhookConcurrency,
	}, entry)

	client := jobs.NewClient(mgr, cfg.WebhookMaxRetries)
	importer := ingest.NewImporter(st, st, client.FollowUps(), importOptions(cfg), entry)
	jobs.Register(mgr, importer, dispatcher)

	return &App{
		Config:     cfg,
		Log:        entry,
		Store:      st,
		Broker:     broker,
		Manager:    mgr,
		Dispatcher: dispatcher,
		Jobs:       client,
		Importer:   importer,
	}, nil
}

func importOptions(cfg config.Config) ingest.Options {
	return ingest.Options{
		ChunkSize:     cfg.ChunkSize,
		Delimiter:     cfg.Delimiter(),
		ErrorMaxBytes: cfg.ErrorMessageMaxBytes,
	}
}

// InlineImporter runs imports in the calling goroutine and delivers
// completion events directly, bypassing the queue.
func (a *App) InlineImporter() *ingest.Importer {
	return ingest.NewImporter(a.Store, a.Store, jobs.InlinePublisher{Fanout: a.Dispatcher}, importOptions(a.Config), a.Log)
}

// Router builds the HTTP handler.
func (a *App) Router() http.Handler {
	return httpserver.NewRouter(httpserver.Deps{
		Upload: handlers.UploadConfig{
			Dir:          a.Config.UploadDir,
			MaxBytes:     a.Config.MaxUploadBytes(),
			PollInterval: a.Config.ProgressPollInterval,
		},
		Ready:    a.Store,
		Tasks:    a.Store,
		Products: a.Store,
		Webhooks: a.Store,
		Imports:  a.Jobs,
		Events:   a.Jobs,
		Tester:   a.Dispatcher,
		Log:      a.Log,
	})
}

// Serve runs the HTTP server and in-process workers until ctx is done,
// then shuts down gracefully.
func (a *App) Serve(ctx context.Context) error {
	a.Manager.Start(context.Background())

	srv := httpserver.New(a.Config.HTTPAddr, a.Config.CORSOrigins, a.Router())
	errCh := make(chan error, 1)
	go func() {
		a.Log.WithField("addr", a.Config.HTTPAddr).Info("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.Log.WithError(err).Warn("http shutdown")
	}
	a.drain(shutdownCtx)
	if serveErr != nil {
		return errors.Wrap(serveErr, "http server")
	}
	return nil
}

// RunWorkers runs queue workers only until ctx is done.
func (a *App) RunWorkers(ctx context.Context) error {
	a.Manager.Start(context.Background())
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.ShutdownTimeout)
	defer cancel()
	a.drain(shutdownCtx)
	return nil
}

// drain stops intake, waits for running work within ctx, then stops workers.
// A shared Redis queue is not drained since other workers keep consuming it.
func (a *App) drain(ctx context.Context) {
	a.Manager.CloseIntake()
	if _, isMemory := a.Broker.(*queue.MemoryBroker); isMemory {
		start := time.Now()
		if !a.Manager.DrainUntil(ctx) {
			a.Log.Warn("queue not drained before shutdown timeout")
		} else {
			a.Log.WithField("took", time.Since(start).String()).Info("queue drained")
		}
	}
	a.Manager.Shutdown(ctx)
}

// Close releases the broker and the database pool.
func (a *App) Close() {
	if err := a.Broker.Close(); err != nil {
		a.Log.WithError(err).Warn("close broker")
	}
	a.Store.Close()
}
