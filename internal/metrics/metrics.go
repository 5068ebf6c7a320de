// Package metrics holds the Prometheus collectors shared by the pipeline.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collectors are the Prometheus metrics of the import pipeline, the
// webhook fan-out and the task queue.
type Collectors struct {
	RowsTotal     *prometheus.CounterVec
	RunsTotal     *prometheus.CounterVec
	ChunkDuration prometheus.Histogram

	DeliveriesTotal  *prometheus.CounterVec
	DeliveryLatency  *prometheus.HistogramVec
	QueueTasksTotal  *prometheus.CounterVec
	QueueTaskLatency *prometheus.HistogramVec
}

var singleton = sync.OnceValue(func() *Collectors {
	return &Collectors{
		RowsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "importer",
			Name:      "rows_total",
			Help:      "Rows consumed by import runs, by outcome.",
		}, []string{"result"}),
		RunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "importer",
			Name:      "runs_total",
			Help:      "Import runs that reached a terminal state.",
		}, []string{"status"}),
		ChunkDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "importer",
			Name:      "chunk_duration_seconds",
			Help:      "Time to normalize, deduplicate and upsert one chunk.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),
		DeliveriesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "webhook",
			Name:      "deliveries_total",
			Help:      "Webhook delivery attempts, by event and result.",
		}, []string{"event", "result"}),
		DeliveryLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "webhook",
			Name:      "delivery_latency_seconds",
			Help:      "Latency distribution for webhook deliveries.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.2, 0.5, 1, 2, 5, 10, 15},
		}, []string{"event", "result"}),
		QueueTasksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "queue",
			Name:      "tasks_total",
			Help:      "Tasks executed by workers, by kind and result.",
		}, []string{"kind", "result"}),
		QueueTaskLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "queue",
			Name:      "task_duration_seconds",
			Help:      "Task handler execution time.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"kind"}),
	}
})

// Get returns the process-wide collectors, registering them on first use.
func Get() *Collectors {
	return singleton()
}
