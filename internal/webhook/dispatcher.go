// Package webhook delivers catalog events to subscribed HTTP endpoints.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/PratikDhanave/product-importer/internal/metrics"
	"github.com/PratikDhanave/product-importer/internal/models"
)

// TestMessage is the data sent by a synchronous endpoint test.
const TestMessage = "This is a test webhook from Product Importer"

// SubscriptionSource lists the receivers of one event type.
type SubscriptionSource interface {
	ListEnabledSubscriptions(ctx context.Context, eventType string) ([]models.WebhookSubscription, error)
}

// Options tune a Dispatcher.
type Options struct {
	Timeout     time.Duration
	TestTimeout time.Duration
	Concurrency int
}

// Delivery is the outcome of one POST in a fan-out.
type Delivery struct {
	SubscriptionID int64
	URL            string
	StatusCode     int
	Err            error
}

// Summary aggregates a fan-out. Failed deliveries are reported here and
// never abort their siblings.
type Summary struct {
	Event      string
	Deliveries []Delivery
}

// Failed counts deliveries that did not get a 2xx.
func (s Summary) Failed() int {
	n := 0
	for _, d := range s.Deliveries {
		if d.Err != nil {
			n++
		}
	}
	return n
}

// Dispatcher fans events out to subscribers.
type Dispatcher struct {
	subs   SubscriptionSource
	client *http.Client
	opts   Options
	log    *logrus.Entry
}

// NewDispatcher returns a Dispatcher delivering to the subscriptions in
// subs. A nil client is replaced by a zero http.Client.
func NewDispatcher(subs SubscriptionSource, client *http.Client, opts Options, log *logrus.Entry) *Dispatcher {
	if client == nil {
		client = &http.Client{}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.TestTimeout <= 0 {
		opts.TestTimeout = 15 * time.Second
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	return &Dispatcher{
		subs:   subs,
		client: client,
		opts:   opts,
		log:    log.WithField("component", "webhook"),
	}
}

// Trigger POSTs {event, data} once to every enabled subscription for event.
// Only a failure to list subscriptions is returned; per-endpoint failures
// are logged and collected in the summary.
func (d *Dispatcher) Trigger(ctx context.Context, event string, payload any) (Summary, error) {
	sum := Summary{Event: event}

	subs, err := d.subs.ListEnabledSubscriptions(ctx, event)
	if err != nil {
		return sum, errors.Wrapf(err, "list subscriptions for %s", event)
	}
	if len(subs) == 0 {
		return sum, nil
	}

	body, err := json.Marshal(models.WebhookEnvelope{Event: event, Data: payload})
	if err != nil {
		return sum, errors.Wrap(err, "encode webhook payload")
	}

	sum.Deliveries = make([]Delivery, len(subs))
	var g errgroup.Group
	g.SetLimit(d.opts.Concurrency)
	for i, sub := range subs {
		g.Go(func() error {
			sum.Deliveries[i] = d.deliver(ctx, event, sub, body)
			return nil
		})
	}
	_ = g.Wait()

	d.log.WithFields(logrus.Fields{
		"event":       event,
		"subscribers": len(subs),
		"failed":      sum.Failed(),
	}).Info("webhook fan-out finished")
	return sum, nil
}

func (d *Dispatcher) deliver(ctx context.Context, event string, sub models.WebhookSubscription, body []byte) Delivery {
	ctx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	defer cancel()

	start := time.Now()
	status, err := d.post(ctx, sub.URL, body)
	elapsed := time.Since(start).Seconds()

	result := "success"
	if err != nil {
		result = "failure"
		d.log.WithFields(logrus.Fields{
			"event":           event,
			"url":             sub.URL,
			"subscription_id": sub.ID,
			"status_code":     status,
		}).WithError(err).Warn("webhook delivery failed")
	}
	m := metrics.Get()
	m.DeliveriesTotal.WithLabelValues(event, result).Inc()
	m.DeliveryLatency.WithLabelValues(event, result).Observe(elapsed)

	return Delivery{SubscriptionID: sub.ID, URL: sub.URL, StatusCode: status, Err: err}
}

// Test sends one sample event to url and waits for the definitive outcome.
func (d *Dispatcher) Test(ctx context.Context, url string) models.WebhookTestResult {
	ctx, cancel := context.WithTimeout(ctx, d.opts.TestTimeout)
	defer cancel()

	body, err := json.Marshal(models.WebhookEnvelope{
		Event: models.EventTest,
		Data:  map[string]string{"message": TestMessage},
	})
	if err != nil {
		return models.WebhookTestResult{Error: err.Error()}
	}

	start := time.Now()
	status, err := d.post(ctx, url, body)
	if err != nil {
		res := models.WebhookTestResult{Error: err.Error()}
		if status != 0 {
			res.StatusCode = &status
		}
		return res
	}
	elapsed := time.Since(start).Seconds()
	return models.WebhookTestResult{
		Success:      true,
		StatusCode:   &status,
		ResponseTime: &elapsed,
	}
}

// post returns the response status; any non-2xx is an error.
func (d *Dispatcher) post(ctx context.Context, url string, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "product-importer-webhook/1")

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, errors.Wrap(err, "post webhook")
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, errors.Errorf("unexpected status %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}
