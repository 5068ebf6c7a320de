package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/PratikDhanave/product-importer/internal/logging"
	"github.com/PratikDhanave/product-importer/internal/models"
)

type staticSubs struct {
	subs []models.WebhookSubscription
	err  error
	got  string
}

func (s *staticSubs) ListEnabledSubscriptions(_ context.Context, eventType string) ([]models.WebhookSubscription, error) {
	s.got = eventType
	return s.subs, s.err
}

type receiver struct {
	srv   *httptest.Server
	hits  atomic.Int32
	event atomic.Value
}

func newReceiver(t *testing.T, h func(w http.ResponseWriter, r *http.Request)) *receiver {
	t.Helper()
	rc := &receiver{}
	rc.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var env struct {
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
		}
		_ = json.NewDecoder(r.Body).Decode(&env)
		rc.event.Store(env.Event)
		rc.hits.Add(1)
		h(w, r)
	}))
	t.Cleanup(rc.srv.Close)
	return rc
}

func ok(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }

func TestTrigger_IsolatesSlowEndpoint(t *testing.T) {
	first := newReceiver(t, ok)
	release := make(chan struct{})
	slow := newReceiver(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)
	third := newReceiver(t, ok)

	subs := &staticSubs{subs: []models.WebhookSubscription{
		{ID: 1, URL: first.srv.URL, EventType: models.EventUploadComplete, Enabled: true},
		{ID: 2, URL: slow.srv.URL, EventType: models.EventUploadComplete, Enabled: true},
		{ID: 3, URL: third.srv.URL, EventType: models.EventUploadComplete, Enabled: true},
	}}
	d := NewDispatcher(subs, nil, Options{Timeout: 100 * time.Millisecond}, logging.Nop())

	sum, err := d.Trigger(context.Background(), models.EventUploadComplete, map[string]any{"task_id": "t1"})
	require.NoError(t, err)
	require.Equal(t, models.EventUploadComplete, subs.got)
	require.Len(t, sum.Deliveries, 3)
	require.Equal(t, 1, sum.Failed())

	require.NoError(t, sum.Deliveries[0].Err)
	require.Error(t, sum.Deliveries[1].Err)
	require.NoError(t, sum.Deliveries[2].Err)
	require.EqualValues(t, 1, first.hits.Load())
	require.EqualValues(t, 1, third.hits.Load())
	require.Equal(t, models.EventUploadComplete, first.event.Load())
}

func TestTrigger_NonSuccessStatusIsFailure(t *testing.T) {
	bad := newReceiver(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	subs := &staticSubs{subs: []models.WebhookSubscription{{ID: 7, URL: bad.srv.URL}}}
	d := NewDispatcher(subs, nil, Options{}, logging.Nop())

	sum, err := d.Trigger(context.Background(), models.EventProductCreated, nil)
	require.NoError(t, err)
	require.Equal(t, 1, sum.Failed())
	require.Equal(t, http.StatusInternalServerError, sum.Deliveries[0].StatusCode)
}

func TestTrigger_ListFailureIsReturned(t *testing.T) {
	d := NewDispatcher(&staticSubs{err: errors.New("db down")}, nil, Options{}, logging.Nop())
	_, err := d.Trigger(context.Background(), models.EventProductDeleted, nil)
	require.Error(t, err)
}

func TestTrigger_NoSubscribers(t *testing.T) {
	d := NewDispatcher(&staticSubs{}, nil, Options{}, logging.Nop())
	sum, err := d.Trigger(context.Background(), models.EventProductDeleted, nil)
	require.NoError(t, err)
	require.Empty(t, sum.Deliveries)
}

func TestTest_Success(t *testing.T) {
	var body models.WebhookEnvelope
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	d := NewDispatcher(&staticSubs{}, nil, Options{}, logging.Nop())
	res := d.Test(context.Background(), srv.URL)

	require.True(t, res.Success)
	require.NotNil(t, res.StatusCode)
	require.Equal(t, http.StatusAccepted, *res.StatusCode)
	require.NotNil(t, res.ResponseTime)
	require.Empty(t, res.Error)
	require.Equal(t, models.EventTest, body.Event)
	require.Equal(t, map[string]any{"message": TestMessage}, body.Data)
}

func TestTest_ReportsFailure(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	d := NewDispatcher(&staticSubs{}, nil, Options{TestTimeout: 50 * time.Millisecond}, logging.Nop())
	res := d.Test(context.Background(), srv.URL)

	require.False(t, res.Success)
	require.NotEmpty(t, res.Error)
	require.Nil(t, res.ResponseTime)
}
