package webhook

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mberg/product-importer/internal/catalog"
)

type fakeWebhookStore struct {
	hooks []catalog.Webhook
	err   error
}

func (s *fakeWebhookStore) ListEnabledWebhooks(ctx context.Context) ([]catalog.Webhook, error) {
	return s.hooks, s.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func hookFor(id int64, url string, events ...string) catalog.Webhook {
	return catalog.Webhook{ID: id, URL: url, EventTypes: events, Enabled: true}
}

func TestDispatcher_DeliversPayload(t *testing.T) {
	var received Payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &received))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := &fakeWebhookStore{hooks: []catalog.Webhook{
		hookFor(1, srv.URL, catalog.EventImportCompleted),
	}}
	d := NewDispatcher(store, time.Second, discardLogger())

	results, err := d.Dispatch(context.Background(), catalog.EventImportCompleted, map[string]any{
		"task_id": "abc",
		"status":  "completed",
	})
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.True(t, results[0].Success)
	assert.Equal(t, http.StatusOK, results[0].StatusCode)
	assert.Equal(t, int64(1), results[0].WebhookID)
	assert.Empty(t, results[0].Error)

	assert.Equal(t, catalog.EventImportCompleted, received.EventType)
	assert.False(t, received.Timestamp.IsZero())
	assert.Equal(t, "abc", received.Data["task_id"])
}

func TestDispatcher_FiltersBySubscription(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	store := &fakeWebhookStore{hooks: []catalog.Webhook{
		hookFor(1, srv.URL, catalog.EventProductCreated),
		hookFor(2, srv.URL, catalog.EventImportCompleted),
		hookFor(3, srv.URL, catalog.EventProductCreated, catalog.EventImportCompleted),
	}}
	d := NewDispatcher(store, time.Second, discardLogger())

	results, err := d.Dispatch(context.Background(), catalog.EventImportCompleted, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, int64(2), results[0].WebhookID)
	assert.Equal(t, int64(3), results[1].WebhookID)
}

func TestDispatcher_NoSubscribers(t *testing.T) {
	store := &fakeWebhookStore{hooks: []catalog.Webhook{
		hookFor(1, "http://example.invalid", catalog.EventProductDeleted),
	}}
	d := NewDispatcher(store, time.Second, discardLogger())

	results, err := d.Dispatch(context.Background(), catalog.EventImportCompleted, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestDispatcher_StoreFailure(t *testing.T) {
	store := &fakeWebhookStore{err: context.DeadlineExceeded}
	d := NewDispatcher(store, time.Second, discardLogger())

	results, err := d.Dispatch(context.Background(), catalog.EventImportCompleted, nil)
	require.Error(t, err)
	assert.Nil(t, results)
}

func TestDispatcher_EndpointErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	store := &fakeWebhookStore{hooks: []catalog.Webhook{
		hookFor(1, srv.URL, catalog.EventImportCompleted),
	}}
	d := NewDispatcher(store, time.Second, discardLogger())

	results, err := d.Dispatch(context.Background(), catalog.EventImportCompleted, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.False(t, results[0].Success)
	assert.Equal(t, http.StatusInternalServerError, results[0].StatusCode)
	assert.Equal(t, "endpoint returned status 500", results[0].Error)
}

func TestDispatcher_UnreachableEndpoint(t *testing.T) {
	store := &fakeWebhookStore{hooks: []catalog.Webhook{
		hookFor(1, "http://127.0.0.1:1", catalog.EventImportCompleted),
	}}
	d := NewDispatcher(store, time.Second, discardLogger())

	results, err := d.Dispatch(context.Background(), catalog.EventImportCompleted, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.False(t, results[0].Success)
	assert.NotEmpty(t, results[0].Error)
}

func TestDispatcher_TimeoutIsPerDelivery(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer slow.Close()
	fast := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer fast.Close()

	store := &fakeWebhookStore{hooks: []catalog.Webhook{
		hookFor(1, slow.URL, catalog.EventImportCompleted),
		hookFor(2, fast.URL, catalog.EventImportCompleted),
	}}
	d := NewDispatcher(store, 50*time.Millisecond, discardLogger())

	results, err := d.Dispatch(context.Background(), catalog.EventImportCompleted, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.False(t, results[0].Success, "slow endpoint should time out")
	assert.True(t, results[1].Success, "fast endpoint should be unaffected")
}

func TestDispatcher_DetachedFromCallerContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := &fakeWebhookStore{hooks: []catalog.Webhook{
		hookFor(1, srv.URL, catalog.EventImportCompleted),
	}}
	d := NewDispatcher(store, time.Second, discardLogger())

	// The caller's context only governs the webhook listing; delivery
	// itself must survive its cancellation.
	ctx, cancel := context.WithCancel(context.Background())
	results, err := d.Dispatch(ctx, catalog.EventImportCompleted, nil)
	cancel()
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
}

func TestDispatcher_DispatchTest(t *testing.T) {
	var received Payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &received))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDispatcher(&fakeWebhookStore{}, time.Second, discardLogger())

	// The hook is not subscribed to the test event; DispatchTest fires
	// anyway.
	result := d.DispatchTest(hookFor(7, srv.URL, catalog.EventProductCreated))

	assert.True(t, result.Success)
	assert.Equal(t, int64(7), result.WebhookID)
	assert.Equal(t, catalog.EventWebhookTest, received.EventType)
	assert.Equal(t, float64(7), received.Data["webhook_id"])
}

func TestDispatcher_DefaultTimeout(t *testing.T) {
	d := NewDispatcher(&fakeWebhookStore{}, 0, discardLogger())
	assert.Equal(t, DefaultTimeout, d.timeout)
}
