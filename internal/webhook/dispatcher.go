package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/mberg/product-importer/internal/catalog"
)

// DefaultTimeout bounds a single delivery attempt.
const DefaultTimeout = 30 * time.Second

// maxResponseDrain caps how much of an endpoint's response body is read
// before closing, enough to let the connection be reused.
const maxResponseDrain = 4 << 10

// Store lists the webhooks eligible for delivery.
type Store interface {
	ListEnabledWebhooks(ctx context.Context) ([]catalog.Webhook, error)
}

// DeliveryResult records the outcome of one delivery attempt.
type DeliveryResult struct {
	WebhookID      int64   `json:"webhook_id"`
	URL            string  `json:"url"`
	Success        bool    `json:"success"`
	StatusCode     int     `json:"status_code,omitempty"`
	ResponseTimeMS float64 `json:"response_time_ms"`
	Error          string  `json:"error,omitempty"`
}

// Dispatcher fans an event out to every subscribed endpoint. Each
// delivery gets its own goroutine, timeout and panic guard; results come
// back in webhook order regardless of completion order.
type Dispatcher struct {
	store   Store
	client  *http.Client
	timeout time.Duration
	log     *slog.Logger
}

func NewDispatcher(store Store, timeout time.Duration, log *slog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Dispatcher{
		store: store,
		client: &http.Client{
			// The per-delivery context enforces the deadline; the client
			// timeout is a backstop for body reads after Do returns.
			Timeout: timeout + 5*time.Second,
		},
		timeout: timeout,
		log:     log,
	}
}

// Dispatch posts the event to all enabled webhooks subscribed to its
// type. It blocks until every delivery resolves, which is why callers
// run it from a background goroutine. A store failure returns an error
// with no deliveries attempted; individual endpoint failures are
// reported per result, never as an error.
func (d *Dispatcher) Dispatch(ctx context.Context, eventType string, data map[string]any) ([]DeliveryResult, error) {
	hooks, err := d.store.ListEnabledWebhooks(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing webhooks: %w", err)
	}

	var targets []catalog.Webhook
	for _, h := range hooks {
		if h.SubscribesTo(eventType) {
			targets = append(targets, h)
		}
	}
	if len(targets) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(Payload{
		EventType: eventType,
		Timestamp: time.Now().UTC(),
		Data:      sanitizeData(data),
	})
	if err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}

	results := make([]DeliveryResult, len(targets))
	var wg sync.WaitGroup
	for i, hook := range targets {
		wg.Add(1)
		go func(i int, hook catalog.Webhook) {
			defer wg.Done()
			results[i] = d.deliver(hook, body)
		}(i, hook)
	}
	wg.Wait()

	for _, r := range results {
		if r.Success {
			d.log.Info("webhook delivered",
				"webhook_id", r.WebhookID, "event", eventType,
				"status", r.StatusCode, "ms", r.ResponseTimeMS)
		} else {
			d.log.Warn("webhook delivery failed",
				"webhook_id", r.WebhookID, "event", eventType,
				"status", r.StatusCode, "error", r.Error)
		}
	}
	return results, nil
}

// deliver posts to one endpoint. It runs detached from the dispatch
// context so one import's cancellation cannot abort notifications that
// are already in flight.
func (d *Dispatcher) deliver(hook catalog.Webhook, body []byte) (result DeliveryResult) {
	result = DeliveryResult{WebhookID: hook.ID, URL: hook.URL}

	defer func() {
		if r := recover(); r != nil {
			result.Success = false
			result.Error = fmt.Sprintf("internal error: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(body))
	if err != nil {
		result.Error = err.Error()
		return result
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	result.ResponseTimeMS = float64(time.Since(start).Microseconds()) / 1000
	if err != nil {
		result.Error = err.Error()
		return result
	}
	defer resp.Body.Close()
	_, _ = io.CopyN(io.Discard, resp.Body, maxResponseDrain)

	result.StatusCode = resp.StatusCode
	result.Success = resp.StatusCode >= 200 && resp.StatusCode < 300
	if !result.Success {
		result.Error = fmt.Sprintf("endpoint returned status %d", resp.StatusCode)
	}
	return result
}

// DispatchTest sends a test event to a single webhook regardless of its
// event type subscriptions.
func (d *Dispatcher) DispatchTest(hook catalog.Webhook) DeliveryResult {
	body, err := json.Marshal(Payload{
		EventType: catalog.EventWebhookTest,
		Timestamp: time.Now().UTC(),
		Data: map[string]any{
			"webhook_id": hook.ID,
			"message":    "This is a test delivery",
		},
	})
	if err != nil {
		return DeliveryResult{WebhookID: hook.ID, URL: hook.URL, Error: err.Error()}
	}
	return d.deliver(hook, body)
}
