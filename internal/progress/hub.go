// Package progress broadcasts import progress to in-process observers.
// Publishing is decoupled from persistence: the hub never blocks the
// import pipeline and losing a slow observer's update is acceptable.
package progress

import "sync"

const (
	TypeProgress = "progress"
	TypeComplete = "complete"
)

// Event is one progress or completion update for a running import.
type Event struct {
	Type          string  `json:"type"`
	TaskID        string  `json:"task_id"`
	Status        string  `json:"status"`
	Progress      float64 `json:"progress"`
	TotalRows     int     `json:"total_rows"`
	ProcessedRows int     `json:"processed_rows"`
	SuccessCount  int     `json:"success_count,omitempty"`
	ErrorCount    int     `json:"error_count,omitempty"`
	Success       *bool   `json:"success,omitempty"`
	Error         string  `json:"error,omitempty"`
}

// Terminal reports whether this event ends the stream.
func (e Event) Terminal() bool { return e.Type == TypeComplete }

type topic struct {
	mu        sync.Mutex
	listeners []chan Event
}

// Hub fans events out to subscribers keyed by task ID. Publishing to a
// task with no subscribers is a no-op, and a full listener channel drops
// the update rather than stalling the publisher.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]*topic
}

func NewHub() *Hub {
	return &Hub{topics: make(map[string]*topic)}
}

// Subscribe registers an observer for one task's events. The returned
// cancel func must be called when the observer goes away; the channel is
// closed either by cancel or by a terminal event.
func (h *Hub) Subscribe(taskID string) (<-chan Event, func()) {
	h.mu.Lock()
	t, ok := h.topics[taskID]
	if !ok {
		t = &topic{}
		h.topics[taskID] = t
	}
	h.mu.Unlock()

	ch := make(chan Event, 10)
	t.mu.Lock()
	t.listeners = append(t.listeners, ch)
	t.mu.Unlock()

	cancel := func() {
		t.mu.Lock()
		for i, c := range t.listeners {
			if c == ch {
				t.listeners = append(t.listeners[:i], t.listeners[i+1:]...)
				close(c)
				break
			}
		}
		empty := len(t.listeners) == 0
		t.mu.Unlock()

		if empty {
			h.dropIfEmpty(taskID, t)
		}
	}
	return ch, cancel
}

// dropIfEmpty removes the task's topic once its last subscriber is gone.
// The listener count is re-checked under both locks since a new Subscribe
// may have raced in between.
func (h *Hub) dropIfEmpty(taskID string, t *topic) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.topics[taskID] != t {
		return
	}
	t.mu.Lock()
	empty := len(t.listeners) == 0
	t.mu.Unlock()
	if empty {
		delete(h.topics, taskID)
	}
}

// Publish delivers an event to every subscriber of the task. A terminal
// event also closes all listener channels and drops the topic.
func (h *Hub) Publish(e Event) {
	h.mu.RLock()
	t, ok := h.topics[e.TaskID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	t.mu.Lock()
	for _, ch := range t.listeners {
		select {
		case ch <- e:
		default:
			// Listener is slow, skip this update
		}
	}
	if e.Terminal() {
		for _, ch := range t.listeners {
			close(ch)
		}
		t.listeners = nil
	}
	t.mu.Unlock()

	if e.Terminal() {
		h.mu.Lock()
		delete(h.topics, e.TaskID)
		h.mu.Unlock()
	}
}
