package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_PublishToSubscriber(t *testing.T) {
	hub := NewHub()
	events, cancel := hub.Subscribe("task-1")
	defer cancel()

	hub.Publish(Event{Type: TypeProgress, TaskID: "task-1", Progress: 25})

	e := <-events
	assert.Equal(t, TypeProgress, e.Type)
	assert.Equal(t, 25.0, e.Progress)
}

func TestHub_NoSubscribersIsNoOp(t *testing.T) {
	hub := NewHub()
	// Must not panic or block.
	hub.Publish(Event{Type: TypeProgress, TaskID: "nobody-listening"})
}

func TestHub_TopicIsolation(t *testing.T) {
	hub := NewHub()
	a, cancelA := hub.Subscribe("task-a")
	defer cancelA()
	b, cancelB := hub.Subscribe("task-b")
	defer cancelB()

	hub.Publish(Event{Type: TypeProgress, TaskID: "task-a", Progress: 50})

	e := <-a
	assert.Equal(t, "task-a", e.TaskID)
	assert.Empty(t, b, "task-b subscriber must not receive task-a events")
}

func TestHub_MultipleSubscribers(t *testing.T) {
	hub := NewHub()
	first, cancel1 := hub.Subscribe("task-1")
	defer cancel1()
	second, cancel2 := hub.Subscribe("task-1")
	defer cancel2()

	hub.Publish(Event{Type: TypeProgress, TaskID: "task-1", Progress: 10})

	assert.Equal(t, 10.0, (<-first).Progress)
	assert.Equal(t, 10.0, (<-second).Progress)
}

func TestHub_TerminalEventClosesStream(t *testing.T) {
	hub := NewHub()
	events, cancel := hub.Subscribe("task-1")
	defer cancel()

	hub.Publish(Event{Type: TypeComplete, TaskID: "task-1", Status: "completed"})

	e, ok := <-events
	require.True(t, ok)
	assert.True(t, e.Terminal())

	_, ok = <-events
	assert.False(t, ok, "channel should be closed after terminal event")

	// Publishing after terminal is a no-op for the dropped topic.
	hub.Publish(Event{Type: TypeProgress, TaskID: "task-1"})
}

func TestHub_CancelRemovesSubscriber(t *testing.T) {
	hub := NewHub()
	events, cancel := hub.Subscribe("task-1")
	cancel()

	_, ok := <-events
	require.False(t, ok, "cancel should close the channel")

	// Cancel twice must not panic.
	cancel()

	hub.Publish(Event{Type: TypeProgress, TaskID: "task-1"})
}

func TestHub_CancelDropsEmptyTopic(t *testing.T) {
	hub := NewHub()
	_, cancel := hub.Subscribe("task-1")
	cancel()

	hub.mu.RLock()
	_, exists := hub.topics["task-1"]
	hub.mu.RUnlock()
	assert.False(t, exists, "topic with no subscribers should be removed")
}

func TestHub_CancelKeepsTopicWithRemainingSubscribers(t *testing.T) {
	hub := NewHub()
	first, cancelFirst := hub.Subscribe("task-1")
	second, cancelSecond := hub.Subscribe("task-1")
	defer cancelSecond()

	cancelFirst()

	hub.mu.RLock()
	_, exists := hub.topics["task-1"]
	hub.mu.RUnlock()
	require.True(t, exists, "topic must survive while a subscriber remains")

	hub.Publish(Event{Type: TypeProgress, TaskID: "task-1", Progress: 5})
	assert.Equal(t, 5.0, (<-second).Progress)
	assert.Empty(t, first)
}

func TestHub_SlowSubscriberDropsUpdates(t *testing.T) {
	hub := NewHub()
	events, cancel := hub.Subscribe("task-1")
	defer cancel()

	// Fill the buffer well past capacity; Publish must never block.
	for i := 0; i < 50; i++ {
		hub.Publish(Event{Type: TypeProgress, TaskID: "task-1", ProcessedRows: i})
	}

	received := 0
	for len(events) > 0 {
		<-events
		received++
	}
	assert.Greater(t, received, 0)
	assert.LessOrEqual(t, received, 10, "buffer bound should drop excess updates")
}
