package events

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/stretchr/testify/require"
)

type captureWriter struct {
	mu     sync.Mutex
	topics []string
	events []cloudevents.Event
}

func (w *captureWriter) Write(ctx context.Context, topic string, e cloudevents.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.topics = append(w.topics, topic)
	w.events = append(w.events, e)
	return nil
}

func (w *captureWriter) Close(_ context.Context) error {
	return nil
}

func (w *captureWriter) snapshot() ([]string, []cloudevents.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.topics...), append([]cloudevents.Event(nil), w.events...)
}

func TestProducerDeliversBufferedEvents(t *testing.T) {
	writer := &captureWriter{}
	producer := NewEventProducer(writer)

	first, err := json.Marshal(JobEvent{JobID: "job-1", State: "queued"})
	require.NoError(t, err)
	second, err := json.Marshal(JobEvent{JobID: "job-1", State: "succeeded"})
	require.NoError(t, err)

	require.NoError(t, producer.Write(context.Background(), JobCreatedKind, bytes.NewReader(first)))
	require.NoError(t, producer.Write(context.Background(), JobFinishedKind, bytes.NewReader(second)))

	require.Eventually(t, func() bool {
		_, events := writer.snapshot()
		return len(events) == 2
	}, 2*time.Second, 5*time.Millisecond)

	topics, events := writer.snapshot()
	require.Equal(t, []string{"caseflow.events", "caseflow.events"}, topics)
	require.Equal(t, JobCreatedKind, events[0].Type())
	require.Equal(t, JobFinishedKind, events[1].Type())
	require.Equal(t, "caseflow.intake", events[0].Source())

	var payload JobEvent
	require.NoError(t, json.Unmarshal(events[1].Data(), &payload))
	require.Equal(t, "succeeded", payload.State)

	require.NoError(t, producer.Close())
}

func TestProducerTopicOverride(t *testing.T) {
	writer := &captureWriter{}
	producer := NewEventProducer(writer, WithOutputTopic("intake.lifecycle"))

	data, err := json.Marshal(JobEvent{JobID: "job-1", State: "queued"})
	require.NoError(t, err)
	require.NoError(t, producer.Write(context.Background(), JobCreatedKind, bytes.NewReader(data)))

	require.Eventually(t, func() bool {
		topics, _ := writer.snapshot()
		return len(topics) == 1 && topics[0] == "intake.lifecycle"
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, producer.Close())
}
