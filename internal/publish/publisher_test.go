package publish

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrej220/netcheck/pkg/lg"
)

type mockWriter struct {
	messages []kafka.Message
	err      error
}

func (w *mockWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *mockWriter) Close() error { return nil }

func TestKafkaPublisherWritesEvent(t *testing.T) {
	w := &mockWriter{}
	p := &KafkaPublisher{writer: w, lg: lg.Discard}

	err := p.Publish(context.Background(), Event{
		Kind:  KindHostDone,
		RunID: "run-1",
		Host:  "r1",
		Phase: "pre",
	})
	require.NoError(t, err)
	require.Len(t, w.messages, 1)

	msg := w.messages[0]
	assert.Equal(t, []byte("run-1"), msg.Key)

	var got Event
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, KindHostDone, got.Kind)
	assert.Equal(t, "r1", got.Host)
	assert.False(t, got.Time.IsZero())
}

func TestKafkaPublisherPropagatesError(t *testing.T) {
	w := &mockWriter{err: errors.New("broker down")}
	p := &KafkaPublisher{writer: w, lg: lg.Discard}

	err := p.Publish(context.Background(), Event{Kind: KindPhaseStarted, RunID: "run-1"})
	assert.Error(t, err)
}

func TestDiscardDropsEverything(t *testing.T) {
	assert.NoError(t, Discard.Publish(context.Background(), Event{Kind: KindPhaseFinished}))
	assert.NoError(t, Discard.Close())
}
