// Package publish emits run audit events so an external consumer can follow
// capture batches without scraping logs. Kafka-backed when brokers are
// configured, a no-op otherwise.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/andrej220/netcheck/pkg/lg"
)

// Event kinds emitted by the orchestrator.
const (
	KindPhaseStarted  = "phase_started"
	KindPhaseFinished = "phase_finished"
	KindHostDone      = "host_done"
	KindHostFailed    = "host_failed"
	KindDiffDone      = "diff_done"
)

type Event struct {
	Kind     string    `json:"kind"`
	RunID    string    `json:"runId"`
	Phase    string    `json:"phase,omitempty"`
	Host     string    `json:"host,omitempty"`
	Error    string    `json:"error,omitempty"`
	Captured int       `json:"captured,omitempty"`
	Compared int       `json:"compared,omitempty"`
	Changed  int       `json:"changed,omitempty"`
	Time     time.Time `json:"time"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

type messageWriter interface {
	WriteMessages(context.Context, ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes one JSON message per event, keyed by run ID so a
// run's events land on one partition in order.
type KafkaPublisher struct {
	writer messageWriter
	lg     lg.Logger
}

func NewKafka(brokers []string, topic string, logger lg.Logger) *KafkaPublisher {
	if logger == nil {
		logger = lg.Discard
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.LeastBytes{},
			Async:                  false,
			AllowAutoTopicCreation: true,
		},
		lg: logger,
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev Event) error {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	message, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.RunID),
		Value: message,
		Time:  ev.Time,
	})
	if err != nil {
		p.lg.Error("failed to publish event",
			lg.String("kind", ev.Kind), lg.String("host", ev.Host), lg.Err(err))
		return err
	}
	return nil
}

func (p *KafkaPublisher) Close() error { return p.writer.Close() }

// discard drops every event.
type discard struct{}

func (discard) Publish(context.Context, Event) error { return nil }
func (discard) Close() error                         { return nil }

// Discard is the publisher used when no brokers are configured.
var Discard Publisher = discard{}
