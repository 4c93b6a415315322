// Package audit publishes security events for offline analysis. Auditing
// is best-effort: no auth decision ever waits on or fails because of it.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"pics-backend/internal/client"
	"pics-backend/internal/models"
	"pics-backend/internal/util"
)

type Publisher interface {
	Publish(ctx context.Context, event models.SecurityEvent)
}

// KafkaPublisher serializes events to JSON and hands them to the async
// producer, keyed by email so one identity's events stay ordered.
type KafkaPublisher struct {
	producer *client.KafkaProducer
}

func NewKafkaPublisher(producer *client.KafkaProducer) *KafkaPublisher {
	return &KafkaPublisher{producer: producer}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event models.SecurityEvent) {
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	if event.EventTime.IsZero() {
		event.EventTime = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		util.Error("failed to marshal security event",
			util.String("event_type", event.EventType),
			util.ErrorField(err))
		return
	}

	if err := p.producer.Publish(ctx, []byte(event.Email), data); err != nil {
		util.Warn("failed to publish security event",
			util.String("event_type", event.EventType),
			util.ErrorField(err))
	}
}

// NopPublisher drops every event. Used when Kafka is disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, event models.SecurityEvent) {}
