package service

import (
	"context"
	"time"

	"care-connect-be/internal/entity"
	"care-connect-be/pkg/events"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
)

type IEventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// eventPublisher puts domain events on the in-process watermill bus. Delivery to
// NATS happens in NotificationRelay so a slow broker never holds up a request.
type eventPublisher struct {
	publisher message.Publisher
	topic     string
}

func NewEventPublisher(publisher message.Publisher, topic string) IEventPublisher {
	return &eventPublisher{
		publisher: publisher,
		topic:     topic,
	}
}

func (p *eventPublisher) Publish(ctx context.Context, event events.Event) error {
	payload, err := events.Encode(event)
	if err != nil {
		return err
	}

	id := uuid.NewString()
	if b, ok := event.(events.BaseEvent); ok && b.Id != "" {
		id = b.Id
	}
	msg := message.NewMessage(id, payload)
	msg.SetContext(ctx)
	return p.publisher.Publish(p.topic, msg)
}

// connectionEvent builds the notification payload. recipient is the profile
// that should be told about it.
func connectionEvent(eventType string, c *entity.Connection, actor, recipient uuid.UUID, extra map[string]interface{}) events.BaseEvent {
	now := time.Now().UTC()
	data := map[string]interface{}{
		"connection_id": c.Id.String(),
		"actor_id":      actor.String(),
		"user_id":       recipient.String(),
		"status":        string(c.Status),
		"entity_type":   "connection",
		"entity_id":     c.Id.String(),
		"updated_at":    c.UpdatedAt,
		"occurred_at":   now,
	}
	for k, v := range extra {
		data[k] = v
	}
	return events.BaseEvent{
		Id:         uuid.NewString(),
		Type:       eventType,
		Data:       data,
		OccurredAt: now,
	}
}
