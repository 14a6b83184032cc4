package service

import (
	"context"
	"time"

	"care-connect-be/internal/pkg/logger"
	"care-connect-be/pkg/events"

	"github.com/ThreeDotsLabs/watermill/message"
)

// EventSink is the out-of-process bus. *nats.Publisher implements it.
type EventSink interface {
	Publish(ctx context.Context, event events.Event) error
}

type NotificationRelay struct {
	subscriber message.Subscriber
	topic      string
	sink       EventSink
	logger     logger.ILogger
	attempts   int
	backoff    time.Duration
}

func NewNotificationRelay(subscriber message.Subscriber, topic string, sink EventSink, log logger.ILogger) *NotificationRelay {
	return &NotificationRelay{
		subscriber: subscriber,
		topic:      topic,
		sink:       sink,
		logger:     log,
		attempts:   3,
		backoff:    200 * time.Millisecond,
	}
}

// Run blocks until ctx is cancelled. Every message is acked: an event that
// cannot be delivered is logged and dropped rather than redelivered forever.
func (r *NotificationRelay) Run(ctx context.Context) error {
	messages, err := r.subscriber.Subscribe(ctx, r.topic)
	if err != nil {
		return err
	}
	r.logger.Info("NotificationRelay", "Relay started", map[string]interface{}{"topic": r.topic})

	for msg := range messages {
		r.handle(ctx, msg)
		msg.Ack()
	}
	return nil
}

func (r *NotificationRelay) handle(ctx context.Context, msg *message.Message) {
	event, err := events.Decode(msg.Payload)
	if err != nil {
		r.logger.Error("NotificationRelay", "Dropping undecodable event", map[string]interface{}{"error": err.Error(), "uuid": msg.UUID})
		return
	}
	if r.sink == nil {
		r.logger.Debug("NotificationRelay", "No sink configured, event not forwarded", map[string]interface{}{"type": event.Type})
		return
	}

	for attempt := 1; attempt <= r.attempts; attempt++ {
		pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = r.sink.Publish(pubCtx, event)
		cancel()
		if err == nil {
			r.logger.Info("NotificationRelay", "Event forwarded", map[string]interface{}{"type": event.Type, "id": event.Id})
			return
		}
		if attempt < r.attempts {
			select {
			case <-ctx.Done():
				return
			case <-time.After(r.backoff * time.Duration(attempt)):
			}
		}
	}
	r.logger.Error("NotificationRelay", "Failed to forward event", map[string]interface{}{
		"type":  event.Type,
		"id":    event.Id,
		"error": err.Error(),
	})
}
