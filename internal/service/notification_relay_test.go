package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"care-connect-be/internal/entity"
	"care-connect-be/internal/pkg/logger"
	"care-connect-be/pkg/events"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakySink struct {
	mu       sync.Mutex
	failures int
	calls    int
	got      []events.BaseEvent
}

func (s *flakySink) Publish(ctx context.Context, event events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failures > 0 {
		s.failures--
		return errors.New("broker unavailable")
	}
	s.got = append(s.got, event.(events.BaseEvent))
	return nil
}

func (s *flakySink) snapshot() (int, []events.BaseEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls, append([]events.BaseEvent(nil), s.got...)
}

func startRelay(t *testing.T, sink EventSink) IEventPublisher {
	t.Helper()
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	t.Cleanup(func() { _ = pubSub.Close() })

	relay := NewNotificationRelay(pubSub, "connection.events", sink, logger.NewNopLogger())
	relay.backoff = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	started := make(chan struct{})
	go func() {
		close(started)
		_ = relay.Run(ctx)
	}()
	<-started
	// gochannel drops messages published before the subscription exists
	time.Sleep(20 * time.Millisecond)

	return NewEventPublisher(pubSub, "connection.events")
}

func sampleConnection() *entity.Connection {
	return &entity.Connection{
		Id:            uuid.New(),
		FromProfileId: uuid.New(),
		ToProfileId:   uuid.New(),
		Status:        entity.ConnectionStatusAccepted,
		UpdatedAt:     time.Now().UTC(),
	}
}

func TestNotificationRelay_ForwardsAfterRetry(t *testing.T) {
	sink := &flakySink{failures: 2}
	pub := startRelay(t, sink)

	c := sampleConnection()
	event := connectionEvent(events.ConnectionAccepted, c, c.ToProfileId, c.FromProfileId, nil)
	require.NoError(t, pub.Publish(context.Background(), event))

	assert.Eventually(t, func() bool {
		_, got := sink.snapshot()
		return len(got) == 1
	}, 2*time.Second, 10*time.Millisecond)

	calls, got := sink.snapshot()
	assert.Equal(t, 3, calls)
	assert.Equal(t, event.Id, got[0].Id)
	assert.Equal(t, events.ConnectionAccepted, got[0].Type)
	assert.Equal(t, c.FromProfileId.String(), got[0].Data["user_id"])
	assert.Equal(t, "connection", got[0].Data["entity_type"])
}

func TestNotificationRelay_DropsAfterMaxAttempts(t *testing.T) {
	sink := &flakySink{failures: 10}
	pub := startRelay(t, sink)

	c := sampleConnection()
	require.NoError(t, pub.Publish(context.Background(), connectionEvent(events.ConnectionEnded, c, c.FromProfileId, c.ToProfileId, nil)))
	require.NoError(t, pub.Publish(context.Background(), connectionEvent(events.ConnectionEnded, c, c.FromProfileId, c.ToProfileId, nil)))

	assert.Eventually(t, func() bool {
		calls, _ := sink.snapshot()
		return calls == 6
	}, 2*time.Second, 10*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	calls, got := sink.snapshot()
	assert.Equal(t, 6, calls)
	assert.Empty(t, got)
}
