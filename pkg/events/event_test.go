package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	raw, err := Encode(BaseEvent{
		Id:         "evt-1",
		Type:       ConnectionAccepted,
		Data:       map[string]interface{}{"connection_id": "abc"},
		OccurredAt: at,
	})
	require.NoError(t, err)

	got, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "evt-1", got.Id)
	assert.Equal(t, ConnectionAccepted, got.EventType())
	assert.Equal(t, "abc", got.Payload()["connection_id"])
	assert.True(t, at.Equal(got.Timestamp()))
}

func TestDecode_RejectsUntyped(t *testing.T) {
	_, err := Decode([]byte(`{"data":{}}`))
	assert.Error(t, err)

	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)
}
