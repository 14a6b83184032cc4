package lifecycle

import (
	"testing"
	"time"

	"care-connect-be/internal/entity"
	"care-connect-be/internal/pkg/apperror"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func accepted(t *testing.T) (*entity.Connection, uuid.UUID, uuid.UUID) {
	t.Helper()
	c, family, provider := newPending(t)
	_, err := Apply(c, provider, ActionAccept, t0.Add(time.Minute))
	require.NoError(t, err)
	return c, family, provider
}

func TestNextStep_SingleSlot(t *testing.T) {
	c, family, provider := accepted(t)
	note := "mornings only"

	require.NoError(t, RequestNextStep(c, provider, entity.NextStepCall, &note, 2000, t0.Add(2*time.Minute)))
	require.NotNil(t, c.Metadata.NextStepRequest)
	assert.Equal(t, entity.NextStepCall, c.Metadata.NextStepRequest.Type)
	assert.Equal(t, "mornings only", *c.Metadata.NextStepRequest.Note)

	requestEntry := c.Metadata.Thread[len(c.Metadata.Thread)-1]
	assert.Equal(t, entity.ThreadEntryNextStepRequest, requestEntry.Type)
	assert.Equal(t, provider, requestEntry.FromProfileId)
	require.NotNil(t, requestEntry.NextStep)
	assert.Equal(t, entity.NextStepCall, *requestEntry.NextStep)

	err := RequestNextStep(c, family, entity.NextStepVisit, nil, 2000, t0.Add(3*time.Minute))
	assert.ErrorIs(t, err, apperror.ErrInvalidTransition)

	require.NoError(t, CancelNextStep(c, family, t0.Add(4*time.Minute)))
	assert.Nil(t, c.Metadata.NextStepRequest)
	assert.Contains(t, c.Metadata.Thread, requestEntry, "history keeps the original request")
	assert.Equal(t, "call request declined", c.Metadata.Thread[len(c.Metadata.Thread)-1].Text)

	require.NoError(t, RequestNextStep(c, family, entity.NextStepVisit, nil, 2000, t0.Add(5*time.Minute)))
	require.NoError(t, CancelNextStep(c, family, t0.Add(6*time.Minute)))
	assert.Equal(t, "visit request withdrawn", c.Metadata.Thread[len(c.Metadata.Thread)-1].Text)
}

func TestNextStep_Preconditions(t *testing.T) {
	c, family, _ := newPending(t)

	err := RequestNextStep(c, family, entity.NextStepCall, nil, 2000, t0)
	assert.ErrorIs(t, err, apperror.ErrInvalidTransition, "pending connections cannot negotiate")

	c, family, _ = accepted(t)
	err = CancelNextStep(c, family, t0.Add(time.Hour))
	assert.ErrorIs(t, err, apperror.ErrInvalidTransition, "nothing to cancel")

	err = RequestNextStep(c, uuid.New(), entity.NextStepCall, nil, 2000, t0.Add(time.Hour))
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	err = RequestNextStep(c, family, entity.NextStepType("lunch"), nil, 2000, t0.Add(time.Hour))
	assert.ErrorIs(t, err, apperror.ErrValidation)

	blank := "   "
	require.NoError(t, RequestNextStep(c, family, entity.NextStepConsultation, &blank, 2000, t0.Add(time.Hour)))
	assert.Nil(t, c.Metadata.NextStepRequest.Note)
}

func TestAppendMessage_Rules(t *testing.T) {
	c, family, provider := newPending(t)

	assert.ErrorIs(t, AppendMessage(c, uuid.New(), "hi", 4000, t0), apperror.ErrForbidden)
	assert.ErrorIs(t, AppendMessage(c, family, "   ", 4000, t0), apperror.ErrValidation)
	assert.ErrorIs(t, AppendMessage(c, family, "too long", 3, t0), apperror.ErrValidation)
	require.NoError(t, AppendMessage(c, provider, "Thanks for reaching out", 4000, t0.Add(time.Second)))

	_, err := Apply(c, provider, ActionDecline, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.ErrorIs(t, AppendMessage(c, family, "please reconsider", 4000, t0.Add(2*time.Minute)), apperror.ErrInvalidState)
}
