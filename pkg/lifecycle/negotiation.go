package lifecycle

import (
	"fmt"
	"strings"
	"time"

	"care-connect-be/internal/entity"
	"care-connect-be/internal/pkg/apperror"

	"github.com/google/uuid"
)

// RequestNextStep fills the single next-step slot of an accepted connection.
func RequestNextStep(c *entity.Connection, actor uuid.UUID, kind entity.NextStepType, note *string, noteMax int, now time.Time) error {
	if !c.IsParty(actor) {
		return fmt.Errorf("profile %s on connection %s: %w", actor, c.Id, apperror.ErrForbidden)
	}
	if !kind.Valid() {
		return apperror.NewValidationError("type", "next step must be call, consultation or visit")
	}
	if note != nil {
		trimmed := strings.TrimSpace(*note)
		if trimmed == "" {
			note = nil
		} else {
			if noteMax > 0 && len([]rune(trimmed)) > noteMax {
				return apperror.NewValidationError("note", "note is too long")
			}
			note = &trimmed
		}
	}
	if c.Status != entity.ConnectionStatusAccepted {
		return fmt.Errorf("next step on %s connection: %w", c.Status, apperror.ErrInvalidTransition)
	}
	if c.Metadata.NextStepRequest != nil {
		return fmt.Errorf("a %s request is already outstanding: %w", c.Metadata.NextStepRequest.Type, apperror.ErrInvalidTransition)
	}

	Touch(c, now)
	c.Metadata.NextStepRequest = &entity.NextStepRequest{
		Type:          kind,
		Note:          note,
		FromProfileId: actor,
		CreatedAt:     c.UpdatedAt,
	}
	text := "requested a " + string(kind)
	if note != nil {
		text += ": " + *note
	}
	step := kind
	appendEntry(c, entity.ThreadEntry{
		FromProfileId: actor,
		Text:          text,
		CreatedAt:     c.UpdatedAt,
		Type:          entity.ThreadEntryNextStepRequest,
		NextStep:      &step,
	})
	return nil
}

// CancelNextStep clears the slot. The original request entry stays in the thread.
func CancelNextStep(c *entity.Connection, actor uuid.UUID, now time.Time) error {
	if !c.IsParty(actor) {
		return fmt.Errorf("profile %s on connection %s: %w", actor, c.Id, apperror.ErrForbidden)
	}
	if c.Status != entity.ConnectionStatusAccepted {
		return fmt.Errorf("cancel next step on %s connection: %w", c.Status, apperror.ErrInvalidTransition)
	}
	req := c.Metadata.NextStepRequest
	if req == nil {
		return fmt.Errorf("no next step request outstanding: %w", apperror.ErrInvalidTransition)
	}

	text := string(req.Type) + " request withdrawn"
	if actor != req.FromProfileId {
		text = string(req.Type) + " request declined"
	}
	Touch(c, now)
	c.Metadata.NextStepRequest = nil
	appendEntry(c, entity.ThreadEntry{
		FromProfileId: actor,
		Text:          text,
		CreatedAt:     c.UpdatedAt,
		Type:          entity.ThreadEntrySystem,
	})
	return nil
}
