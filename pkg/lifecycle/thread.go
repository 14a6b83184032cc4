package lifecycle

import (
	"fmt"
	"strings"
	"time"

	"care-connect-be/internal/entity"
	"care-connect-be/internal/pkg/apperror"

	"github.com/google/uuid"
)

// AppendMessage adds a user message to the thread.
func AppendMessage(c *entity.Connection, sender uuid.UUID, text string, maxLen int, now time.Time) error {
	if !c.IsParty(sender) {
		return fmt.Errorf("profile %s on connection %s: %w", sender, c.Id, apperror.ErrForbidden)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return apperror.NewValidationError("text", "message text is required")
	}
	if maxLen > 0 && len([]rune(text)) > maxLen {
		return apperror.NewValidationError("text", fmt.Sprintf("message exceeds %d characters", maxLen))
	}
	if !c.Status.IsLive() {
		return fmt.Errorf("message on %s connection: %w", c.Status, apperror.ErrInvalidState)
	}

	Touch(c, now)
	appendEntry(c, entity.ThreadEntry{
		FromProfileId: sender,
		Text:          text,
		CreatedAt:     c.UpdatedAt,
		Type:          entity.ThreadEntryMessage,
	})
	return nil
}

// appendEntry is the only writer of the thread.
func appendEntry(c *entity.Connection, e entity.ThreadEntry) {
	c.Metadata.Thread = append(c.Metadata.Thread, e)
}

// IsPrefix reports whether before is an unchanged prefix of after.
func IsPrefix(before, after []entity.ThreadEntry) bool {
	if len(before) > len(after) {
		return false
	}
	for i := range before {
		a, b := before[i], after[i]
		if a.FromProfileId != b.FromProfileId || a.Text != b.Text || a.Type != b.Type || !a.CreatedAt.Equal(b.CreatedAt) {
			return false
		}
		if (a.NextStep == nil) != (b.NextStep == nil) || (a.NextStep != nil && *a.NextStep != *b.NextStep) {
			return false
		}
	}
	return true
}
