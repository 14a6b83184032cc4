package lifecycle

import (
	"strings"
	"time"

	"care-connect-be/internal/entity"
	"care-connect-be/internal/pkg/apperror"

	"github.com/google/uuid"
)

var urgencies = map[string]bool{"immediate": true, "within_month": true, "exploring": true}

var contactPreferences = map[string]bool{"phone": true, "email": true, "message": true}

// NewConnection builds a pending connection with an empty thread. The request
// itself lives in Message; the thread starts at the first transition.
func NewConnection(from, to uuid.UUID, kind entity.ConnectionType, msg entity.ConnectionMessage, noteMax int, now time.Time) (*entity.Connection, error) {
	var errs []apperror.FieldError
	if from == to {
		errs = append(errs, apperror.FieldError{Field: "to_profile_id", Message: "cannot connect a profile to itself"})
	}
	switch kind {
	case entity.ConnectionTypeInquiry, entity.ConnectionTypeInvitation, entity.ConnectionTypeApplication:
	case entity.ConnectionTypeSave:
		errs = append(errs, apperror.FieldError{Field: "type", Message: "saved profiles are not connections"})
	default:
		errs = append(errs, apperror.FieldError{Field: "type", Message: "unknown connection type"})
	}
	if msg.Urgency != "" && !urgencies[msg.Urgency] {
		errs = append(errs, apperror.FieldError{Field: "urgency", Message: "unknown urgency"})
	}
	if msg.ContactPreference != "" && !contactPreferences[msg.ContactPreference] {
		errs = append(errs, apperror.FieldError{Field: "contact_preference", Message: "unknown contact preference"})
	}
	msg.Note = strings.TrimSpace(msg.Note)
	if noteMax > 0 && len([]rune(msg.Note)) > noteMax {
		errs = append(errs, apperror.FieldError{Field: "note", Message: "note is too long"})
	}
	if len(errs) > 0 {
		return nil, apperror.NewValidationErrors(errs)
	}

	created := now.UTC().Truncate(time.Microsecond)
	c := &entity.Connection{
		Id:            uuid.New(),
		FromProfileId: from,
		ToProfileId:   to,
		Type:          kind,
		Status:        entity.ConnectionStatusPending,
		Message:       msg,
		Metadata:      entity.ConnectionMetadata{Thread: []entity.ThreadEntry{}},
		CreatedAt:     created,
		UpdatedAt:     created,
	}
	return c, nil
}
