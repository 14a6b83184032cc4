package service

import (
	"care-connect-be/internal/dto"
	"care-connect-be/internal/entity"
	"care-connect-be/pkg/entitlement"

	"github.com/google/uuid"
)

// connectionView renders one connection for one viewer, applying redaction
// when the gate decision says the details are locked.
func connectionView(c *entity.Connection, viewer uuid.UUID, counterpart *entity.Profile, decision entitlement.Decision) *dto.ConnectionResponse {
	locked := decision != entitlement.Visible
	other := c.Counterpart(viewer)

	res := &dto.ConnectionResponse{
		Id:            c.Id,
		FromProfileId: c.FromProfileId,
		ToProfileId:   c.ToProfileId,
		Direction:     "outbound",
		Type:          string(c.Type),
		Status:        string(c.Status),
		Message: dto.ConnectionMessageResponse{
			CareType:          c.Message.CareType,
			Urgency:           c.Message.Urgency,
			Recipient:         c.Message.Recipient,
			Note:              c.Message.Note,
			ContactPreference: c.Message.ContactPreference,
		},
		Withdrawn:  c.Metadata.Withdrawn,
		Ended:      c.Metadata.Ended,
		Hidden:     c.IsHiddenBy(viewer),
		Thread:     make([]dto.ThreadEntryResponse, 0, len(c.Metadata.Thread)),
		Locked:     locked,
		Unlockable: decision == entitlement.Unlockable,
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
	}
	if viewer == c.ToProfileId {
		res.Direction = "inbound"
	}

	if counterpart != nil {
		summary := &dto.ProfileSummaryResponse{
			Id:          counterpart.Id,
			Type:        string(counterpart.Type),
			DisplayName: counterpart.DisplayName,
			Phone:       counterpart.Phone,
			Email:       counterpart.Email,
			Website:     counterpart.Website,
		}
		if locked {
			summary.DisplayName = entitlement.RedactName(counterpart.DisplayName)
			summary.Phone, summary.Email, summary.Website = nil, nil, nil
		}
		res.Counterpart = summary
	}

	if locked {
		res.Message.Note = entitlement.RedactNote(c.Message.Note)
		res.Message.Recipient = entitlement.RedactNote(c.Message.Recipient)
	}

	for _, e := range c.Metadata.Thread {
		entry := dto.ThreadEntryResponse{
			FromProfileId: e.FromProfileId,
			Text:          e.Text,
			CreatedAt:     e.CreatedAt,
			Type:          string(e.Type),
		}
		if e.NextStep != nil {
			step := string(*e.NextStep)
			entry.NextStep = &step
		}
		if locked && e.Type != entity.ThreadEntrySystem && e.FromProfileId == other {
			entry.Text = entitlement.RedactNote(e.Text)
		}
		res.Thread = append(res.Thread, entry)
	}

	if r := c.Metadata.NextStepRequest; r != nil {
		ns := &dto.NextStepRequestResponse{
			Type:          string(r.Type),
			Note:          r.Note,
			FromProfileId: r.FromProfileId,
			CreatedAt:     r.CreatedAt,
		}
		if locked && r.Note != nil && r.FromProfileId == other {
			redacted := entitlement.RedactNote(*r.Note)
			ns.Note = &redacted
		}
		res.NextStepRequest = ns
	}

	return res
}
