package dto

import (
	"time"

	"github.com/google/uuid"
)

type CreateConnectionRequest struct {
	ToProfileId       uuid.UUID `json:"to_profile_id" validate:"required"`
	Type              string    `json:"type" validate:"required"`
	CareType          string    `json:"care_type" validate:"max=100"`
	Urgency           string    `json:"urgency" validate:"omitempty,oneof=immediate within_month exploring"`
	Recipient         string    `json:"recipient" validate:"max=255"`
	Note              string    `json:"note"`
	ContactPreference string    `json:"contact_preference" validate:"omitempty,oneof=phone email message"`
}

type ListConnectionsQuery struct {
	Direction     string `query:"direction" validate:"omitempty,oneof=inbound outbound all"`
	Status        string `query:"status" validate:"omitempty,oneof=pending accepted declined archived expired"`
	IncludeHidden bool   `query:"include_hidden"`
	Limit         int    `query:"limit" validate:"omitempty,min=1,lte=100"`
	Offset        int    `query:"offset" validate:"omitempty,min=0"`
}

type RespondConnectionRequest struct {
	Action string `json:"action" validate:"required,oneof=accept decline"`
}

type SendMessageRequest struct {
	Text            string `json:"text" validate:"required"`
	ClientMessageId string `json:"client_message_id" validate:"omitempty,max=128"`
}

type RequestNextStepRequest struct {
	Type string  `json:"type" validate:"required,oneof=call consultation visit"`
	Note *string `json:"note"`
}

type ProfileSummaryResponse struct {
	Id          uuid.UUID `json:"id"`
	Type        string    `json:"type"`
	DisplayName string    `json:"display_name"`
	Phone       *string   `json:"phone,omitempty"`
	Email       *string   `json:"email,omitempty"`
	Website     *string   `json:"website,omitempty"`
}

type ConnectionMessageResponse struct {
	CareType          string `json:"care_type,omitempty"`
	Urgency           string `json:"urgency,omitempty"`
	Recipient         string `json:"recipient,omitempty"`
	Note              string `json:"note,omitempty"`
	ContactPreference string `json:"contact_preference,omitempty"`
}

type ThreadEntryResponse struct {
	FromProfileId uuid.UUID `json:"from_profile_id"`
	Text          string    `json:"text"`
	CreatedAt     time.Time `json:"created_at"`
	Type          string    `json:"type"`
	NextStep      *string   `json:"next_step,omitempty"`
}

type NextStepRequestResponse struct {
	Type          string    `json:"type"`
	Note          *string   `json:"note"`
	FromProfileId uuid.UUID `json:"from_profile_id"`
	CreatedAt     time.Time `json:"created_at"`
}

type ConnectionResponse struct {
	Id              uuid.UUID                 `json:"id"`
	FromProfileId   uuid.UUID                 `json:"from_profile_id"`
	ToProfileId     uuid.UUID                 `json:"to_profile_id"`
	Direction       string                    `json:"direction"`
	Type            string                    `json:"type"`
	Status          string                    `json:"status"`
	Counterpart     *ProfileSummaryResponse   `json:"counterpart,omitempty"`
	Message         ConnectionMessageResponse `json:"message"`
	Withdrawn       bool                      `json:"withdrawn"`
	Ended           bool                      `json:"ended"`
	Hidden          bool                      `json:"hidden"`
	Thread          []ThreadEntryResponse     `json:"thread"`
	NextStepRequest *NextStepRequestResponse  `json:"next_step_request"`
	// Locked is true when details are redacted for this viewer.
	Locked bool `json:"locked"`
	// Unlockable means opening the connection will spend one free connection.
	Unlockable bool      `json:"unlockable"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type ConnectionListResponse struct {
	Items  []*ConnectionResponse `json:"items"`
	Total  int64                 `json:"total"`
	Limit  int                   `json:"limit"`
	Offset int                   `json:"offset"`
}

type ConnectionVersionResponse struct {
	Id        uuid.UUID `json:"id"`
	UpdatedAt time.Time `json:"updated_at"`
}

type EntitlementResponse struct {
	ProfileId                  uuid.UUID `json:"profile_id"`
	ProfileType                string    `json:"profile_type"`
	MembershipStatus           string    `json:"membership_status,omitempty"`
	FullAccessToInboundDetails bool      `json:"full_access_to_inbound_details"`
	FreeConnectionsRemaining   *int      `json:"free_connections_remaining"`
	FreeConnectionLimit        int       `json:"free_connection_limit"`
}
