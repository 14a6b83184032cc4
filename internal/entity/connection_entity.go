// FILE: internal/entity/connection_entity.go
package entity

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

type ConnectionType string
type ConnectionStatus string
type ThreadEntryType string
type NextStepType string

const (
	ConnectionTypeInquiry     ConnectionType = "inquiry"
	ConnectionTypeInvitation  ConnectionType = "invitation"
	ConnectionTypeApplication ConnectionType = "application"
	ConnectionTypeSave        ConnectionType = "save"

	ConnectionStatusPending  ConnectionStatus = "pending"
	ConnectionStatusAccepted ConnectionStatus = "accepted"
	ConnectionStatusDeclined ConnectionStatus = "declined"
	ConnectionStatusArchived ConnectionStatus = "archived"
	ConnectionStatusExpired  ConnectionStatus = "expired"

	ThreadEntryMessage         ThreadEntryType = "message"
	ThreadEntrySystem          ThreadEntryType = "system"
	ThreadEntryNextStepRequest ThreadEntryType = "next_step_request"

	NextStepCall         NextStepType = "call"
	NextStepConsultation NextStepType = "consultation"
	NextStepVisit        NextStepType = "visit"
)

// IsTerminal reports whether no further status change is possible.
func (s ConnectionStatus) IsTerminal() bool {
	return s == ConnectionStatusDeclined || s == ConnectionStatusArchived || s == ConnectionStatusExpired
}

// IsLive is true for statuses that still allow conversation.
func (s ConnectionStatus) IsLive() bool {
	return s == ConnectionStatusPending || s == ConnectionStatusAccepted
}

func (s ConnectionStatus) Valid() bool {
	switch s {
	case ConnectionStatusPending, ConnectionStatusAccepted, ConnectionStatusDeclined,
		ConnectionStatusArchived, ConnectionStatusExpired:
		return true
	}
	return false
}

func (t NextStepType) Valid() bool {
	return t == NextStepCall || t == NextStepConsultation || t == NextStepVisit
}

// ConnectionMessage is the write-once snapshot captured when the connection is created.
type ConnectionMessage struct {
	CareType          string
	Urgency           string
	Recipient         string
	Note              string
	ContactPreference string
}

type ThreadEntry struct {
	FromProfileId uuid.UUID
	Text          string
	CreatedAt     time.Time
	Type          ThreadEntryType
	NextStep      *NextStepType
}

type NextStepRequest struct {
	Type          NextStepType
	Note          *string
	FromProfileId uuid.UUID
	CreatedAt     time.Time
}

// ConnectionMetadata holds the qualifiers layered on top of Status.
type ConnectionMetadata struct {
	Withdrawn       bool
	Ended           bool
	HiddenBy        []uuid.UUID
	Thread          []ThreadEntry
	NextStepRequest *NextStepRequest
}

type Connection struct {
	Id            uuid.UUID
	FromProfileId uuid.UUID
	ToProfileId   uuid.UUID
	Type          ConnectionType
	Status        ConnectionStatus
	Message       ConnectionMessage
	Metadata      ConnectionMetadata
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ConnectionVersion is the slice of a connection a poller needs: who may see it
// and when it last changed.
type ConnectionVersion struct {
	Id            uuid.UUID
	FromProfileId uuid.UUID
	ToProfileId   uuid.UUID
	UpdatedAt     time.Time
}

func (v *ConnectionVersion) IsParty(profileId uuid.UUID) bool {
	return profileId == v.FromProfileId || profileId == v.ToProfileId
}

// Version returns the poller view of c.
func (c *Connection) Version() ConnectionVersion {
	return ConnectionVersion{Id: c.Id, FromProfileId: c.FromProfileId, ToProfileId: c.ToProfileId, UpdatedAt: c.UpdatedAt}
}

// IsParty reports whether the profile is one of the two ends of the connection.
func (c *Connection) IsParty(profileId uuid.UUID) bool {
	return profileId == c.FromProfileId || profileId == c.ToProfileId
}

// Counterpart returns the other party. The caller must be a party.
func (c *Connection) Counterpart(profileId uuid.UUID) uuid.UUID {
	if profileId == c.FromProfileId {
		return c.ToProfileId
	}
	return c.FromProfileId
}

// IsHiddenBy reports whether the viewer has hidden this connection for themselves.
func (c *Connection) IsHiddenBy(profileId uuid.UUID) bool {
	return slices.Contains(c.Metadata.HiddenBy, profileId)
}

// Clone returns a deep copy so a mutation can be validated before it is persisted.
func (c *Connection) Clone() *Connection {
	if c == nil {
		return nil
	}
	out := *c
	out.Metadata.HiddenBy = slices.Clone(c.Metadata.HiddenBy)
	out.Metadata.Thread = make([]ThreadEntry, len(c.Metadata.Thread))
	for i, e := range c.Metadata.Thread {
		if e.NextStep != nil {
			step := *e.NextStep
			e.NextStep = &step
		}
		out.Metadata.Thread[i] = e
	}
	if c.Metadata.NextStepRequest != nil {
		req := *c.Metadata.NextStepRequest
		if req.Note != nil {
			note := *req.Note
			req.Note = &note
		}
		out.Metadata.NextStepRequest = &req
	}
	return &out
}
