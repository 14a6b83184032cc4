package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// MetadataSchemaVersion is bumped whenever ConnectionMetadataDoc changes shape.
const MetadataSchemaVersion = 1

// Connection timestamps are managed by the lifecycle package, not by GORM hooks,
// because updated_at doubles as the compare-and-set token.
type Connection struct {
	Id            uuid.UUID                                 `gorm:"type:uuid;primaryKey"`
	FromProfileId uuid.UUID                                 `gorm:"type:uuid;not null;index"`
	ToProfileId   uuid.UUID                                 `gorm:"type:uuid;not null;index"`
	Type          string                                    `gorm:"type:varchar(20);not null"`
	Status        string                                    `gorm:"type:varchar(20);not null;index"`
	Message       datatypes.JSONType[ConnectionMessageDoc]  `gorm:"type:jsonb;not null"`
	Metadata      datatypes.JSONType[ConnectionMetadataDoc] `gorm:"type:jsonb;not null"`
	CreatedAt     time.Time                                 `gorm:"not null"`
	UpdatedAt     time.Time                                 `gorm:"not null;index"`
}

func (Connection) TableName() string {
	return "connections"
}

type ConnectionMessageDoc struct {
	CareType          string `json:"care_type,omitempty"`
	Urgency           string `json:"urgency,omitempty"`
	Recipient         string `json:"recipient,omitempty"`
	Note              string `json:"note,omitempty"`
	ContactPreference string `json:"contact_preference,omitempty"`
}

type ConnectionMetadataDoc struct {
	SchemaVersion   int                 `json:"schema_version"`
	Withdrawn       bool                `json:"withdrawn"`
	Ended           bool                `json:"ended"`
	HiddenBy        []uuid.UUID         `json:"hidden_by"`
	Thread          []ThreadEntryDoc    `json:"thread"`
	NextStepRequest *NextStepRequestDoc `json:"next_step_request"`
}

type ThreadEntryDoc struct {
	FromProfileId uuid.UUID `json:"from_profile_id"`
	Text          string    `json:"text"`
	CreatedAt     time.Time `json:"created_at"`
	Type          string    `json:"type"`
	NextStep      *string   `json:"next_step,omitempty"`
}

type NextStepRequestDoc struct {
	Type          string    `json:"type"`
	Note          *string   `json:"note"`
	FromProfileId uuid.UUID `json:"from_profile_id"`
	CreatedAt     time.Time `json:"created_at"`
}
