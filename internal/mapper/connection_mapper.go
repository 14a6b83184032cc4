package mapper

import (
	"care-connect-be/internal/entity"
	"care-connect-be/internal/model"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type ConnectionMapper struct{}

func NewConnectionMapper() *ConnectionMapper {
	return &ConnectionMapper{}
}

func (m *ConnectionMapper) ToEntity(c *model.Connection) *entity.Connection {
	if c == nil {
		return nil
	}
	msg := c.Message.Data()
	return &entity.Connection{
		Id:            c.Id,
		FromProfileId: c.FromProfileId,
		ToProfileId:   c.ToProfileId,
		Type:          entity.ConnectionType(c.Type),
		Status:        entity.ConnectionStatus(c.Status),
		Message: entity.ConnectionMessage{
			CareType:          msg.CareType,
			Urgency:           msg.Urgency,
			Recipient:         msg.Recipient,
			Note:              msg.Note,
			ContactPreference: msg.ContactPreference,
		},
		Metadata:  m.MetadataToEntity(c.Metadata.Data()),
		CreatedAt: c.CreatedAt.UTC(),
		UpdatedAt: c.UpdatedAt.UTC(),
	}
}

func (m *ConnectionMapper) ToModel(c *entity.Connection) *model.Connection {
	if c == nil {
		return nil
	}
	return &model.Connection{
		Id:            c.Id,
		FromProfileId: c.FromProfileId,
		ToProfileId:   c.ToProfileId,
		Type:          string(c.Type),
		Status:        string(c.Status),
		Message: datatypes.NewJSONType(model.ConnectionMessageDoc{
			CareType:          c.Message.CareType,
			Urgency:           c.Message.Urgency,
			Recipient:         c.Message.Recipient,
			Note:              c.Message.Note,
			ContactPreference: c.Message.ContactPreference,
		}),
		Metadata:  datatypes.NewJSONType(m.MetadataToDoc(c.Metadata)),
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func (m *ConnectionMapper) ToEntities(connections []*model.Connection) []*entity.Connection {
	entities := make([]*entity.Connection, len(connections))
	for i, c := range connections {
		entities[i] = m.ToEntity(c)
	}
	return entities
}

// MetadataToEntity reads any schema version this build knows about. Version 0
// documents predate hidden_by and carry no per-viewer state.
func (m *ConnectionMapper) MetadataToEntity(doc model.ConnectionMetadataDoc) entity.ConnectionMetadata {
	out := entity.ConnectionMetadata{
		Withdrawn: doc.Withdrawn,
		Ended:     doc.Ended,
		HiddenBy:  append([]uuid.UUID(nil), doc.HiddenBy...),
		Thread:    make([]entity.ThreadEntry, 0, len(doc.Thread)),
	}
	for _, e := range doc.Thread {
		entry := entity.ThreadEntry{
			FromProfileId: e.FromProfileId,
			Text:          e.Text,
			CreatedAt:     e.CreatedAt.UTC(),
			Type:          entity.ThreadEntryType(e.Type),
		}
		if e.NextStep != nil {
			step := entity.NextStepType(*e.NextStep)
			entry.NextStep = &step
		}
		out.Thread = append(out.Thread, entry)
	}
	if r := doc.NextStepRequest; r != nil {
		out.NextStepRequest = &entity.NextStepRequest{
			Type:          entity.NextStepType(r.Type),
			Note:          r.Note,
			FromProfileId: r.FromProfileId,
			CreatedAt:     r.CreatedAt.UTC(),
		}
	}
	return out
}

func (m *ConnectionMapper) MetadataToDoc(md entity.ConnectionMetadata) model.ConnectionMetadataDoc {
	doc := model.ConnectionMetadataDoc{
		SchemaVersion: model.MetadataSchemaVersion,
		Withdrawn:     md.Withdrawn,
		Ended:         md.Ended,
		HiddenBy:      make([]uuid.UUID, 0, len(md.HiddenBy)),
		Thread:        make([]model.ThreadEntryDoc, 0, len(md.Thread)),
	}
	doc.HiddenBy = append(doc.HiddenBy, md.HiddenBy...)
	for _, e := range md.Thread {
		entry := model.ThreadEntryDoc{
			FromProfileId: e.FromProfileId,
			Text:          e.Text,
			CreatedAt:     e.CreatedAt,
			Type:          string(e.Type),
		}
		if e.NextStep != nil {
			step := string(*e.NextStep)
			entry.NextStep = &step
		}
		doc.Thread = append(doc.Thread, entry)
	}
	if r := md.NextStepRequest; r != nil {
		doc.NextStepRequest = &model.NextStepRequestDoc{
			Type:          string(r.Type),
			Note:          r.Note,
			FromProfileId: r.FromProfileId,
			CreatedAt:     r.CreatedAt,
		}
	}
	return doc
}
