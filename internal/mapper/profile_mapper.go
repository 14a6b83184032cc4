package mapper

import (
	"care-connect-be/internal/entity"
	"care-connect-be/internal/model"
)

type ProfileMapper struct{}

func NewProfileMapper() *ProfileMapper {
	return &ProfileMapper{}
}

func (m *ProfileMapper) ToEntity(p *model.Profile) *entity.Profile {
	if p == nil {
		return nil
	}
	return &entity.Profile{
		Id:          p.Id,
		AccountId:   p.AccountId,
		Type:        entity.ProfileType(p.Type),
		DisplayName: p.DisplayName,
		Phone:       p.Phone,
		Email:       p.Email,
		Website:     p.Website,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func (m *ProfileMapper) ToModel(p *entity.Profile) *model.Profile {
	if p == nil {
		return nil
	}
	return &model.Profile{
		Id:          p.Id,
		AccountId:   p.AccountId,
		Type:        string(p.Type),
		DisplayName: p.DisplayName,
		Phone:       p.Phone,
		Email:       p.Email,
		Website:     p.Website,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func (m *ProfileMapper) ToEntities(profiles []*model.Profile) []*entity.Profile {
	entities := make([]*entity.Profile, len(profiles))
	for i, p := range profiles {
		entities[i] = m.ToEntity(p)
	}
	return entities
}
