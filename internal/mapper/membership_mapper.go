package mapper

import (
	"care-connect-be/internal/entity"
	"care-connect-be/internal/model"
)

type MembershipMapper struct{}

func NewMembershipMapper() *MembershipMapper {
	return &MembershipMapper{}
}

func (m *MembershipMapper) ToEntity(ms *model.Membership) *entity.Membership {
	if ms == nil {
		return nil
	}
	return &entity.Membership{
		Id:                  ms.Id,
		AccountId:           ms.AccountId,
		Status:              entity.MembershipStatus(ms.Status),
		BillingCycle:        entity.BillingCycle(ms.BillingCycle),
		FreeConnectionsUsed: ms.FreeConnectionsUsed,
		CreatedAt:           ms.CreatedAt,
		UpdatedAt:           ms.UpdatedAt,
	}
}

func (m *MembershipMapper) ToModel(ms *entity.Membership) *model.Membership {
	if ms == nil {
		return nil
	}
	return &model.Membership{
		Id:                  ms.Id,
		AccountId:           ms.AccountId,
		Status:              string(ms.Status),
		BillingCycle:        string(ms.BillingCycle),
		FreeConnectionsUsed: ms.FreeConnectionsUsed,
		CreatedAt:           ms.CreatedAt,
		UpdatedAt:           ms.UpdatedAt,
	}
}

func (m *MembershipMapper) UnlockToEntity(u *model.ConnectionUnlock) *entity.ConnectionUnlock {
	if u == nil {
		return nil
	}
	return &entity.ConnectionUnlock{
		Id:           u.Id,
		ProfileId:    u.ProfileId,
		ConnectionId: u.ConnectionId,
		CreatedAt:    u.CreatedAt,
	}
}

func (m *MembershipMapper) UnlockToModel(u *entity.ConnectionUnlock) *model.ConnectionUnlock {
	if u == nil {
		return nil
	}
	return &model.ConnectionUnlock{
		Id:           u.Id,
		ProfileId:    u.ProfileId,
		ConnectionId: u.ConnectionId,
		CreatedAt:    u.CreatedAt,
	}
}
