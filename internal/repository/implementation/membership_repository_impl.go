package implementation

import (
	"context"
	"errors"

	"care-connect-be/internal/entity"
	"care-connect-be/internal/mapper"
	"care-connect-be/internal/model"
	"care-connect-be/internal/repository/contract"
	"care-connect-be/internal/repository/specification"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type MembershipRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.MembershipMapper
}

func NewMembershipRepository(db *gorm.DB) contract.MembershipRepository {
	return &MembershipRepositoryImpl{
		db:     db,
		mapper: mapper.NewMembershipMapper(),
	}
}

func (r *MembershipRepositoryImpl) Create(ctx context.Context, membership *entity.Membership) error {
	m := r.mapper.ToModel(membership)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return mapError(err, "membership")
	}
	*membership = *r.mapper.ToEntity(m)
	return nil
}

func (r *MembershipRepositoryImpl) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Membership, error) {
	var m model.Membership
	query := r.db.WithContext(ctx)
	for _, spec := range specs {
		query = spec.Apply(query)
	}
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, mapError(err, "membership")
	}
	return r.mapper.ToEntity(&m), nil
}

func (r *MembershipRepositoryImpl) IncrementFreeConnectionsUsed(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).
		Model(&model.Membership{}).
		Where("id = ?", id).
		UpdateColumn("free_connections_used", gorm.Expr("free_connections_used + 1"))
	if res.Error != nil {
		return mapError(res.Error, "membership")
	}
	if res.RowsAffected == 0 {
		return mapError(gorm.ErrRecordNotFound, "membership")
	}
	return nil
}

type ConnectionUnlockRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.MembershipMapper
}

func NewConnectionUnlockRepository(db *gorm.DB) contract.ConnectionUnlockRepository {
	return &ConnectionUnlockRepositoryImpl{
		db:     db,
		mapper: mapper.NewMembershipMapper(),
	}
}

func (r *ConnectionUnlockRepositoryImpl) Create(ctx context.Context, unlock *entity.ConnectionUnlock) error {
	m := r.mapper.UnlockToModel(unlock)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return mapError(err, "connection unlock")
	}
	*unlock = *r.mapper.UnlockToEntity(m)
	return nil
}

func (r *ConnectionUnlockRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.ConnectionUnlock, error) {
	var models []*model.ConnectionUnlock
	query := r.db.WithContext(ctx)
	for _, spec := range specs {
		query = spec.Apply(query)
	}
	if err := query.Find(&models).Error; err != nil {
		return nil, mapError(err, "connection unlocks")
	}
	out := make([]*entity.ConnectionUnlock, len(models))
	for i, m := range models {
		out[i] = r.mapper.UnlockToEntity(m)
	}
	return out, nil
}
