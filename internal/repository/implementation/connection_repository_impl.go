package implementation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"care-connect-be/internal/entity"
	"care-connect-be/internal/mapper"
	"care-connect-be/internal/model"
	"care-connect-be/internal/pkg/apperror"
	"care-connect-be/internal/repository/contract"
	"care-connect-be/internal/repository/specification"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ConnectionRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.ConnectionMapper
}

func NewConnectionRepository(db *gorm.DB) contract.ConnectionRepository {
	return &ConnectionRepositoryImpl{
		db:     db,
		mapper: mapper.NewConnectionMapper(),
	}
}

func (r *ConnectionRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *ConnectionRepositoryImpl) Create(ctx context.Context, connection *entity.Connection) error {
	m := r.mapper.ToModel(connection)
	// the partial unique index on the unordered pair is the real guard; this gives a clean error first
	var existing int64
	err := specification.LiveBetween{A: m.FromProfileId, B: m.ToProfileId}.
		Apply(r.db.WithContext(ctx).Model(&model.Connection{})).
		Count(&existing).Error
	if err != nil {
		return mapError(err, "connection")
	}
	if existing > 0 {
		return fmt.Errorf("live connection between %s and %s: %w", m.FromProfileId, m.ToProfileId, apperror.ErrAlreadyExists)
	}

	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return mapError(err, "connection")
	}
	*connection = *r.mapper.ToEntity(m)
	return nil
}

func (r *ConnectionRepositoryImpl) CompareAndSwap(ctx context.Context, connection *entity.Connection, expected time.Time) error {
	m := r.mapper.ToModel(connection)
	res := r.db.WithContext(ctx).
		Model(&model.Connection{}).
		Where("id = ? AND updated_at = ?", m.Id, expected).
		Updates(map[string]interface{}{
			"status":     m.Status,
			"metadata":   m.Metadata,
			"updated_at": m.UpdatedAt,
		})
	if res.Error != nil {
		return mapError(res.Error, "connection")
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("connection %s changed since %s: %w", m.Id, expected.Format(time.RFC3339Nano), apperror.ErrConcurrencyConflict)
	}
	return nil
}

func (r *ConnectionRepositoryImpl) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Connection, error) {
	var m model.Connection
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, mapError(err, "connection")
	}
	return r.mapper.ToEntity(&m), nil
}

func (r *ConnectionRepositoryImpl) FindVersion(ctx context.Context, id uuid.UUID) (*entity.ConnectionVersion, error) {
	var row struct {
		Id            uuid.UUID
		FromProfileId uuid.UUID
		ToProfileId   uuid.UUID
		UpdatedAt     time.Time
	}
	err := r.db.WithContext(ctx).
		Model(&model.Connection{}).
		Select("id, from_profile_id, to_profile_id, updated_at").
		Where("id = ?", id).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, mapError(err, "connection")
	}
	return &entity.ConnectionVersion{
		Id:            row.Id,
		FromProfileId: row.FromProfileId,
		ToProfileId:   row.ToProfileId,
		UpdatedAt:     row.UpdatedAt.UTC(),
	}, nil
}

func (r *ConnectionRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Connection, error) {
	var models []*model.Connection
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, mapError(err, "connections")
	}
	return r.mapper.ToEntities(models), nil
}

func (r *ConnectionRepositoryImpl) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	var count int64
	query := r.applySpecifications(r.db.WithContext(ctx).Model(&model.Connection{}), specs...)
	if err := query.Count(&count).Error; err != nil {
		return 0, mapError(err, "connections")
	}
	return count, nil
}
