package contract

import (
	"context"
	"time"

	"care-connect-be/internal/entity"
	"care-connect-be/internal/repository/specification"

	"github.com/google/uuid"
)

type ConnectionRepository interface {
	// Create fails with apperror.ErrAlreadyExists when the pair already has a live connection.
	Create(ctx context.Context, connection *entity.Connection) error
	// CompareAndSwap persists connection only if the stored updated_at still equals expected.
	CompareAndSwap(ctx context.Context, connection *entity.Connection, expected time.Time) error
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Connection, error)
	// FindVersion reads only the pair and updated_at. It returns nil when the id is unknown.
	FindVersion(ctx context.Context, id uuid.UUID) (*entity.ConnectionVersion, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Connection, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
}
