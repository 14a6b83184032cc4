package contract

import (
	"context"

	"care-connect-be/internal/entity"
	"care-connect-be/internal/repository/specification"

	"github.com/google/uuid"
)

type MembershipRepository interface {
	Create(ctx context.Context, membership *entity.Membership) error
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Membership, error)
	IncrementFreeConnectionsUsed(ctx context.Context, id uuid.UUID) error
}

type ConnectionUnlockRepository interface {
	// Create fails with apperror.ErrAlreadyExists for a duplicate (profile, connection) pair.
	Create(ctx context.Context, unlock *entity.ConnectionUnlock) error
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.ConnectionUnlock, error)
}
