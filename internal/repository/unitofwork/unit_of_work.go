package unitofwork

import (
	"context"

	"care-connect-be/internal/repository/contract"
)

type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	ConnectionRepository() contract.ConnectionRepository
	ProfileRepository() contract.ProfileRepository
	MembershipRepository() contract.MembershipRepository
	ConnectionUnlockRepository() contract.ConnectionUnlockRepository
}
