package memory

import (
	"context"
	"fmt"

	"care-connect-be/internal/repository/contract"
	"care-connect-be/internal/repository/unitofwork"
)

type UnitOfWork struct {
	store *Store
	inTx  bool
}

type RepositoryFactory struct {
	store *Store
}

func NewRepositoryFactory(store *Store) unitofwork.RepositoryFactory {
	return &RepositoryFactory{store: store}
}

func (f *RepositoryFactory) NewUnitOfWork(ctx context.Context) unitofwork.UnitOfWork {
	return &UnitOfWork{store: f.store}
}

func (u *UnitOfWork) Begin(ctx context.Context) error {
	if u.inTx {
		return fmt.Errorf("transaction already started")
	}
	u.store.txMu.Lock()
	u.inTx = true
	return nil
}

func (u *UnitOfWork) Commit() error {
	if !u.inTx {
		return fmt.Errorf("no transaction to commit")
	}
	u.inTx = false
	u.store.txMu.Unlock()
	return nil
}

func (u *UnitOfWork) Rollback() error {
	if !u.inTx {
		return fmt.Errorf("no transaction to rollback")
	}
	u.inTx = false
	u.store.txMu.Unlock()
	return nil
}

func (u *UnitOfWork) ConnectionRepository() contract.ConnectionRepository {
	return NewConnectionRepository(u.store)
}

func (u *UnitOfWork) ProfileRepository() contract.ProfileRepository {
	return NewProfileRepository(u.store)
}

func (u *UnitOfWork) MembershipRepository() contract.MembershipRepository {
	return NewMembershipRepository(u.store)
}

func (u *UnitOfWork) ConnectionUnlockRepository() contract.ConnectionUnlockRepository {
	return NewConnectionUnlockRepository(u.store)
}
