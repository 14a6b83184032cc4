package memory

import (
	"context"
	"fmt"
	"time"

	"care-connect-be/internal/entity"
	"care-connect-be/internal/pkg/apperror"
	"care-connect-be/internal/repository/contract"
	"care-connect-be/internal/repository/specification"

	"github.com/google/uuid"
)

type MembershipRepository struct {
	store *Store
}

func NewMembershipRepository(store *Store) contract.MembershipRepository {
	return &MembershipRepository{store: store}
}

func (r *MembershipRepository) Create(ctx context.Context, membership *entity.Membership) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for _, m := range r.store.memberships {
		if m.AccountId == membership.AccountId {
			return fmt.Errorf("membership for account %s: %w", membership.AccountId, apperror.ErrAlreadyExists)
		}
	}
	if membership.Id == uuid.Nil {
		membership.Id = uuid.New()
	}
	now := time.Now().UTC()
	membership.CreatedAt, membership.UpdatedAt = now, now
	m := *membership
	r.store.memberships[m.Id] = &m
	return nil
}

func (r *MembershipRepository) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Membership, error) {
	if err := ctx.Err(); err != nil {
		return nil, mapContextError(err)
	}
	q := parseSpecs(specs)

	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	for _, m := range r.store.memberships {
		matched := true
		for _, f := range q.filters {
			switch s := f.(type) {
			case specification.ByID:
				matched = m.Id == s.ID
			case specification.ByAccountID:
				matched = m.AccountId == s.AccountID
			default:
				return nil, fmt.Errorf("memory store: unsupported membership specification %T", f)
			}
			if !matched {
				break
			}
		}
		if matched {
			cp := *m
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *MembershipRepository) IncrementFreeConnectionsUsed(ctx context.Context, id uuid.UUID) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	m, ok := r.store.memberships[id]
	if !ok {
		return fmt.Errorf("membership %s: %w", id, apperror.ErrNotFound)
	}
	m.FreeConnectionsUsed++
	m.UpdatedAt = time.Now().UTC()
	return nil
}

type ConnectionUnlockRepository struct {
	store *Store
}

func NewConnectionUnlockRepository(store *Store) contract.ConnectionUnlockRepository {
	return &ConnectionUnlockRepository{store: store}
}

func (r *ConnectionUnlockRepository) Create(ctx context.Context, unlock *entity.ConnectionUnlock) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	key := unlockKey{profileId: unlock.ProfileId, connectionId: unlock.ConnectionId}
	if _, ok := r.store.unlocks[key]; ok {
		return fmt.Errorf("unlock of %s by %s: %w", unlock.ConnectionId, unlock.ProfileId, apperror.ErrAlreadyExists)
	}
	if unlock.Id == uuid.Nil {
		unlock.Id = uuid.New()
	}
	unlock.CreatedAt = time.Now().UTC()
	u := *unlock
	r.store.unlocks[key] = &u
	return nil
}

func (r *ConnectionUnlockRepository) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.ConnectionUnlock, error) {
	if err := ctx.Err(); err != nil {
		return nil, mapContextError(err)
	}
	var by *specification.UnlockedBy
	for _, s := range specs {
		switch v := s.(type) {
		case specification.UnlockedBy:
			by = &v
		default:
			return nil, fmt.Errorf("memory store: unsupported unlock specification %T", s)
		}
	}

	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	out := make([]*entity.ConnectionUnlock, 0)
	for key, u := range r.store.unlocks {
		if by != nil {
			if key.profileId != by.ProfileID {
				continue
			}
			if len(by.ConnectionIDs) > 0 && !containsID(by.ConnectionIDs, key.connectionId) {
				continue
			}
		}
		cp := *u
		out = append(out, &cp)
	}
	return out, nil
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
