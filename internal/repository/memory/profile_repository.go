package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"care-connect-be/internal/entity"
	"care-connect-be/internal/pkg/apperror"
	"care-connect-be/internal/repository/contract"
	"care-connect-be/internal/repository/specification"

	"github.com/google/uuid"
)

type ProfileRepository struct {
	store *Store
}

func NewProfileRepository(store *Store) contract.ProfileRepository {
	return &ProfileRepository{store: store}
}

func (r *ProfileRepository) Create(ctx context.Context, profile *entity.Profile) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if profile.Id == uuid.Nil {
		profile.Id = uuid.New()
	}
	if _, ok := r.store.profiles[profile.Id]; ok {
		return fmt.Errorf("profile %s: %w", profile.Id, apperror.ErrAlreadyExists)
	}
	now := time.Now().UTC()
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}
	profile.UpdatedAt = now
	p := *profile
	r.store.profiles[p.Id] = &p
	return nil
}

func (r *ProfileRepository) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Profile, error) {
	list, err := r.FindAll(ctx, specs...)
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return list[0], nil
}

func (r *ProfileRepository) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, mapContextError(err)
	}
	q := parseSpecs(specs)

	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	out := make([]*entity.Profile, 0)
	for _, p := range r.store.profiles {
		matched := true
		for _, f := range q.filters {
			switch s := f.(type) {
			case specification.ByID:
				matched = p.Id == s.ID
			case specification.ByIDs:
				matched = false
				for _, id := range s.IDs {
					if id == p.Id {
						matched = true
					}
				}
			case specification.ByAccountID:
				matched = p.AccountId == s.AccountID
			default:
				return nil, fmt.Errorf("memory store: unsupported profile specification %T", f)
			}
			if !matched {
				break
			}
		}
		if matched {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return paginate(out, q.page), nil
}
