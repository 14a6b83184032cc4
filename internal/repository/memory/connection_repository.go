package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"care-connect-be/internal/entity"
	"care-connect-be/internal/pkg/apperror"
	"care-connect-be/internal/repository/contract"
	"care-connect-be/internal/repository/specification"

	"github.com/google/uuid"
)

type ConnectionRepository struct {
	store *Store
}

func NewConnectionRepository(store *Store) contract.ConnectionRepository {
	return &ConnectionRepository{store: store}
}

func (r *ConnectionRepository) Create(ctx context.Context, connection *entity.Connection) error {
	if err := ctx.Err(); err != nil {
		return mapContextError(err)
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.connections[connection.Id]; ok {
		return fmt.Errorf("connection %s: %w", connection.Id, apperror.ErrAlreadyExists)
	}
	live := specification.LiveBetween{A: connection.FromProfileId, B: connection.ToProfileId}
	for _, c := range r.store.connections {
		if ok, _ := matchConnection(c, live); ok {
			return fmt.Errorf("live connection between %s and %s: %w", connection.FromProfileId, connection.ToProfileId, apperror.ErrAlreadyExists)
		}
	}
	r.store.connections[connection.Id] = connection.Clone()
	return nil
}

func (r *ConnectionRepository) CompareAndSwap(ctx context.Context, connection *entity.Connection, expected time.Time) error {
	if err := ctx.Err(); err != nil {
		return mapContextError(err)
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	current, ok := r.store.connections[connection.Id]
	if !ok || !current.UpdatedAt.Equal(expected) {
		return fmt.Errorf("connection %s changed since %s: %w", connection.Id, expected.Format(time.RFC3339Nano), apperror.ErrConcurrencyConflict)
	}
	next := current.Clone()
	next.Status = connection.Status
	next.Metadata = connection.Clone().Metadata
	next.UpdatedAt = connection.UpdatedAt
	r.store.connections[connection.Id] = next
	return nil
}

func (r *ConnectionRepository) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Connection, error) {
	list, err := r.FindAll(ctx, append(specs, specification.Pagination{Limit: 1})...)
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return list[0], nil
}

func (r *ConnectionRepository) FindVersion(ctx context.Context, id uuid.UUID) (*entity.ConnectionVersion, error) {
	if err := ctx.Err(); err != nil {
		return nil, mapContextError(err)
	}
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	c, ok := r.store.connections[id]
	if !ok {
		return nil, nil
	}
	v := c.Version()
	return &v, nil
}

func (r *ConnectionRepository) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, mapContextError(err)
	}
	q := parseSpecs(specs)

	r.store.mu.RLock()
	out := make([]*entity.Connection, 0)
	for _, c := range r.store.connections {
		matched := true
		for _, f := range q.filters {
			ok, err := matchConnection(c, f)
			if err != nil {
				r.store.mu.RUnlock()
				return nil, err
			}
			if !ok {
				matched = false
				break
			}
		}
		if matched {
			out = append(out, c.Clone())
		}
	}
	r.store.mu.RUnlock()

	if q.order == nil {
		q.order = &specification.OrderBy{Field: "created_at"}
	}
	if err := q.sortConnections(out); err != nil {
		return nil, err
	}
	return paginate(out, q.page), nil
}

func (r *ConnectionRepository) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	q := parseSpecs(specs)
	list, err := r.FindAll(ctx, q.filters...)
	if err != nil {
		return 0, err
	}
	return int64(len(list)), nil
}

func mapContextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("memory store: %w", apperror.ErrTimeout)
	}
	return err
}
