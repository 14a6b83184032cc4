package memory

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"care-connect-be/internal/entity"
	"care-connect-be/internal/repository/specification"

	"github.com/google/uuid"
)

// Store is the process-local backing for all memory repositories. It is used
// by tests and by DB_DRIVER=memory for local runs.
type Store struct {
	mu sync.RWMutex
	// txMu serializes units of work. Writes are applied immediately, so a
	// rollback does not undo them.
	txMu sync.Mutex

	connections map[uuid.UUID]*entity.Connection
	profiles    map[uuid.UUID]*entity.Profile
	memberships map[uuid.UUID]*entity.Membership
	unlocks     map[unlockKey]*entity.ConnectionUnlock
}

type unlockKey struct {
	profileId    uuid.UUID
	connectionId uuid.UUID
}

func NewStore() *Store {
	return &Store{
		connections: make(map[uuid.UUID]*entity.Connection),
		profiles:    make(map[uuid.UUID]*entity.Profile),
		memberships: make(map[uuid.UUID]*entity.Membership),
		unlocks:     make(map[unlockKey]*entity.ConnectionUnlock),
	}
}

// query splits specifications into filters, one ordering and one page.
type query struct {
	filters []specification.Specification
	order   *specification.OrderBy
	page    *specification.Pagination
}

func parseSpecs(specs []specification.Specification) query {
	var q query
	for _, s := range specs {
		switch v := s.(type) {
		case specification.OrderBy:
			q.order = &v
		case specification.Pagination:
			q.page = &v
		case specification.ForUpdate:
			// row locks are implied by txMu
		default:
			q.filters = append(q.filters, s)
		}
	}
	return q
}

func matchConnection(c *entity.Connection, spec specification.Specification) (bool, error) {
	switch s := spec.(type) {
	case specification.ByID:
		return c.Id == s.ID, nil
	case specification.ByIDs:
		for _, id := range s.IDs {
			if c.Id == id {
				return true, nil
			}
		}
		return false, nil
	case specification.InboundTo:
		return c.ToProfileId == s.ProfileID, nil
	case specification.OutboundFrom:
		return c.FromProfileId == s.ProfileID, nil
	case specification.InvolvingProfile:
		return c.IsParty(s.ProfileID), nil
	case specification.WithStatuses:
		for _, st := range s.Statuses {
			if c.Status == st {
				return true, nil
			}
		}
		return false, nil
	case specification.NotHiddenBy:
		return !c.IsHiddenBy(s.ProfileID), nil
	case specification.PendingOlderThan:
		return c.Status == entity.ConnectionStatusPending && c.CreatedAt.Before(s.Cutoff), nil
	case specification.LiveBetween:
		pair := (c.FromProfileId == s.A && c.ToProfileId == s.B) || (c.FromProfileId == s.B && c.ToProfileId == s.A)
		return pair && c.Status.IsLive(), nil
	}
	return false, fmt.Errorf("memory store: unsupported connection specification %T", spec)
}

func (q query) sortConnections(list []*entity.Connection) error {
	if q.order == nil {
		return nil
	}
	var key func(c *entity.Connection) time.Time
	switch q.order.Field {
	case "updated_at":
		key = func(c *entity.Connection) time.Time { return c.UpdatedAt }
	case "created_at":
		key = func(c *entity.Connection) time.Time { return c.CreatedAt }
	default:
		return fmt.Errorf("memory store: cannot order connections by %q", q.order.Field)
	}
	desc := q.order.Desc
	sort.SliceStable(list, func(i, j int) bool {
		if desc {
			return key(list[i]).After(key(list[j]))
		}
		return key(list[i]).Before(key(list[j]))
	})
	return nil
}

func paginate[T any](list []T, page *specification.Pagination) []T {
	if page == nil {
		return list
	}
	start := min(max(page.Offset, 0), len(list))
	list = list[start:]
	if page.Limit > 0 && page.Limit < len(list) {
		list = list[:page.Limit]
	}
	return list
}
