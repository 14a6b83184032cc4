package memory

import (
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// DedupStore remembers client message keys for a short window so a retried
// SendMessage does not append twice.
type DedupStore struct {
	cache *cache.Cache
}

func NewDedupStore(window time.Duration) *DedupStore {
	return &DedupStore{
		cache: cache.New(window, 2*window),
	}
}

func dedupKey(connectionId, senderId uuid.UUID, clientKey string) string {
	return connectionId.String() + ":" + senderId.String() + ":" + clientKey
}

// Claim returns false if the key was already claimed inside the window.
func (s *DedupStore) Claim(connectionId, senderId uuid.UUID, clientKey string) bool {
	return s.cache.Add(dedupKey(connectionId, senderId, clientKey), struct{}{}, cache.DefaultExpiration) == nil
}

// Release forgets a claim, used when the write it guarded failed.
func (s *DedupStore) Release(connectionId, senderId uuid.UUID, clientKey string) {
	s.cache.Delete(dedupKey(connectionId, senderId, clientKey))
}
