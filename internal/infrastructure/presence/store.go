package presence

import (
	"context"
	"sync"
	"time"

	"github.com/hilthontt/chorus/internal/domain"
)

// Record is the stored presence of one user across all of their
// connections.
type Record struct {
	UserID      string
	Status      domain.PresenceStatus
	Connections int
	LastSeen    time.Time
}

// UpdateFunc derives the next record from the current one. It may run more
// than once when a store retries a conflicting write.
type UpdateFunc func(Record) Record

type Store interface {
	Update(ctx context.Context, userID string, fn UpdateFunc) (prev, next Record, err error)
	Get(ctx context.Context, userID string) (Record, error)
	// Stale lists users that are online and were last seen before the given
	// time.
	Stale(ctx context.Context, before time.Time) ([]string, error)
	// Touch extends the lifetime of a user's record without changing it.
	Touch(ctx context.Context, userID string) error
	// Expired returns the last known record of every user whose record
	// expired while not offline, and forgets them.
	Expired(ctx context.Context) ([]Record, error)
}

func offline(userID string) Record {
	return Record{UserID: userID, Status: domain.PresenceOffline}
}

type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Update(_ context.Context, userID string, fn UpdateFunc) (Record, Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.records[userID]
	if !ok {
		prev = offline(userID)
	}
	next := fn(prev)
	next.UserID = userID
	s.records[userID] = next
	return prev, next, nil
}

func (s *MemoryStore) Get(_ context.Context, userID string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.records[userID]; ok {
		return rec, nil
	}
	return offline(userID), nil
}

func (s *MemoryStore) Stale(_ context.Context, before time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for id, rec := range s.records {
		if rec.Status == domain.PresenceOnline && rec.LastSeen.Before(before) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Touch is a no-op; memory records never expire.
func (s *MemoryStore) Touch(context.Context, string) error { return nil }

func (s *MemoryStore) Expired(context.Context) ([]Record, error) { return nil, nil }
