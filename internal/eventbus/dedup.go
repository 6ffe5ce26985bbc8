package eventbus

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DedupStore remembers processed message ids within a bounded retention
// window so duplicate deliveries can be dropped before they reach a handler.
// A message id is only marked after its handler succeeds; failed deliveries
// stay eligible for redelivery.
type DedupStore interface {
	Seen(ctx context.Context, id string) (bool, error)
	MarkProcessed(ctx context.Context, id string) error
}

// MemoryDedupStore keeps the processed-id set in process memory. Suitable for
// a single consumer process; use the Redis store when consumers compete.
type MemoryDedupStore struct {
	mu     sync.Mutex
	window time.Duration
	seen   map[string]time.Time
	now    func() time.Time
}

// NewMemoryDedupStore creates an in-process store retaining ids for window.
func NewMemoryDedupStore(window time.Duration) *MemoryDedupStore {
	return &MemoryDedupStore{
		window: window,
		seen:   make(map[string]time.Time),
		now:    time.Now,
	}
}

func (s *MemoryDedupStore) Seen(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweep()
	_, ok := s.seen[id]
	return ok, nil
}

func (s *MemoryDedupStore) MarkProcessed(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweep()
	s.seen[id] = s.now()
	return nil
}

// sweep drops entries older than the retention window. Called with the lock held.
func (s *MemoryDedupStore) sweep() {
	cutoff := s.now().Add(-s.window)
	for id, at := range s.seen {
		if at.Before(cutoff) {
			delete(s.seen, id)
		}
	}
}

// RedisDedupStore shares the processed-id set across competing consumers.
// Retention is enforced by key TTL.
type RedisDedupStore struct {
	client *redis.Client
	window time.Duration
	prefix string
}

// NewRedisDedupStore creates a store on the given client. The prefix
// namespaces keys per consuming service.
func NewRedisDedupStore(client *redis.Client, prefix string, window time.Duration) *RedisDedupStore {
	return &RedisDedupStore{client: client, window: window, prefix: prefix}
}

func (s *RedisDedupStore) key(id string) string {
	return s.prefix + ":processed:" + id
}

func (s *RedisDedupStore) Seen(ctx context.Context, id string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(id)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *RedisDedupStore) MarkProcessed(ctx context.Context, id string) error {
	return s.client.Set(ctx, s.key(id), 1, s.window).Err()
}
