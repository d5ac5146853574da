// Package idempotency deduplicates form submissions. A submission carrying
// an X-Idempotency-Key is answered from the stored record when the same key
// is replayed with the same input.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pitabwire/marketdesk/model"
)

// Record is the stored outcome of a submission.
type Record struct {
	InputHash string          `json:"input_hash"`
	Status    int             `json:"status"`
	Body      json.RawMessage `json:"body"`
}

// Store looks up and saves submission outcomes.
type Store interface {
	// Check returns the record saved under key. A record saved with a
	// different input hash yields a CONFLICT error.
	Check(ctx context.Context, key, inputHash string) (rec *Record, found bool, err error)

	// Save stores rec under key for ttl.
	Save(ctx context.Context, key string, rec Record, ttl time.Duration) error
}

// Key builds the storage key of a submission. Keys are scoped to the admin
// and the collection so two admins cannot collide.
func Key(subjectID, collection, key string) string {
	return fmt.Sprintf("idem:%s:%s:%s", subjectID, collection, key)
}

// HashInput returns a digest of a JSON document that does not depend on
// member order or whitespace. Non-JSON input is hashed as is.
func HashInput(raw []byte) string {
	var v any
	if err := json.Unmarshal(raw, &v); err == nil {
		if canon, err := json.Marshal(v); err == nil {
			raw = canon
		}
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func conflict(key string) error {
	return model.NewConflictError(fmt.Sprintf("idempotency key %q already used with different input", key))
}

// MemoryStore is an in-process Store for single-instance deployments and
// tests.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memEntry
	now     func() time.Time
}

type memEntry struct {
	rec       Record
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memEntry), now: time.Now}
}

func (s *MemoryStore) Check(_ context.Context, key, inputHash string) (*Record, bool, error) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}

	if s.now().After(entry.expiresAt) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return nil, false, nil
	}

	if entry.rec.InputHash != inputHash {
		return nil, true, conflict(key)
	}
	rec := entry.rec
	return &rec, true, nil
}

func (s *MemoryStore) Save(_ context.Context, key string, rec Record, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memEntry{rec: rec, expiresAt: s.now().Add(ttl)}
	return nil
}

// Len returns the number of entries, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// RedisStore keeps records in Redis with native expiry.
type RedisStore struct {
	client redis.UniversalClient
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Check(ctx context.Context, key, inputHash string) (*Record, bool, error) {
	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("idempotency: redis get %q: %w", key, err)
	}

	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, false, fmt.Errorf("idempotency: decode %q: %w", key, err)
	}
	if rec.InputHash != inputHash {
		return nil, true, conflict(key)
	}
	return &rec, true, nil
}

func (s *RedisStore) Save(ctx context.Context, key string, rec Record, ttl time.Duration) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("idempotency: encode record: %w", err)
	}
	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("idempotency: redis set %q: %w", key, err)
	}
	return nil
}

// HealthCheck pings Redis.
func (s *RedisStore) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
