// Package lag implements the Replica-Lag Tracker: per-(database,shard)
// last-write timestamps and sticky-primary windows deciding whether a read
// may be served by a replica. State lives in-process by default; an
// optional Redis-backed store (also usable against DragonflyDB, which is
// Redis protocol-compatible) lets last_write_at and sticky_until survive
// restarts and stay visible across instances.
package lag

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// state is the per-(D,S) lag record. sticky_until >= last_write_at
// whenever sticky_until is set, per §3's invariant.
type state struct {
	LastWriteAt time.Time  `json:"last_write_at"`
	StickyUntil *time.Time `json:"sticky_until,omitempty"`
}

type key struct {
	Database string
	Shard    string
}

// Store persists lag state. Tracker uses an in-memory Store by default;
// NewRedisStore adapts it onto a shared Redis/DragonflyDB backend.
type Store interface {
	Load(ctx context.Context, database, shard string) (state, bool, error)
	Save(ctx context.Context, database, shard string, s state) error
}

// memStore is the default in-process Store.
type memStore struct {
	mu   sync.RWMutex
	data map[key]state
}

func newMemStore() *memStore {
	return &memStore{data: make(map[key]state)}
}

func (m *memStore) Load(ctx context.Context, database, shard string) (state, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.data[key{database, shard}]
	return s, ok, nil
}

func (m *memStore) Save(ctx context.Context, database, shard string, s state) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key{database, shard}] = s
	return nil
}

// RedisStore persists lag state as JSON-encoded values under a key-prefix
// scheme: prefix + "database:shard".
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore wraps an existing *redis.Client (a real server, a
// DragonflyDB instance, or a miniredis in tests) as a lag Store.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "multidb:lag:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) redisKey(database, shard string) string {
	return fmt.Sprintf("%s%s:%s", r.prefix, database, shard)
}

func (r *RedisStore) Load(ctx context.Context, database, shard string) (state, bool, error) {
	raw, err := r.client.Get(ctx, r.redisKey(database, shard)).Bytes()
	if err == redis.Nil {
		return state{}, false, nil
	}
	if err != nil {
		return state{}, false, fmt.Errorf("loading lag state: %w", err)
	}
	var s state
	if err := json.Unmarshal(raw, &s); err != nil {
		return state{}, false, fmt.Errorf("decoding lag state: %w", err)
	}
	return s, true, nil
}

func (r *RedisStore) Save(ctx context.Context, database, shard string, s state) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding lag state: %w", err)
	}
	return r.client.Set(ctx, r.redisKey(database, shard), raw, 0).Err()
}

// Tracker answers "should this read go to a replica?" per §4.6's policy
// and records writes.
type Tracker struct {
	store         Store
	defaultThresh time.Duration
	defaultSticky time.Duration
}

// New constructs a Tracker backed by the in-memory Store.
func New(defaultThreshold, defaultSticky time.Duration) *Tracker {
	return &Tracker{store: newMemStore(), defaultThresh: defaultThreshold, defaultSticky: defaultSticky}
}

// NewWithStore constructs a Tracker backed by an arbitrary Store (e.g. a
// RedisStore shared across processes).
func NewWithStore(store Store, defaultThreshold, defaultSticky time.Duration) *Tracker {
	return &Tracker{store: store, defaultThresh: defaultThreshold, defaultSticky: defaultSticky}
}

// RecordWrite stamps last_write_at = now for (database, shard). Every
// successful write through an adapter calls this.
func (t *Tracker) RecordWrite(ctx context.Context, database, shard string) error {
	s, ok, err := t.store.Load(ctx, database, shard)
	if err != nil {
		return err
	}
	if !ok {
		s = state{}
	}
	s.LastWriteAt = time.Now()
	if s.StickyUntil != nil && s.StickyUntil.Before(s.LastWriteAt) {
		s.StickyUntil = nil
	}
	return t.store.Save(ctx, database, shard, s)
}

// StickToPrimary sets sticky_until = now + dur for (database, shard).
func (t *Tracker) StickToPrimary(ctx context.Context, database, shard string, dur time.Duration) error {
	if dur <= 0 {
		dur = t.defaultSticky
	}
	s, ok, err := t.store.Load(ctx, database, shard)
	if err != nil {
		return err
	}
	if !ok {
		s = state{LastWriteAt: time.Now()}
	}
	until := time.Now().Add(dur)
	s.StickyUntil = &until
	return t.store.Save(ctx, database, shard, s)
}

// AllowReplicaRead implements the §4.6 policy: deny if a forced-write
// context is active, if a recent write occurred within threshold, if
// sticky_until has not elapsed, or if replicaHealthy reports no healthy
// member. threshold of zero uses the Tracker's default.
func (t *Tracker) AllowReplicaRead(ctx context.Context, database, shard string, forceWriting bool, threshold time.Duration, replicaHealthy bool) (bool, error) {
	if forceWriting {
		return false, nil
	}
	if !replicaHealthy {
		return false, nil
	}
	if threshold <= 0 {
		threshold = t.defaultThresh
	}

	s, ok, err := t.store.Load(ctx, database, shard)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}

	now := time.Now()
	if s.StickyUntil != nil && s.StickyUntil.After(now) {
		return false, nil
	}
	age := now.Sub(s.LastWriteAt)
	if age < threshold {
		return false, nil
	}
	return true, nil
}
