package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/nats-io/nats.go/jetstream"
)

// Bucket names for each record type.
const (
	BucketReports     = "CIVIC_REPORTS"
	BucketProfiles    = "CIVIC_PROFILES"
	BucketCredentials = "CIVIC_CREDENTIALS"
	BucketCalls       = "CIVIC_AI_CALLS"
)

// Bucket is the key/value surface the Store needs.
// Implementations map missing keys to ErrNotFound and lost races to ErrConflict.
type Bucket interface {
	// Get returns the value and its revision.
	Get(ctx context.Context, key string) ([]byte, uint64, error)

	// Create stores value only if key does not exist yet.
	Create(ctx context.Context, key string, value []byte) error

	// Put stores value unconditionally.
	Put(ctx context.Context, key string, value []byte) error

	// Update stores value only if key is still at revision.
	Update(ctx context.Context, key string, value []byte, revision uint64) error

	// Keys lists every key. An empty bucket returns no keys and no error.
	Keys(ctx context.Context) ([]string, error)
}

// kvBucket adapts a JetStream KV bucket.
type kvBucket struct {
	kv jetstream.KeyValue
}

// NewKVBucket wraps a JetStream KV bucket.
func NewKVBucket(kv jetstream.KeyValue) Bucket {
	return &kvBucket{kv: kv}
}

func (b *kvBucket) Get(ctx context.Context, key string) ([]byte, uint64, error) {
	entry, err := b.kv.Get(ctx, key)
	if err != nil {
		if isNotFound(err) {
			return nil, 0, ErrNotFound
		}
		return nil, 0, err
	}
	return entry.Value(), entry.Revision(), nil
}

func (b *kvBucket) Create(ctx context.Context, key string, value []byte) error {
	if _, err := b.kv.Create(ctx, key, value); err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (b *kvBucket) Put(ctx context.Context, key string, value []byte) error {
	_, err := b.kv.Put(ctx, key, value)
	return err
}

func (b *kvBucket) Update(ctx context.Context, key string, value []byte, revision uint64) error {
	if _, err := b.kv.Update(ctx, key, value, revision); err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (b *kvBucket) Keys(ctx context.Context) ([]string, error) {
	keys, err := b.kv.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, err
	}
	return keys, nil
}

// bucketConfig returns the default configuration for a record bucket.
func bucketConfig(name string) jetstream.KeyValueConfig {
	return jetstream.KeyValueConfig{
		Bucket:      name,
		Description: fmt.Sprintf("Civic report %s storage", strings.ToLower(strings.TrimPrefix(name, "CIVIC_"))),
		History:     5, // Keep last 5 revisions
	}
}

func getOrCreateBucket(ctx context.Context, js jetstream.JetStream, cfg jetstream.KeyValueConfig) (jetstream.KeyValue, error) {
	kv, err := js.KeyValue(ctx, cfg.Bucket)
	if err == nil {
		return kv, nil
	}
	// Bucket doesn't exist, create it
	return js.CreateKeyValue(ctx, cfg)
}

// isNotFound checks if an error indicates a key was not found.
func isNotFound(err error) bool {
	if errors.Is(err, jetstream.ErrKeyNotFound) || errors.Is(err, jetstream.ErrKeyDeleted) {
		return true
	}
	return err != nil && strings.Contains(err.Error(), "key not found")
}

// MemoryBucket is an in-process Bucket for tests and local runs without NATS.
type MemoryBucket struct {
	mu       sync.RWMutex
	values   map[string][]byte
	revs     map[string]uint64
	sequence uint64
}

// NewMemoryBucket creates an empty MemoryBucket.
func NewMemoryBucket() *MemoryBucket {
	return &MemoryBucket{
		values: make(map[string][]byte),
		revs:   make(map[string]uint64),
	}
}

func (m *MemoryBucket) Get(_ context.Context, key string) ([]byte, uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.values[key]
	if !ok {
		return nil, 0, ErrNotFound
	}
	return append([]byte(nil), v...), m.revs[key], nil
}

func (m *MemoryBucket) Create(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.values[key]; ok {
		return ErrConflict
	}
	m.store(key, value)
	return nil
}

func (m *MemoryBucket) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.store(key, value)
	return nil
}

func (m *MemoryBucket) Update(_ context.Context, key string, value []byte, revision uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.revs[key] != revision {
		return ErrConflict
	}
	m.store(key, value)
	return nil
}

func (m *MemoryBucket) Keys(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.values))
	for k := range m.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// store must be called with mu held.
func (m *MemoryBucket) store(key string, value []byte) {
	m.sequence++
	m.values[key] = append([]byte(nil), value...)
	m.revs[key] = m.sequence
}
