package cache

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryCache is an in-process Cache used by tests and by components that
// want a Redis-free substitute. Expiry is evaluated lazily against the
// injected clock, which defaults to time.Now.
type MemoryCache struct {
	mu     sync.Mutex
	values map[string]memoryEntry
	hashes map[string]memoryHashEntry
	Now    func() time.Time
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

type memoryHashEntry struct {
	fields    map[string]string
	expiresAt time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		values: make(map[string]memoryEntry),
		hashes: make(map[string]memoryHashEntry),
		Now:    time.Now,
	}
}

func (c *MemoryCache) Ping(context.Context) error { return nil }

func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = memoryEntry{value: value, expiresAt: c.expiry(ttl)}
	return nil
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.liveEntry(key)
	if !ok {
		return nil, false, nil
	}
	return e.value, true, nil
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, key)
	delete(c.hashes, key)
	return nil
}

func (c *MemoryCache) IncrWithExpiry(_ context.Context, key string, expiry time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var count int64
	if e, ok := c.liveEntry(key); ok {
		count, _ = strconv.ParseInt(string(e.value), 10, 64)
	}
	count++
	c.values[key] = memoryEntry{value: []byte(strconv.FormatInt(count, 10)), expiresAt: c.expiry(expiry)}
	return count, nil
}

func (c *MemoryCache) TTL(_ context.Context, key string) (time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.liveEntry(key)
	if !ok || e.expiresAt.IsZero() {
		return 0, nil
	}
	d := e.expiresAt.Sub(c.Now())
	if d < 0 {
		return 0, nil
	}
	return d, nil
}

func (c *MemoryCache) HGetAll(_ context.Context, key string) (map[string]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	h, ok := c.hashes[key]
	if !ok || (!h.expiresAt.IsZero() && !c.Now().Before(h.expiresAt)) {
		return map[string]string{}, nil
	}
	out := make(map[string]string, len(h.fields))
	for k, v := range h.fields {
		out[k] = v
	}
	return out, nil
}

func (c *MemoryCache) HSetWithExpiry(_ context.Context, key string, fields map[string]string, expiry time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	h, ok := c.hashes[key]
	if !ok {
		h = memoryHashEntry{fields: make(map[string]string)}
	}
	for k, v := range fields {
		h.fields[k] = v
	}
	h.expiresAt = c.expiry(expiry)
	c.hashes[key] = h
	return nil
}

func (c *MemoryCache) SetJobStatus(ctx context.Context, jobID uuid.UUID, status string, ttl time.Duration) error {
	return c.Set(ctx, JobStatusKey(jobID), []byte(status), ttl)
}

func (c *MemoryCache) GetJobStatus(ctx context.Context, jobID uuid.UUID) (string, bool, error) {
	val, ok, err := c.Get(ctx, JobStatusKey(jobID))
	return string(val), ok, err
}

// liveEntry returns the entry for key, evicting it first if expired.
// Caller must hold the mutex.
func (c *MemoryCache) liveEntry(key string) (memoryEntry, bool) {
	e, ok := c.values[key]
	if !ok {
		return memoryEntry{}, false
	}
	if !e.expiresAt.IsZero() && !c.Now().Before(e.expiresAt) {
		delete(c.values, key)
		return memoryEntry{}, false
	}
	return e, true
}

func (c *MemoryCache) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return c.Now().Add(ttl)
}

var _ Cache = (*MemoryCache)(nil)
