package rbac

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultCacheTTL bounds how long a role's permission set is served from memory.
	DefaultCacheTTL = 5 * time.Minute

	invalidateChannel = "rbac.permissions.invalidate"
	allRolesToken     = "*"
)

type cacheEntry struct {
	permissions map[string]struct{}
	loadedAt    time.Time
}

// Cache is a process-local, per-role permission cache with TTL expiry.
// When a redis client is attached, invalidations are broadcast to peers.
type Cache struct {
	mu          sync.RWMutex
	entries     map[Role]cacheEntry
	generations map[Role]uint64
	epoch       uint64
	ttl         time.Duration
	now         func() time.Time
	client      *redis.Client
	logger      *slog.Logger
}

// CacheOption configures the cache.
type CacheOption func(*Cache)

// WithTTL sets the entry time-to-live.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithBroadcast publishes invalidations on redis so other processes drop their entries.
func WithBroadcast(client *redis.Client) CacheOption {
	return func(c *Cache) { c.client = client }
}

// WithCacheLogger sets the logger used by the invalidation listener.
func WithCacheLogger(logger *slog.Logger) CacheOption {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCache creates a permission cache.
func NewCache(opts ...CacheOption) *Cache {
	c := &Cache{
		entries:     make(map[Role]cacheEntry),
		generations: make(map[Role]uint64),
		ttl:         DefaultCacheTTL,
		now:         time.Now,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached permission set for role while it is fresh.
// The returned set must be treated as read-only.
func (c *Cache) Get(role Role) (map[string]struct{}, bool) {
	c.mu.RLock()
	e, ok := c.entries[role]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.loadedAt) >= c.ttl {
		c.mu.Lock()
		if cur, ok := c.entries[role]; ok && cur.loadedAt.Equal(e.loadedAt) {
			delete(c.entries, role)
		}
		c.mu.Unlock()
		return nil, false
	}
	return e.permissions, true
}

// Set stores a freshly loaded permission set.
func (c *Cache) Set(role Role, permissions map[string]struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[role] = cacheEntry{permissions: permissions, loadedAt: c.now()}
}

// Generation identifies the invalidation state of role. Every Clear that
// covers role changes it.
func (c *Cache) Generation(role Role) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.epoch + c.generations[role]
}

// SetIfCurrent stores permissions only when no Clear covering role happened
// since gen was read, so a load that raced an invalidation is dropped.
func (c *Cache) SetIfCurrent(role Role, permissions map[string]struct{}, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch+c.generations[role] != gen {
		return false
	}
	c.entries[role] = cacheEntry{permissions: permissions, loadedAt: c.now()}
	return true
}

// Clear drops the local entry for role, or every entry when role is empty.
func (c *Cache) Clear(role Role) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if role == "" {
		c.entries = make(map[Role]cacheEntry)
		c.epoch++
		return
	}
	delete(c.entries, role)
	c.generations[role]++
}

// Invalidate clears locally and, when broadcasting, notifies peer processes.
func (c *Cache) Invalidate(ctx context.Context, role Role) error {
	c.Clear(role)
	if c.client == nil {
		return nil
	}
	payload := string(role)
	if role == "" {
		payload = allRolesToken
	}
	return c.client.Publish(ctx, invalidateChannel, payload).Err()
}

// ListenForInvalidation subscribes to peer invalidations until ctx is done.
// It returns once the subscription is confirmed.
func (c *Cache) ListenForInvalidation(ctx context.Context) error {
	if c.client == nil {
		return nil
	}
	pubsub := c.client.Subscribe(ctx, invalidateChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if msg.Payload == allRolesToken {
					c.Clear("")
				} else {
					c.Clear(Role(msg.Payload))
				}
				c.logger.Debug("permission cache invalidated", slog.String("role", msg.Payload))
			}
		}
	}()
	return nil
}
