// Package cache provides the in-process response cache used by the
// enhancement gateway. Entries expire after a TTL; expiry is checked on
// every read and a background sweep purges expired entries to bound memory.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/LazyMisha/prmptlaba/internal/apperr"
)

// DefaultSweepInterval is used when New receives a non-positive interval.
const DefaultSweepInterval = time.Minute

type entry[T any] struct {
	value     T
	expiresAt time.Time
}

// Cache is a TTL cache safe for concurrent use. The zero value is not
// usable; construct with New.
type Cache[T any] struct {
	items      *gocache.Cache
	defaultTTL time.Duration
	sweepEvery time.Duration
	now        func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Option customises a Cache.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces time.Now for expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New creates a cache. A non-positive defaultTTL is a caller bug and is
// reported as a configuration error.
func New[T any](defaultTTL, sweepInterval time.Duration, opts ...Option) (*Cache[T], error) {
	if defaultTTL <= 0 {
		return nil, apperr.NewConfiguration("cache default TTL must be positive, got %s", defaultTTL)
	}
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	return &Cache[T]{
		// The go-cache janitor cannot be stopped, so it is disabled and
		// the sweep runs under Start/Stop instead.
		items:      gocache.New(defaultTTL, -1),
		defaultTTL: defaultTTL,
		sweepEvery: sweepInterval,
		now:        o.now,
	}, nil
}

// Set stores v under key. A non-positive ttl uses the default TTL.
func (c *Cache[T]) Set(key string, v T, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.items.Set(key, entry[T]{value: v, expiresAt: c.now().Add(ttl)}, ttl)
}

// Get returns the value for key. Entries at or past their expiry are
// reported absent.
func (c *Cache[T]) Get(key string) (T, bool) {
	var zero T
	raw, ok := c.items.Get(key)
	if !ok {
		return zero, false
	}
	e := raw.(entry[T])
	if !c.now().Before(e.expiresAt) {
		c.items.Delete(key)
		return zero, false
	}
	return e.value, true
}

// Has reports whether Get would return a value for key.
func (c *Cache[T]) Has(key string) bool {
	_, ok := c.Get(key)
	return ok
}

// Delete removes key. Missing keys are ignored.
func (c *Cache[T]) Delete(key string) {
	c.items.Delete(key)
}

// Clear removes every entry.
func (c *Cache[T]) Clear() {
	c.items.Flush()
}

// Size returns the number of unexpired entries.
func (c *Cache[T]) Size() int {
	now := c.now()
	n := 0
	for _, it := range c.items.Items() {
		if e, ok := it.Object.(entry[T]); ok && now.Before(e.expiresAt) {
			n++
		}
	}
	return n
}

// Start launches the background sweep. It runs until ctx is done or Stop
// is called. Calling Start on a running cache is a no-op.
func (c *Cache[T]) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})

	go c.run(ctx, c.done)
}

// Stop halts the background sweep and waits for it to exit. Safe to call
// more than once and on a cache that was never started.
func (c *Cache[T]) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (c *Cache[T]) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(c.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

// sweep drops every entry that is expired by either clock.
func (c *Cache[T]) sweep() int {
	c.items.DeleteExpired()

	now := c.now()
	removed := 0
	for k, it := range c.items.Items() {
		if e, ok := it.Object.(entry[T]); ok && !now.Before(e.expiresAt) {
			c.items.Delete(k)
			removed++
		}
	}
	return removed
}

// keySeparator is the ASCII unit separator. Parts are also length
// prefixed, so no choice of part contents can make two inputs collide.
const keySeparator = 0x1f

// GenerateKey derives a cache key from parts with SHA-256. Each part is
// written as "<len>:<bytes>" followed by a separator.
func GenerateKey(parts ...string) string {
	h := sha256.New()
	buf := make([]byte, 0, 64)
	for _, p := range parts {
		buf = buf[:0]
		buf = strconv.AppendInt(buf, int64(len(p)), 10)
		buf = append(buf, ':')
		h.Write(buf)
		h.Write([]byte(p))
		h.Write([]byte{keySeparator})
	}
	return hex.EncodeToString(h.Sum(nil))
}
