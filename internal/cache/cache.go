// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package cache provides a TTL cache used in front of slow repositories.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Entry is a cached value and the time it stops being served
type Entry[T any] struct {
	Value     T
	ExpiresAt time.Time
}

func (e *Entry[T]) expiredAt(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// Loader produces the value for a cache miss
type Loader[V any] func(ctx context.Context) (V, error)

// Cache is an in-memory cache with TTL expiry. Concurrent misses for the
// same key share a single load.
type Cache[K comparable, V any] struct {
	mu       sync.RWMutex
	entries  map[K]*Entry[V]
	sf       singleflight.Group
	ttl      time.Duration
	now      func() time.Time
	stopChan chan struct{}
	once     sync.Once
}

// Option configures a Cache
type Option func(*options)

type options struct {
	now             func() time.Time
	cleanupInterval time.Duration
}

// WithClock sets the time source used for expiry
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithCleanupInterval sets how often expired entries are evicted. Defaults to the TTL.
func WithCleanupInterval(interval time.Duration) Option {
	return func(o *options) {
		o.cleanupInterval = interval
	}
}

// New creates a cache whose entries live for ttl
func New[K comparable, V any](ttl time.Duration, opts ...Option) *Cache[K, V] {
	o := options{now: time.Now, cleanupInterval: ttl}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Cache[K, V]{
		entries:  make(map[K]*Entry[V]),
		ttl:      ttl,
		now:      o.now,
		stopChan: make(chan struct{}),
	}

	if o.cleanupInterval > 0 {
		go c.cleanupLoop(o.cleanupInterval)
	}

	return c
}

// Get returns the cached value for key if it has not expired
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.entries[key]
	if !exists || entry.expiredAt(c.now()) {
		var zero V
		return zero, false
	}

	return entry.Value, true
}

// Set stores value under key for the cache's TTL
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = &Entry[V]{
		Value:     value,
		ExpiresAt: c.now().Add(c.ttl),
	}
}

// GetOrLoad returns the cached value for key, calling load on a miss.
// Concurrent misses for one key share a single load, which runs without the
// caller's cancellation so one caller giving up does not fail the others.
// Errors are returned to every waiter and are not cached. A panicking load
// is re-raised in every waiting caller and the key is released.
func (c *Cache[K, V]) GetOrLoad(ctx context.Context, key K, load Loader[V]) (V, error) {
	if value, ok := c.Get(key); ok {
		return value, nil
	}

	loadCtx := context.WithoutCancel(ctx)
	result, err, _ := c.sf.Do(fmt.Sprint(key), func() (any, error) {
		if value, ok := c.Get(key); ok {
			return value, nil
		}
		value, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		c.Set(key, value)
		return value, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return result.(V), nil
}

// Delete removes key
func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
}

// Clear removes every entry
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[K]*Entry[V])
}

// Size returns the number of stored entries, expired ones included until evicted
func (c *Cache[K, V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}

// Close stops the cleanup goroutine
func (c *Cache[K, V]) Close() {
	c.once.Do(func() {
		close(c.stopChan)
	})
}

func (c *Cache[K, V]) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.evictExpired()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Cache[K, V]) evictExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, entry := range c.entries {
		if entry.expiredAt(now) {
			delete(c.entries, key)
		}
	}
}
