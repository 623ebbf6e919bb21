// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

//go:build !integration && !acceptance

package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func TestCache_BasicOperations(t *testing.T) {
	c := New[string, string](time.Minute)
	defer c.Close()

	c.Set("key1", "value1")
	value, found := c.Get("key1")
	require.True(t, found)
	assert.Equal(t, "value1", value)

	_, found = c.Get("nonexistent")
	assert.False(t, found)

	c.Set("key2", "value2")
	assert.Equal(t, 2, c.Size())

	c.Delete("key1")
	_, found = c.Get("key1")
	assert.False(t, found)
	assert.Equal(t, 1, c.Size())

	c.Clear()
	assert.Equal(t, 0, c.Size())
}

func TestCache_TTL(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New[string, string](time.Minute, WithClock(clock.Now), WithCleanupInterval(0))
	defer c.Close()

	c.Set("key1", "value1")
	_, found := c.Get("key1")
	require.True(t, found)

	clock.Advance(59 * time.Second)
	_, found = c.Get("key1")
	assert.True(t, found)

	clock.Advance(2 * time.Second)
	_, found = c.Get("key1")
	assert.False(t, found)
	assert.Equal(t, 1, c.Size())

	c.evictExpired()
	assert.Equal(t, 0, c.Size())
}

func TestCache_Cleanup(t *testing.T) {
	c := New[string, string](50 * time.Millisecond)
	defer c.Close()

	c.Set("key1", "value1")
	c.Set("key2", "value2")
	assert.Equal(t, 2, c.Size())

	assert.Eventually(t, func() bool {
		return c.Size() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestCache_GetOrLoad(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New[string, int](time.Minute, WithClock(clock.Now), WithCleanupInterval(0))
	defer c.Close()

	var loads atomic.Int32
	load := func(context.Context) (int, error) {
		return int(loads.Add(1)), nil
	}

	value, err := c.GetOrLoad(ctx, "k", load)
	require.NoError(t, err)
	assert.Equal(t, 1, value)

	value, err = c.GetOrLoad(ctx, "k", load)
	require.NoError(t, err)
	assert.Equal(t, 1, value)

	clock.Advance(2 * time.Minute)
	value, err = c.GetOrLoad(ctx, "k", load)
	require.NoError(t, err)
	assert.Equal(t, 2, value)
}

func TestCache_GetOrLoadErrorNotCached(t *testing.T) {
	ctx := context.Background()
	c := New[string, int](time.Minute)
	defer c.Close()

	_, err := c.GetOrLoad(ctx, "k", func(context.Context) (int, error) {
		return 0, errors.New("db down")
	})
	assert.EqualError(t, err, "db down")

	value, err := c.GetOrLoad(ctx, "k", func(context.Context) (int, error) {
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, value)
}

func TestCache_GetOrLoadSharesConcurrentMisses(t *testing.T) {
	ctx := context.Background()
	c := New[string, int](time.Minute)
	defer c.Close()

	release := make(chan struct{})
	started := make(chan struct{})
	var loads atomic.Int32

	load := func(context.Context) (int, error) {
		if loads.Add(1) == 1 {
			close(started)
		}
		<-release
		return 42, nil
	}

	var wg sync.WaitGroup
	results := make([]int, 8)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], _ = c.GetOrLoad(ctx, "k", load)
	}()
	<-started

	for i := 1; i < len(results); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], _ = c.GetOrLoad(ctx, "k", load)
		}()
	}

	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), loads.Load())
	for _, r := range results {
		assert.Equal(t, 42, r)
	}
}

func TestCache_GetOrLoadPanicReleasesKey(t *testing.T) {
	ctx := context.Background()
	c := New[string, int](time.Minute)
	defer c.Close()

	func() {
		defer func() {
			assert.NotNil(t, recover())
		}()
		_, _ = c.GetOrLoad(ctx, "k", func(context.Context) (int, error) {
			panic("loader exploded")
		})
	}()

	done := make(chan struct{})
	var value int
	var err error
	go func() {
		defer close(done)
		value, err = c.GetOrLoad(ctx, "k", func(context.Context) (int, error) {
			return 9, nil
		})
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("GetOrLoad blocked after a panicking load")
	}
	require.NoError(t, err)
	assert.Equal(t, 9, value)
}

func TestCache_GetOrLoadIgnoresCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := New[string, int](time.Minute)
	defer c.Close()

	value, err := c.GetOrLoad(ctx, "k", func(loadCtx context.Context) (int, error) {
		if err := loadCtx.Err(); err != nil {
			return 0, err
		}
		return 5, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 5, value)
}
