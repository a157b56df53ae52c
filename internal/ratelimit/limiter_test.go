package ratelimit

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAllow_WithinLimit(t *testing.T) {
	t.Parallel()

	l := New(Policy{Limit: 3, Window: time.Minute})
	now := time.Now()

	require.True(t, l.Allow("ip", now))
	require.True(t, l.Allow("ip", now))
	require.True(t, l.Allow("ip", now))
	require.False(t, l.Allow("ip", now))
}

func TestAllow_SlidingWindow(t *testing.T) {
	t.Parallel()

	l := New(Policy{Limit: 2, Window: time.Minute})
	now := time.Now()

	require.True(t, l.Allow("ip", now))
	require.True(t, l.Allow("ip", now.Add(30*time.Second)))
	require.False(t, l.Allow("ip", now.Add(40*time.Second)))

	// Первое событие покинуло окно: освободился один слот.
	require.True(t, l.Allow("ip", now.Add(61*time.Second)))
	require.False(t, l.Allow("ip", now.Add(62*time.Second)))
}

func TestAllow_KeysAreIndependent(t *testing.T) {
	t.Parallel()

	l := New(Policy{Limit: 1, Window: time.Minute})
	now := time.Now()

	require.True(t, l.Allow("a", now))
	require.False(t, l.Allow("a", now))
	require.True(t, l.Allow("b", now))
}

func TestAllow_ZeroLimitDisables(t *testing.T) {
	t.Parallel()

	l := New(Policy{Limit: 0, Window: time.Minute})
	now := time.Now()

	for i := 0; i < 1000; i++ {
		require.True(t, l.Allow("ip", now))
	}
}

func TestForgive_ReleasesSlot(t *testing.T) {
	t.Parallel()

	l := New(Policy{Limit: 2, Window: time.Minute})
	now := time.Now()

	require.True(t, l.Allow("ip", now))
	require.True(t, l.Allow("ip", now))
	require.False(t, l.Allow("ip", now))

	// Успешный вызов не считается: слот возвращается.
	l.Forgive("ip")
	require.True(t, l.Allow("ip", now))
	require.False(t, l.Allow("ip", now))
}

func TestForgive_UnknownKeyNoop(t *testing.T) {
	t.Parallel()

	l := New(Policy{Limit: 1, Window: time.Minute})
	l.Forgive("ghost")
	require.True(t, l.Allow("ghost", time.Now()))
}

func TestSweep_DropsStaleKeys(t *testing.T) {
	t.Parallel()

	l := New(Policy{Limit: 5, Window: time.Minute})
	now := time.Now()

	l.Allow("old", now)
	l.Allow("fresh", now.Add(50*time.Second))

	l.Sweep(now.Add(70 * time.Second))

	l.mu.Lock()
	_, oldKept := l.buckets["old"]
	_, freshKept := l.buckets["fresh"]
	l.mu.Unlock()

	require.False(t, oldKept)
	require.True(t, freshKept)
}

func TestAllow_Concurrent(t *testing.T) {
	t.Parallel()

	const (
		limit   = 50
		workers = 8
		perW    = 25
	)

	l := New(Policy{Limit: limit, Window: time.Minute})
	now := time.Now()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perW; i++ {
				if l.Allow("ip", now) {
					mu.Lock()
					allowed++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	// 200 конкурентных попыток, проходит ровно limit.
	require.Equal(t, limit, allowed)
}

func TestAllow_ManyKeys(t *testing.T) {
	t.Parallel()

	l := New(Policy{Limit: 1, Window: time.Minute})
	now := time.Now()

	for i := 0; i < 100; i++ {
		key := fmt.Sprintf("10.0.0.%d", i)
		require.True(t, l.Allow(key, now))
		require.False(t, l.Allow(key, now))
	}
}
