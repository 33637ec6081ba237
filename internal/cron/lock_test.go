package cron

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryRedis struct {
	values map[string]string
	ttls   map[string]time.Duration
}

func newMemoryRedis() *memoryRedis {
	return &memoryRedis{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryRedis) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	m.ttls[key] = ttl
	return true, nil
}

func (m *memoryRedis) DeleteIfValue(_ context.Context, key, value string) (bool, error) {
	if current, ok := m.values[key]; !ok || current != value {
		return false, nil
	}
	delete(m.values, key)
	return true, nil
}

func TestRedisLockExclusiveAcrossInstances(t *testing.T) {
	store := newMemoryRedis()
	first, err := NewRedisLock(store, "circ:lock:cron-worker", "worker.1", 0)
	require.NoError(t, err)
	second, err := NewRedisLock(store, "circ:lock:cron-worker", "worker.2", 0)
	require.NoError(t, err)
	ctx := context.Background()

	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, strings.HasPrefix(store.values["circ:lock:cron-worker"], "worker.1:"))
	require.Equal(t, defaultLockTTL, store.ttls["circ:lock:cron-worker"])

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	// a non-holder release leaves the key alone
	require.NoError(t, second.Release(ctx))
	require.Contains(t, store.values, "circ:lock:cron-worker")

	require.NoError(t, first.Release(ctx))
	require.NotContains(t, store.values, "circ:lock:cron-worker")

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRedisLockKeepsTakenOverKey(t *testing.T) {
	store := newMemoryRedis()
	lock, err := NewRedisLock(store, "k", "", time.Minute)
	require.NoError(t, err)
	ok, err := lock.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	store.values["k"] = "someone-else"
	require.NoError(t, lock.Release(context.Background()))
	require.Equal(t, "someone-else", store.values["k"])
}

func TestNewRedisLockValidates(t *testing.T) {
	_, err := NewRedisLock(nil, "k", "", 0)
	require.Error(t, err)
	_, err = NewRedisLock(newMemoryRedis(), "", "", 0)
	require.Error(t, err)
}
