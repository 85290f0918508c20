package syncutil

import (
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedMutexSerialisesSameKey(t *testing.T) {
	km := NewKeyedMutex()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("room")
			defer unlock()
			v := counter
			counter = v + 1
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Equal(t, 0, km.Len(), "released keys are dropped")
}

func TestKeyedMutexDistinctKeysDoNotBlock(t *testing.T) {
	km := NewKeyedMutex()
	unlockA := km.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := km.Lock("b")
		unlock()
		close(done)
	}()
	<-done
}

func TestKeyedMutexUnlockIsIdempotent(t *testing.T) {
	km := NewKeyedMutex()
	unlock := km.Lock("a")
	unlock()
	unlock()
	assert.Equal(t, 0, km.Len())
}

func TestShardedMapUpdateAndSweep(t *testing.T) {
	m := NewShardedMap[int](4)
	for i := 0; i < 20; i++ {
		key := strconv.Itoa(i)
		m.Update(key, func(_ int, _ bool) (int, bool) { return i, true })
	}
	require.Equal(t, 20, m.Len())

	m.Sweep(func(_ string, v int) (int, bool) { return v * 10, v%2 == 0 })
	assert.Equal(t, 10, m.Len())

	v, ok := m.Get("4")
	require.True(t, ok)
	assert.Equal(t, 40, v)

	_, ok = m.Get("5")
	assert.False(t, ok)
}

func TestShardedMapUpdateDropsWhenNotKept(t *testing.T) {
	m := NewShardedMap[string](0)
	m.Update("k", func(string, bool) (string, bool) { return "v", true })
	m.Update("k", func(string, bool) (string, bool) { return "", false })
	_, ok := m.Get("k")
	assert.False(t, ok)
}
