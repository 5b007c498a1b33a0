package sync

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShardedMutexSerializesSameKey(t *testing.T) {
	m := NewShardedMutex()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Lock("owner-a")
			counter++
			m.Unlock("owner-a")
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, counter)
}

func TestShardedMutexEmptyKeyDefaultsToShardZero(t *testing.T) {
	m := NewShardedMutex()
	assert.Equal(t, 0, m.shardFor(""))
}

func TestShardForIsStable(t *testing.T) {
	m := NewShardedMutex()
	assert.Equal(t, m.shardFor("owner-1"), m.shardFor("owner-1"))
}
