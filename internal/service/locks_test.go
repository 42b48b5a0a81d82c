package service

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	km := newKeyedMutex()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("doc-1")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	km.mu.Lock()
	assert.Empty(t, km.locks, "entries must be reclaimed once unused")
	km.mu.Unlock()
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	km := newKeyedMutex()

	unlockA := km.Lock("doc-a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB := km.Lock("doc-b")
		unlockB()
		close(done)
	}()

	// holding doc-a must not block doc-b
	<-done
}
