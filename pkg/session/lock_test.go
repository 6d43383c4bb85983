package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	km := NewKeyedMutex()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("user-1")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, counter)
}

func TestKeyedMutex_IndependentKeys(t *testing.T) {
	km := NewKeyedMutex()

	unlockA := km.Lock("user-a")
	defer unlockA()

	// A held lock on one user must not block another user.
	done := make(chan struct{})
	go func() {
		unlockB := km.Lock("user-b")
		unlockB()
		close(done)
	}()
	<-done
}

func TestKeyedMutex_EntriesReclaimed(t *testing.T) {
	km := NewKeyedMutex()

	unlock := km.Lock("user-1")
	unlock()

	km.mu.Lock()
	defer km.mu.Unlock()
	assert.Empty(t, km.locks)
}
