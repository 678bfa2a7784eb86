package shmsync

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMutexMutualExclusion(t *testing.T) {
	var mu Mutex
	counter := 0

	const goroutines = 50
	const increments = 200

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < increments; j++ {
				mu.Lock()
				counter++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, goroutines*increments, counter)
}

func TestMutexTryLock(t *testing.T) {
	var mu Mutex
	assert.True(t, mu.TryLock())
	assert.False(t, mu.TryLock())
	mu.Unlock()
	assert.True(t, mu.TryLock())
	mu.Unlock()
}

func TestCondWaitTimesOut(t *testing.T) {
	var mu Mutex
	var cond Cond

	mu.Lock()
	start := time.Now()
	woke := cond.Wait(&mu, 30*time.Millisecond)
	elapsed := time.Since(start)
	mu.Unlock()

	assert.False(t, woke)
	assert.GreaterOrEqual(t, elapsed, 30*time.Millisecond)
}

func TestCondSignalWakesOneWaiter(t *testing.T) {
	var mu Mutex
	var cond Cond

	woke := make(chan bool, 1)
	go func() {
		mu.Lock()
		ok := cond.Wait(&mu, 2*time.Second)
		mu.Unlock()
		woke <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	cond.Signal()

	select {
	case ok := <-woke:
		assert.True(t, ok)
	case <-time.After(1 * time.Second):
		t.Fatal("waiter was not woken by Signal")
	}
}

func TestCondBroadcastWakesAllWaiters(t *testing.T) {
	var mu Mutex
	var cond Cond

	const waiters = 8
	woke := make(chan bool, waiters)
	for i := 0; i < waiters; i++ {
		go func() {
			mu.Lock()
			ok := cond.Wait(&mu, 2*time.Second)
			mu.Unlock()
			woke <- ok
		}()
	}

	time.Sleep(30 * time.Millisecond)
	cond.Broadcast()

	for i := 0; i < waiters; i++ {
		select {
		case ok := <-woke:
			assert.True(t, ok)
		case <-time.After(1 * time.Second):
			t.Fatal("not all waiters were woken by Broadcast")
		}
	}
}
