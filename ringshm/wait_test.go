package ringshm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Scenario 5: a writer waiting for free space past timeoutMs gets
// KindTimeout, and nothing was borrowed.
func TestWaitWriteTimesOut(t *testing.T) {
	r := newTestRing(t, 1, 4)
	r.cb.writeOffset = 0
	r.cb.readOffset = 0
	r.cb.bufferLevel = 4 // full, no reader ever drains it

	start := time.Now()
	err := r.WaitWrite(1, 30)
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, KindTimeout)
	assert.GreaterOrEqual(t, elapsed, 30*time.Millisecond)
}

func TestWaitWriteRejectsBadParams(t *testing.T) {
	r := newTestRing(t, 1, 4)
	assert.ErrorIs(t, r.WaitWrite(0, 10), KindInvalidParam)
	assert.ErrorIs(t, r.WaitWrite(5, 10), KindInvalidParam)
	assert.ErrorIs(t, r.WaitWrite(1, 0), KindInvalidParam)
}

// Scenario 6: a reader blocked in WaitRead is woken by the writer's
// EndAccess broadcast as soon as enough data has arrived, without waiting
// out its full timeout.
func TestWaitReadWakesOnWriterProgress(t *testing.T) {
	r := newTestRing(t, 1, 4)
	require.NoError(t, r.AddReader(100))

	done := make(chan error, 1)
	go func() {
		done <- r.WaitRead(100, 2, 2000)
	}()

	// Give the reader a chance to block inside Cond.Wait before the
	// writer supplies data.
	time.Sleep(20 * time.Millisecond)

	off, n, err := r.BeginAccess(AccessWrite, 0, 2)
	require.NoError(t, err)
	require.NoError(t, r.EndAccess(AccessWrite, 0, off, n))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(1 * time.Second):
		t.Fatal("WaitRead did not wake up after writer progress")
	}
}

func TestWaitReadRejectsUnknownReader(t *testing.T) {
	r := newTestRing(t, 1, 4)
	assert.ErrorIs(t, r.WaitRead(999, 1, 10), KindInvalidParam)
}
