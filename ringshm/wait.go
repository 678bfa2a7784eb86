package ringshm

import (
	"sync/atomic"
	"time"

	"github.com/tnishiok/avbstreamhandler/internal/shmsync"
)

// WaitWrite blocks until at least n slots are free for writing or
// timeoutMs elapses. It does not consume data — it is a blocking form of
// UpdateAvailable(AccessWrite, ...); callers must still use
// BeginAccess/EndAccess to transfer.
func (r *RingBufferShm) WaitWrite(n int, timeoutMs int) error {
	if err := r.checkInitialized("WaitWrite"); err != nil {
		return err
	}
	numBuffers := atomic.LoadUint32(&r.cb.numBuffers)
	if n <= 0 || uint32(n) > numBuffers || timeoutMs <= 0 {
		return newErr("WaitWrite", KindInvalidParam)
	}

	waitLevel := numBuffers - uint32(n)
	atomic.StoreUint32(&r.cb.writeWaitLevel, waitLevel)

	deadline := time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)

	r.cb.mutex.Lock()
	defer r.cb.mutex.Unlock()

	for atomic.LoadUint32(&r.cb.bufferLevel) > waitLevel {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return newErr("WaitWrite", KindTimeout)
		}
		if !r.cb.condWrite.Wait(&r.cb.mutex, remaining) {
			if atomic.LoadUint32(&r.cb.bufferLevel) > waitLevel {
				return newErr("WaitWrite", KindTimeout)
			}
			return nil
		}
	}
	return nil
}

// WaitRead blocks until reader id can see at least n unconsumed slots or
// timeoutMs elapses.
func (r *RingBufferShm) WaitRead(id int32, n int, timeoutMs int) error {
	if err := r.checkInitialized("WaitRead"); err != nil {
		return err
	}
	slot := r.findReader(id)
	if slot == nil {
		return newErr("WaitRead", KindInvalidParam)
	}
	numBuffers := atomic.LoadUint32(&r.cb.numBuffers)
	if n <= 0 || uint32(n) > numBuffers || timeoutMs <= 0 {
		return newErr("WaitRead", KindInvalidParam)
	}

	// Updated under mutex so concurrent waiting readers with different n
	// don't clobber a stricter bound with a looser one; the field itself
	// is still accessed atomically since endAccessWrite reads it without
	// taking this mutex.
	r.cb.mutex.Lock()
	current := atomic.LoadUint32(&r.cb.readWaitLevel)
	if uint32(n) < current || current == 0 {
		atomic.StoreUint32(&r.cb.readWaitLevel, uint32(n))
	}
	r.cb.mutex.Unlock()

	deadline := time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)

	r.cb.mutex.Lock()
	defer r.cb.mutex.Unlock()

	for r.calcReaderLevel(slot) < uint32(n) {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return newErr("WaitRead", KindTimeout)
		}
		woke := r.cb.condRead.Wait(&r.cb.mutex, remaining)
		atomic.StoreInt64(&slot.lastAccess, shmsync.NowNanos())
		if !woke {
			if r.calcReaderLevel(slot) < uint32(n) {
				return newErr("WaitRead", KindTimeout)
			}
			return nil
		}
	}
	return nil
}
