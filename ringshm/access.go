package ringshm

import (
	"sync/atomic"

	"github.com/tnishiok/avbstreamhandler/internal/shmsync"
)

// BeginAccess returns a contiguous run of up to want slots the caller may
// read (AccessRead) or write (AccessWrite) directly via Slot, without an
// intermediate copy into the ring itself. The caller must follow with a
// matching EndAccess before issuing another BeginAccess of the same access
// kind. The read side holds no lock across the two calls; the write side
// keeps mutexWriteInProgress locked from BeginAccess until its EndAccess.
func (r *RingBufferShm) BeginAccess(access Access, id int32, want int) (offset, n int, err error) {
	if err := r.checkInitialized("BeginAccess"); err != nil {
		return 0, 0, err
	}
	if want < 0 {
		return 0, 0, newErr("BeginAccess", KindInvalidParam)
	}

	switch access {
	case AccessRead:
		return r.beginAccessRead(id, uint32(want))
	case AccessWrite:
		return r.beginAccessWrite(uint32(want))
	default:
		return 0, 0, newErr("BeginAccess", KindInvalidParam)
	}
}

// beginAccessRead implements spec.md §4.4.1. No lock beyond the reader's
// own slot is taken: concurrent readers borrow independently of each other,
// and writeOffset is safe to observe with a relaxed atomic load because the
// writer only ever extends the readable range, never retracts it, between
// two readings.
func (r *RingBufferShm) beginAccessRead(id int32, want uint32) (offset, n int, err error) {
	slot := r.findReader(id)
	if slot == nil {
		return 0, 0, newErr("BeginAccess", KindInvalidParam)
	}

	level := r.calcReaderLevel(slot)
	req := want
	if req > level {
		req = level
	}

	numBuffers := atomic.LoadUint32(&r.cb.numBuffers)
	readerOffset := atomic.LoadUint32(&slot.offset)
	if readerOffset+req >= numBuffers {
		req = numBuffers - readerOffset
	}

	slot.allowedToRead = req
	atomic.StoreInt64(&slot.lastAccess, shmsync.NowNanos())

	return int(readerOffset), int(req), nil
}

// beginAccessWrite implements spec.md §4.4.2, including the one-slot gap
// that disambiguates a full ring from an empty one when writeOffset has
// physically lapped a reader that is logically still behind it.
func (r *RingBufferShm) beginAccessWrite(want uint32) (offset, n int, err error) {
	if !atomic.CompareAndSwapUint32(&r.cb.writeInProgress, 0, 1) {
		return 0, 0, newErr("BeginAccess", KindNotAllowed)
	}
	r.cb.mutexWriteInProgress.Lock()

	numBuffers := atomic.LoadUint32(&r.cb.numBuffers)
	level := atomic.LoadUint32(&r.cb.bufferLevel)
	writeOffset := atomic.LoadUint32(&r.cb.writeOffset)
	readOffset := atomic.LoadUint32(&r.cb.readOffset)

	req := want
	if free := numBuffers - level; req > free {
		req = free
	}
	if writeOffset+req >= numBuffers {
		req = numBuffers - writeOffset
	}
	if writeOffset < readOffset {
		gap := readOffset - writeOffset - 1
		if req > gap {
			req = gap
		}
	}

	r.cb.allowedToWrite = req
	r.cb.writerLastAccess = shmsync.NowNanos()

	return int(writeOffset), int(req), nil
}

// EndAccess commits n <= the slots granted by the matching BeginAccess of
// the same access kind as consumed (AccessRead) or produced (AccessWrite).
func (r *RingBufferShm) EndAccess(access Access, id int32, offset, n int) error {
	if err := r.checkInitialized("EndAccess"); err != nil {
		return err
	}
	if n < 0 {
		return newErr("EndAccess", KindInvalidParam)
	}

	switch access {
	case AccessRead:
		return r.endAccessRead(id, uint32(n))
	case AccessWrite:
		return r.endAccessWrite(uint32(n))
	default:
		return newErr("EndAccess", KindInvalidParam)
	}
}

// endAccessRead implements spec.md §4.4.3.
func (r *RingBufferShm) endAccessRead(id int32, n uint32) error {
	slot := r.findReader(id)
	if slot == nil {
		return newErr("EndAccess", KindInvalidParam)
	}
	if n > slot.allowedToRead {
		return newErr("EndAccess", KindInvalidParam)
	}

	slot.allowedToRead = 0
	// offset+n never exceeds numBuffers: BeginAccess clamped the grant to
	// the physical end of the array. Reaching exactly numBuffers (not
	// wrapping here) is intentional — the physical-end wrap to 0 happens
	// later, in updateSmallerReaderOffset, once every live reader has
	// caught up to it.
	atomic.AddUint32(&slot.offset, n)

	r.aggregateReaderOffset()

	if atomic.LoadUint32(&r.cb.bufferLevel) <= atomic.LoadUint32(&r.cb.writeWaitLevel) {
		r.cb.condWrite.Broadcast()
	}

	atomic.StoreInt64(&slot.lastAccess, shmsync.NowNanos())
	return nil
}

// endAccessWrite implements spec.md §4.4.4.
func (r *RingBufferShm) endAccessWrite(n uint32) error {
	if n > r.cb.allowedToWrite {
		return newErr("EndAccess", KindInvalidParam)
	}

	r.cb.mutex.Lock()
	writeOffset := atomic.LoadUint32(&r.cb.writeOffset)
	numBuffers := atomic.LoadUint32(&r.cb.numBuffers)

	switch {
	case writeOffset+n == numBuffers:
		atomic.StoreUint32(&r.cb.writeOffset, 0)
	case writeOffset+n > numBuffers:
		r.cb.mutex.Unlock()
		return newErr("EndAccess", KindInvalidParam)
	default:
		atomic.StoreUint32(&r.cb.writeOffset, writeOffset+n)
	}
	atomic.AddUint32(&r.cb.bufferLevel, n)
	r.cb.mutex.Unlock()

	r.cb.allowedToWrite = 0
	atomic.StoreUint32(&r.cb.writeInProgress, 0)
	r.cb.mutexWriteInProgress.Unlock()

	if atomic.LoadUint32(&r.cb.bufferLevel) >= atomic.LoadUint32(&r.cb.readWaitLevel) {
		r.cb.condRead.Broadcast()
	}

	r.cb.writerLastAccess = shmsync.NowNanos()
	r.purgeUnresponsiveReaders()
	return nil
}
