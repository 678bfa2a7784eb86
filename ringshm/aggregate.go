package ringshm

import (
	"sync/atomic"

	"github.com/tnishiok/avbstreamhandler/internal/shmsync"
)

// calcReaderLevel returns the number of slots the writer has produced that
// reader r has not yet consumed: (writeOffset - r.offset) mod numBuffers.
// That formula gives 0 when r.offset equals writeOffset, which is also how a
// completely full ring looks to its slowest reader, so a reader sitting at
// writeOffset while bufferLevel == numBuffers has numBuffers slots to read.
func (r *RingBufferShm) calcReaderLevel(slot *readerSlot) uint32 {
	numBuffers := atomic.LoadUint32(&r.cb.numBuffers)
	writeOffset := atomic.LoadUint32(&r.cb.writeOffset)
	readerOffset := atomic.LoadUint32(&slot.offset)

	if writeOffset == readerOffset && atomic.LoadUint32(&r.cb.bufferLevel) == numBuffers {
		return numBuffers
	}
	if writeOffset < readerOffset {
		return numBuffers - readerOffset + writeOffset
	}
	return writeOffset - readerOffset
}

// updateSmallerReaderOffset scans the reader table for the minimum live
// offset, without wrapping anything. The raw minimum can legitimately equal
// numBuffers — endAccessRead advances a reader's offset without taking it
// modulo numBuffers — which aggregateReaderOffset needs to see before any
// wrap is applied, or the amount the writer has to un-account for would be
// indistinguishable from zero. It reports ok=false if there are no live
// readers.
func (r *RingBufferShm) updateSmallerReaderOffset() (min uint32, ok bool) {
	r.cb.mutexReaders.Lock()
	defer r.cb.mutexReaders.Unlock()

	for i := range r.cb.readers {
		slot := &r.cb.readers[i]
		if !slot.live() {
			continue
		}
		offset := atomic.LoadUint32(&slot.offset)
		if !ok || offset < min {
			min = offset
			ok = true
		}
	}
	return min, ok
}

// wrapReaderOffsets resets every live reader's offset to 0. Called once all
// live readers have reached the physical end of the array, the moment
// spec.md §4.6 calls the physical-end wrap.
func (r *RingBufferShm) wrapReaderOffsets() {
	r.cb.mutexReaders.Lock()
	defer r.cb.mutexReaders.Unlock()

	for i := range r.cb.readers {
		slot := &r.cb.readers[i]
		if slot.live() {
			atomic.StoreUint32(&slot.offset, 0)
		}
	}
}

// aggregateReaderOffset is the sole mechanism that advances readOffset.
// Writers never touch it; it runs once per reader commit (EndAccess on the
// read side), so readers pay the aggregation cost and the writer observes
// a conservative, possibly-stale bufferLevel.
func (r *RingBufferShm) aggregateReaderOffset() {
	min, ok := r.updateSmallerReaderOffset()
	if !ok {
		return
	}

	r.cb.mutex.Lock()
	defer r.cb.mutex.Unlock()

	readOffset := atomic.LoadUint32(&r.cb.readOffset)
	numBuffers := atomic.LoadUint32(&r.cb.numBuffers)

	var advanced uint32
	if min >= readOffset {
		advanced = min - readOffset
	} else {
		advanced = numBuffers - readOffset + min
	}
	atomicSubUint32(&r.cb.bufferLevel, advanced)

	if min == numBuffers {
		r.wrapReaderOffsets()
		min = 0
	}
	atomic.StoreUint32(&r.cb.readOffset, min)
}

// purgeUnresponsiveReaders is invoked unilaterally from the writer's
// EndAccess. Any reader whose lastAccess is older than READER_TIMEOUT_NS is
// zeroed out of the table with no signal sent to it; its next call that
// requires table membership will fail with InvalidParam. This is the ring's
// only automatic recovery path, trading an unresponsive reader's data for
// bounded writer progress.
func (r *RingBufferShm) purgeUnresponsiveReaders() {
	now := shmsync.NowNanos()

	r.cb.mutexReaders.Lock()
	defer r.cb.mutexReaders.Unlock()

	for i := range r.cb.readers {
		slot := &r.cb.readers[i]
		if !slot.live() {
			continue
		}
		last := atomic.LoadInt64(&slot.lastAccess)
		if now > last && now-last > readerTimeout.Nanoseconds() {
			clearReaderSlot(slot)
		}
	}
}
