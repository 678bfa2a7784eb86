package ringshm

import (
	"sync/atomic"
	"time"

	"github.com/tnishiok/avbstreamhandler/internal/shmsync"
)

// AddReader registers id as a new reader, starting it at the current
// readOffset. Rationale for the fixed-size, scan-based table: it lives in
// shared memory, must be lock-free-readable from the writer's purge path,
// and must have no pointers — a linked structure or a map would need both.
func (r *RingBufferShm) AddReader(id int32) error {
	if id <= 0 {
		return newErr("AddReader", KindInvalidParam)
	}
	if err := r.checkInitialized("AddReader"); err != nil {
		return err
	}

	r.cb.mutexReaders.Lock()
	defer r.cb.mutexReaders.Unlock()

	for i := range r.cb.readers {
		slot := &r.cb.readers[i]
		if atomic.LoadInt32(&slot.id) == 0 {
			slot.offset = atomic.LoadUint32(&r.cb.readOffset)
			atomic.StoreInt64(&slot.lastAccess, shmsync.NowNanos())
			slot.allowedToRead = 0
			atomic.StoreInt32(&slot.id, id)
			return nil
		}
	}
	return newErr("AddReader", KindTooManyReaders)
}

// RemoveReader clears every reader table entry matching id. It is
// idempotent: removing an id that isn't registered (or removing it twice)
// is not an error. Matching multiple entries would itself be a bug
// (AddReader never assigns the same id to two slots concurrently) but is
// tolerated rather than treated as a fatal condition.
func (r *RingBufferShm) RemoveReader(id int32) error {
	if id <= 0 {
		return newErr("RemoveReader", KindInvalidParam)
	}
	if err := r.checkInitialized("RemoveReader"); err != nil {
		return err
	}

	r.cb.mutexReaders.Lock()
	defer r.cb.mutexReaders.Unlock()

	for i := range r.cb.readers {
		slot := &r.cb.readers[i]
		if atomic.LoadInt32(&slot.id) == id {
			clearReaderSlot(slot)
		}
	}
	return nil
}

// findReader returns the reader slot owned by id, or nil if no live slot
// matches. It scans without taking mutexReaders, and none of its callers
// (the read side of BeginAccess, EndAccess, UpdateAvailable and WaitRead)
// holds that lock; the design allows the reader lookup to scan without a
// lock (see spec.md §4.3/§4.4.1): AddReader only ever
// publishes a slot's id last (after its other fields), so observing a live
// id here guarantees offset/lastAccess/allowedToRead are already valid for
// this reader's own fields.
func (r *RingBufferShm) findReader(id int32) *readerSlot {
	for i := range r.cb.readers {
		slot := &r.cb.readers[i]
		if atomic.LoadInt32(&slot.id) == id {
			return slot
		}
	}
	return nil
}

func clearReaderSlot(slot *readerSlot) {
	slot.allowedToRead = 0
	slot.offset = 0
	atomic.StoreInt64(&slot.lastAccess, 0)
	atomic.StoreInt32(&slot.id, 0)
}

// readerTimeout is exposed as a var (not const) only so tests can shrink it;
// production code never assigns to it outside of a test binary.
var readerTimeout = time.Duration(readerTimeoutNanos)
