package ringshm

import (
	"sync/atomic"
	"unsafe"

	"github.com/tnishiok/avbstreamhandler/internal/shmsync"
)

// unsafeSizeofControlBlock is computed once so ControlBlockSize() doesn't
// re-derive it on every call.
var unsafeSizeofControlBlock = unsafe.Sizeof(controlBlock{})

// cMaxReaders is the fixed capacity of the reader table. It lives in
// shared memory and must have no pointers, so it is sized at compile time.
const cMaxReaders = 16

// readerTimeoutNanos is the staleness threshold purgeUnresponsiveReaders
// applies to each reader's lastAccess stamp.
const readerTimeoutNanos = 2_000_000_000 // READER_TIMEOUT_NS

// nsecPerSec converts between seconds and the nanosecond timestamps the
// control block stores.
const nsecPerSec = 1_000_000_000

// readerSlot is one entry of the fixed-size reader table. id == 0 marks the
// slot free; a free slot's offset/lastAccess/allowedToRead are meaningless
// and must not be read.
type readerSlot struct {
	id            int32
	offset        uint32
	lastAccess    int64
	allowedToRead uint32
}

func (r *readerSlot) live() bool {
	return atomic.LoadInt32(&r.id) != 0
}

// atomicSubUint32 subtracts delta from *addr using the standard two's
// complement trick (sync/atomic has no subtraction primitive for unsigned
// words). Every field shared between the writer and reader sides must go
// through sync/atomic on both the store and load side, or the race
// detector (correctly) flags the pair as an unsynchronized access.
func atomicSubUint32(addr *uint32, delta uint32) {
	atomic.AddUint32(addr, ^(delta - 1))
}

// controlBlock is the fixed-layout value placed at the start of the shared
// region. All synchronization primitives are embedded by value (not
// pointers) so the whole struct can be mapped by independent processes.
type controlBlock struct {
	packetSize uint32
	numBuffers uint32
	initialized uint32 // one-shot flag, 0 or 1

	readOffset  uint32
	writeOffset uint32
	bufferLevel uint32

	writeInProgress uint32
	allowedToWrite  uint32

	writerLastAccess int64

	readWaitLevel  uint32
	writeWaitLevel uint32

	readers [cMaxReaders]readerSlot

	mutex                shmsync.Mutex
	mutexReaders         shmsync.Mutex
	mutexWriteInProgress shmsync.Mutex

	condRead  shmsync.Cond
	condWrite shmsync.Cond
}

// RingBufferShm is a single-producer / multi-consumer packet ring living in
// a shared memory region. The zero value is not usable; construct one with
// New, which wraps a caller-supplied control block placement and slot
// array, then call Init.
type RingBufferShm struct {
	cb   *controlBlock
	data []byte // numBuffers * packetSize bytes, owned by the caller
}

// ControlBlockSize reports the number of bytes the control block occupies
// so callers computing a shared memory layout (see internal/shmmap) know
// how much to reserve before the slot array.
func ControlBlockSize() uintptr {
	return unsafeSizeofControlBlock
}

// New wraps an existing (possibly freshly-zeroed, possibly already
// initialized by another process) control block placement and packet slot
// array. ctrl must point at cMaxReaders-compatible, ControlBlockSize()-sized
// memory; data must be exactly numBuffers*packetSize bytes once Init is
// called. New performs no validation itself — that's Init's job — so that
// a reader attaching to an already-initialized ring can construct a
// RingBufferShm without re-running Init.
func New(ctrl unsafe.Pointer, data []byte) *RingBufferShm {
	return &RingBufferShm{
		cb:   (*controlBlock)(ctrl),
		data: data,
	}
}
