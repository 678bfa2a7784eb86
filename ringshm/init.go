package ringshm

import "sync/atomic"

// Init validates packetSize and numBuffers, checks data is sized to match,
// and marks the ring initialized. shared is accepted but not stored
// anywhere, and it toggles no runtime behavior: all synchronization
// primitives embedded in controlBlock are already process-shared by
// construction (they hold no process-local state).
func (r *RingBufferShm) Init(packetSize, numBuffers uint32, data []byte, shared bool) error {
	if packetSize == 0 || numBuffers == 0 || data == nil {
		return newErr("Init", KindInvalidParam)
	}
	if uint64(len(data)) < uint64(packetSize)*uint64(numBuffers) {
		return newErr("Init", KindInvalidParam)
	}

	r.data = data
	r.cb.packetSize = packetSize
	r.cb.numBuffers = numBuffers
	r.cb.readOffset = 0
	r.cb.writeOffset = 0
	r.cb.bufferLevel = 0
	_ = shared

	atomic.StoreUint32(&r.cb.initialized, 1)
	return nil
}

func (r *RingBufferShm) checkInitialized(op string) error {
	if atomic.LoadUint32(&r.cb.initialized) == 0 {
		return newErr(op, KindNotInitialized)
	}
	return nil
}

// Slot returns the byte range of the idx'th packet slot in the caller-owned
// data array. It panics if idx is out of range, the same contract
// beginAccess/endAccess rely on internally after validating offsets against
// numBuffers.
func (r *RingBufferShm) Slot(idx uint32) []byte {
	start := uint64(idx) * uint64(r.cb.packetSize)
	end := start + uint64(r.cb.packetSize)
	return r.data[start:end]
}
