package ringshm

import "unsafe"

// cacheLineSize is the padding granularity applied to the control block so
// the slot array that follows starts on its own cache line, avoiding false
// sharing between the (frequently written) control block tail and the
// first packet slot.
const cacheLineSize = 64

// SlotArrayOffset returns the byte offset, from the start of a shared
// region, at which the packet slot array must begin. Callers mapping their
// own region (see internal/shmmap) place the control block at offset 0 and
// the slot array at this offset.
func SlotArrayOffset() uintptr {
	size := unsafe.Sizeof(controlBlock{})
	if rem := size % cacheLineSize; rem != 0 {
		size += cacheLineSize - rem
	}
	return size
}

// RegionSize returns the total number of bytes a region must provide to
// hold the control block and numBuffers slots of packetSize bytes each.
func RegionSize(packetSize, numBuffers uint32) uint64 {
	return uint64(SlotArrayOffset()) + uint64(packetSize)*uint64(numBuffers)
}
