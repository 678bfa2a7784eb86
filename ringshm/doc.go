// Package ringshm implements a single-producer / multi-consumer packet ring
// buffer meant to live in memory shared between a writer process and up to
// cMaxReaders reader processes.
//
// The ring holds no pointers and no object identity beyond a single nonzero
// reader token (the caller's choice; the reference design uses the OS pid):
// everything a process needs to operate on the ring is either a value
// embedded in RingBufferShm itself or the caller-owned packet slot array
// passed to Init. This is what makes the type safe to place directly inside
// a shared memory mapping and operated on concurrently, from unrelated
// address spaces, by processes compiled from the same binary.
//
// Data flows one way: the writer fills a contiguous run of slots starting
// at its write offset, and each reader independently drains from its own
// read offset via the two-phase BeginAccess/EndAccess borrow protocol,
// which hands out a slot range the caller may memcpy into or out of
// directly with no intermediate queue.
//
// A reader that stops calling the ring for longer than READER_TIMEOUT_NS is
// evicted from the reader table the next time the writer commits a write
// access; this bounds how long a dead or stuck reader can hold back the
// writer's progress at the cost of that reader's data.
package ringshm
