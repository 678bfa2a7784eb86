package ringshm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRing builds a RingBufferShm over plain (non-shared) memory, which
// is sufficient for exercising every invariant that doesn't itself require
// multiple OS processes — the synchronization primitives in
// internal/shmsync are correct regardless of whether the memory backing
// them happens to be shared.
func newTestRing(t *testing.T, packetSize, numBuffers uint32) *RingBufferShm {
	t.Helper()
	r := &RingBufferShm{cb: &controlBlock{}}
	require.NoError(t, r.Init(packetSize, numBuffers, make([]byte, packetSize*numBuffers), false))
	return r
}

func TestInitRejectsZeroGeometry(t *testing.T) {
	r := &RingBufferShm{cb: &controlBlock{}}
	assert.ErrorIs(t, r.Init(0, 4, make([]byte, 4), false), KindInvalidParam)
	assert.ErrorIs(t, r.Init(1, 0, make([]byte, 4), false), KindInvalidParam)
	assert.ErrorIs(t, r.Init(1, 4, nil, false), KindInvalidParam)
}

func TestOperationsBeforeInitFail(t *testing.T) {
	r := &RingBufferShm{cb: &controlBlock{}}
	assert.ErrorIs(t, r.AddReader(1), KindNotInitialized)
	_, err := r.UpdateAvailable(AccessWrite, 0)
	assert.ErrorIs(t, err, KindNotInitialized)
}

func TestAddReaderValidatesID(t *testing.T) {
	r := newTestRing(t, 1, 4)
	assert.ErrorIs(t, r.AddReader(0), KindInvalidParam)
	assert.ErrorIs(t, r.AddReader(-1), KindInvalidParam)
	require.NoError(t, r.AddReader(100))
}

func TestAddReaderTableFull(t *testing.T) {
	r := newTestRing(t, 1, 4)
	for i := int32(1); i <= cMaxReaders; i++ {
		require.NoError(t, r.AddReader(i))
	}
	assert.ErrorIs(t, r.AddReader(cMaxReaders+1), KindTooManyReaders)
}

// R1: AddReader; RemoveReader leaves the reader table as it was.
func TestAddRemoveReaderRoundTrip(t *testing.T) {
	r := newTestRing(t, 1, 4)
	before := r.cb.readers

	require.NoError(t, r.AddReader(100))
	require.NoError(t, r.RemoveReader(100))

	assert.Equal(t, before, r.cb.readers)
}

func TestRemoveReaderIsIdempotent(t *testing.T) {
	r := newTestRing(t, 1, 4)
	require.NoError(t, r.RemoveReader(100))
	require.NoError(t, r.AddReader(100))
	require.NoError(t, r.RemoveReader(100))
	require.NoError(t, r.RemoveReader(100))
}

// Scenario 1: fill and drain with two readers.
func TestScenarioFillAndDrain(t *testing.T) {
	r := newTestRing(t, 1, 4)
	require.NoError(t, r.AddReader(100)) // A
	require.NoError(t, r.AddReader(200)) // B

	off, n, err := r.BeginAccess(AccessWrite, 0, 4)
	require.NoError(t, err)
	assert.Equal(t, 0, off)
	assert.Equal(t, 4, n)
	require.NoError(t, r.EndAccess(AccessWrite, 0, off, n))

	assert.EqualValues(t, 0, r.cb.writeOffset) // wrapped
	assert.EqualValues(t, 4, r.cb.bufferLevel)

	off, n, err = r.BeginAccess(AccessRead, 100, 4)
	require.NoError(t, err)
	assert.Equal(t, 0, off)
	assert.Equal(t, 4, n)
	require.NoError(t, r.EndAccess(AccessRead, 100, off, n))

	off, n, err = r.BeginAccess(AccessRead, 200, 4)
	require.NoError(t, err)
	assert.Equal(t, 0, off)
	assert.Equal(t, 4, n)
	require.NoError(t, r.EndAccess(AccessRead, 200, off, n))

	assert.EqualValues(t, 0, r.cb.readOffset)
	assert.EqualValues(t, 0, r.cb.bufferLevel)
}

// Scenario 2: writer clamp at the physical end of the array.
func TestScenarioWriterClampAtPhysicalEnd(t *testing.T) {
	r := newTestRing(t, 1, 4)
	r.cb.writeOffset = 2
	r.cb.readOffset = 2
	r.cb.bufferLevel = 0

	off, n, err := r.BeginAccess(AccessWrite, 0, 4)
	require.NoError(t, err)
	assert.Equal(t, 2, off)
	assert.Equal(t, 2, n) // clamped to numBuffers - writeOffset
	require.NoError(t, r.EndAccess(AccessWrite, 0, off, n))
}

// Scenario 3: single-writer enforcement.
func TestScenarioSingleWriterEnforcement(t *testing.T) {
	r := newTestRing(t, 1, 4)

	_, _, err := r.BeginAccess(AccessWrite, 0, 1)
	require.NoError(t, err)

	_, _, err = r.BeginAccess(AccessWrite, 0, 1)
	assert.ErrorIs(t, err, KindNotAllowed)
}

func TestEndAccessRejectsOverGrant(t *testing.T) {
	r := newTestRing(t, 1, 4)
	off, n, err := r.BeginAccess(AccessWrite, 0, 2)
	require.NoError(t, err)
	assert.Error(t, r.EndAccess(AccessWrite, 0, off, n+1))
}

func TestFullVsEmptyGap(t *testing.T) {
	r := newTestRing(t, 1, 4)
	// readOffset physically ahead of writeOffset in the array, but the
	// writer is logically behind it (it has wrapped, the reader hasn't):
	// leave a one-slot gap so full and empty stay distinguishable.
	r.cb.writeOffset = 1
	r.cb.readOffset = 3
	r.cb.bufferLevel = 2 // (writeOffset - readOffset) mod 4

	off, n, err := r.BeginAccess(AccessWrite, 0, 4)
	require.NoError(t, err)
	assert.Equal(t, 1, off)
	// free space by level would be 2, but writeOffset<readOffset clamps
	// further to readOffset-writeOffset-1 = 3-1-1 = 1.
	assert.Equal(t, 1, n)
}
