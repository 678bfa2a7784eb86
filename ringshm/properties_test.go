package ringshm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// P1: bufferLevel == (writeOffset - readOffset) mod numBuffers after any
// sequence of legal operations.
func TestPropertyBufferLevelMatchesOffsets(t *testing.T) {
	r := newTestRing(t, 1, 8)
	require.NoError(t, r.AddReader(1))

	checkP1 := func() {
		t.Helper()
		numBuffers := r.cb.numBuffers
		writeOffset := r.cb.writeOffset
		readOffset := r.cb.readOffset
		var want uint32
		if writeOffset >= readOffset {
			want = writeOffset - readOffset
		} else {
			want = numBuffers - readOffset + writeOffset
		}
		assert.Equal(t, want, r.cb.bufferLevel)
	}

	for i := 0; i < 5; i++ {
		off, n, err := r.BeginAccess(AccessWrite, 0, 3)
		require.NoError(t, err)
		require.NoError(t, r.EndAccess(AccessWrite, 0, off, n))
		checkP1()

		off, n, err = r.BeginAccess(AccessRead, 1, 3)
		require.NoError(t, err)
		require.NoError(t, r.EndAccess(AccessRead, 1, off, n))
		checkP1()
	}
}

// P2: readOffset == min{r.offset : r live} after every endAccess(read).
func TestPropertyReadOffsetIsMinimumOfLiveReaders(t *testing.T) {
	r := newTestRing(t, 1, 8)
	require.NoError(t, r.AddReader(1)) // fast reader
	require.NoError(t, r.AddReader(2)) // slow reader

	off, n, err := r.BeginAccess(AccessWrite, 0, 6)
	require.NoError(t, err)
	require.NoError(t, r.EndAccess(AccessWrite, 0, off, n))

	off, n, err = r.BeginAccess(AccessRead, 1, 6)
	require.NoError(t, err)
	require.NoError(t, r.EndAccess(AccessRead, 1, off, n))
	assert.EqualValues(t, 0, r.cb.readOffset) // reader 2 hasn't moved

	off, n, err = r.BeginAccess(AccessRead, 2, 4)
	require.NoError(t, err)
	require.NoError(t, r.EndAccess(AccessRead, 2, off, n))
	assert.EqualValues(t, 4, r.cb.readOffset) // now the minimum of {6, 4}
}

// P4: every slot the writer produces is observed by every live reader, in
// order.
func TestPropertyOrderedDeliveryToEveryReader(t *testing.T) {
	r := newTestRing(t, 4, 8)
	require.NoError(t, r.AddReader(1))
	require.NoError(t, r.AddReader(2))

	var produced [][]byte
	for i := 0; i < 6; i++ {
		off, n, err := r.BeginAccess(AccessWrite, 0, 1)
		require.NoError(t, err)
		require.Equal(t, 1, n)
		slot := r.Slot(uint32(off))
		slot[0] = byte(i)
		produced = append(produced, append([]byte(nil), slot...))
		require.NoError(t, r.EndAccess(AccessWrite, 0, off, n))
	}

	for _, id := range []int32{1, 2} {
		for i := 0; i < 6; i++ {
			off, n, err := r.BeginAccess(AccessRead, id, 1)
			require.NoError(t, err)
			require.Equal(t, 1, n)
			got := r.Slot(uint32(off))
			assert.Equal(t, produced[i], append([]byte(nil), got...))
			require.NoError(t, r.EndAccess(AccessRead, id, off, n))
		}
	}
}

// P5: bufferLevel and calcReaderLevel never exceed numBuffers.
func TestPropertyLevelsNeverExceedCapacity(t *testing.T) {
	r := newTestRing(t, 1, 4)
	require.NoError(t, r.AddReader(1))

	for i := 0; i < 10; i++ {
		off, n, _ := r.BeginAccess(AccessWrite, 0, 3)
		r.EndAccess(AccessWrite, 0, off, n)
		assert.LessOrEqual(t, r.cb.bufferLevel, r.cb.numBuffers)

		off, n, _ = r.BeginAccess(AccessRead, 1, 3)
		r.EndAccess(AccessRead, 1, off, n)
		level, err := r.UpdateAvailable(AccessRead, 1)
		require.NoError(t, err)
		assert.LessOrEqual(t, uint32(level), r.cb.numBuffers)
	}
}

// R2: beginAccess; endAccess followed by another beginAccess returns an
// offset equal to the previous off+n modulo numBuffers (with the
// physical-end clamp applied).
func TestPropertyConsecutiveBeginAccessOffsetsChain(t *testing.T) {
	r := newTestRing(t, 1, 4)

	off1, n1, err := r.BeginAccess(AccessWrite, 0, 3)
	require.NoError(t, err)
	require.NoError(t, r.EndAccess(AccessWrite, 0, off1, n1))

	off2, _, err := r.BeginAccess(AccessWrite, 0, 3)
	require.NoError(t, err)
	assert.Equal(t, (off1+n1)%4, off2)
}
