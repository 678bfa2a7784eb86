package ringshm

import "sync/atomic"

// Access selects which side of the ring an operation applies to.
type Access int

const (
	// AccessRead selects the reader side.
	AccessRead Access = iota
	// AccessWrite selects the writer side.
	AccessWrite
)

// UpdateAvailable reports, without borrowing, how many slots are currently
// readable by reader id (AccessRead) or writable (AccessWrite). id is
// ignored for AccessWrite.
//
// The write-side figure is numBuffers - bufferLevel without applying the
// one-slot full/empty gap BeginAccess(write) enforces, so it can over-report
// capacity by exactly one slot; this mirrors an open question in the
// reference design (see DESIGN.md) and is kept intentionally rather than
// silently reconciled.
func (r *RingBufferShm) UpdateAvailable(access Access, id int32) (int, error) {
	if err := r.checkInitialized("UpdateAvailable"); err != nil {
		return 0, err
	}

	switch access {
	case AccessWrite:
		numBuffers := atomic.LoadUint32(&r.cb.numBuffers)
		level := atomic.LoadUint32(&r.cb.bufferLevel)
		return int(numBuffers - level), nil
	case AccessRead:
		slot := r.findReader(id)
		if slot == nil {
			return 0, newErr("UpdateAvailable", KindInvalidParam)
		}
		return int(r.calcReaderLevel(slot)), nil
	default:
		return 0, newErr("UpdateAvailable", KindInvalidParam)
	}
}
