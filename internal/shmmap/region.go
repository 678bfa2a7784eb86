// Package shmmap maps a POSIX shared memory file into the calling
// process's address space, giving ringshm.RingBufferShm somewhere real to
// live when the writer and readers are in fact separate OS processes.
//
// ringshm.RingBufferShm itself never imports this package: per the design,
// allocation and mapping of the backing region is an external collaborator
// handed a raw pointer, slot size, and count. shmmap is this repository's
// concrete (and swappable) choice of that collaborator.
package shmmap

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Region is a memory-mapped shared region backed by a named file, typically
// under /dev/shm on Linux.
type Region struct {
	path string
	fd   int
	data []byte
	// owner is true for the process that created (rather than attached
	// to) the region; only the owner unlinks the backing file on
	// Destroy.
	owner bool
}

// Create creates a new shared memory region of totalSize bytes at path,
// failing if it already exists. The caller is the region's owner.
func Create(path string, totalSize uint64) (*Region, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT|unix.O_EXCL, 0600)
	if err != nil {
		return nil, fmt.Errorf("shmmap: create %q: %w", path, err)
	}

	if err := unix.Ftruncate(fd, int64(totalSize)); err != nil {
		unix.Close(fd)
		unix.Unlink(path)
		return nil, fmt.Errorf("shmmap: truncate %q to %d bytes: %w", path, totalSize, err)
	}

	data, err := unix.Mmap(fd, 0, int(totalSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		unix.Unlink(path)
		return nil, fmt.Errorf("shmmap: mmap %q: %w", path, err)
	}

	return &Region{path: path, fd: fd, data: data, owner: true}, nil
}

// Open attaches to an existing shared memory region at path, sizing the
// mapping to the file's current size.
func Open(path string) (*Region, error) {
	fd, err := unix.Open(path, unix.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("shmmap: open %q: %w", path, err)
	}

	var stat unix.Stat_t
	if err := unix.Fstat(fd, &stat); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("shmmap: stat %q: %w", path, err)
	}

	data, err := unix.Mmap(fd, 0, int(stat.Size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("shmmap: mmap %q: %w", path, err)
	}

	return &Region{path: path, fd: fd, data: data, owner: false}, nil
}

// Bytes returns the full mapped region.
func (r *Region) Bytes() []byte {
	return r.data
}

// At returns a pointer to the byte at the given offset within the mapped
// region, typically used to place the ring's control block (offset 0) or
// recover it on the reader side.
func (r *Region) At(offset uintptr) unsafe.Pointer {
	return unsafe.Pointer(&r.data[offset])
}

// Slots returns the mapped bytes from offset to the end of the region,
// meant to be handed to ringshm.New as the packet slot array.
func (r *Region) Slots(offset uintptr) []byte {
	return r.data[offset:]
}

// Close unmaps the region and closes its file descriptor. It does not
// remove the backing file; use Destroy for that.
func (r *Region) Close() error {
	if r.data == nil {
		return nil
	}
	if err := unix.Munmap(r.data); err != nil {
		return fmt.Errorf("shmmap: munmap %q: %w", r.path, err)
	}
	r.data = nil
	if err := unix.Close(r.fd); err != nil {
		return fmt.Errorf("shmmap: close %q: %w", r.path, err)
	}
	return nil
}

// Destroy closes the region and, if this process created it, unlinks the
// backing file. Callers that only attached to an existing region should
// call Close instead.
func (r *Region) Destroy() error {
	path := r.path
	owner := r.owner
	if err := r.Close(); err != nil {
		return err
	}
	if owner {
		if err := unix.Unlink(path); err != nil {
			return fmt.Errorf("shmmap: unlink %q: %w", path, err)
		}
	}
	return nil
}
