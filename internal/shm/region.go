// Package shm implements the shared-memory partition allocator: one memfd
// per Session Server, mmap'd once, sub-allocated into fixed
// per-(playback-type, session-id, source-type) partitions carved from a
// flat byte region as one contiguous per-session slab, placed at the lowest
// offset that no live slab occupies.
package shm

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/rdkcentral/rialto-sub011/internal/logger"
	"github.com/rdkcentral/rialto-sub011/internal/rierr"
)

// PlaybackType distinguishes the two partition layouts: one sub-partition
// per MediaSourceType for GENERIC playback, one per Web-Audio-player
// handle for WEB_AUDIO playback.
type PlaybackType uint8

const (
	PlaybackGeneric PlaybackType = iota
	PlaybackWebAudio
)

// SourceType mirrors playback.MediaSourceType without importing the
// playback package (shm has no business knowing about source state
// machines — it only indexes partitions by the enum value).
type SourceType uint8

const (
	SourceUnknown SourceType = iota
	SourceAudio
	SourceVideo
	SourceSubtitle
)

// partitionKey uniquely identifies one sub-partition.
type partitionKey struct {
	playback PlaybackType
	session  uint64
	source   SourceType
}

// partition is a disjoint sub-range of the backing region.
type partition struct {
	dataOffset uint64
	maxLen     uint64
}

// sessionSlab is the contiguous per-session range MapPartition hands
// out; individual sub-partitions are carved from it up front and never
// resized, which is what makes the disjointness invariant hold by
// construction.
type sessionSlab struct {
	base uint64
	size uint64
}

// Region owns the single memfd-backed mapping for one Session Server.
type Region struct {
	fd   int
	size uint64
	buf  []byte // mmap'd region, consumer-side base pointer equivalent

	mu         sync.Mutex
	slabs      map[uint64]sessionSlab // sessionID -> slab
	partitions map[partitionKey]partition
}

// NewRegion creates a memfd of size bytes, maps it read/write, and returns
// a ready-to-carve Region. size == 0 is rejected as ResourceExhausted.
func NewRegion(size uint64) (*Region, error) {
	if size == 0 {
		return nil, rierr.Wrap(rierr.ResourceExhausted, "shared memory region size must be non-zero")
	}
	fd, err := unix.MemfdCreate("rialto-shm", unix.MFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("memfd_create: %w", err)
	}
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("ftruncate: %w", err)
	}
	buf, err := unix.Mmap(fd, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = unix.Close(fd)
		return nil, rierr.Wrap(rierr.ResourceExhausted, "mmap failed: "+err.Error())
	}
	return &Region{
		fd:         fd,
		size:       size,
		buf:        buf,
		slabs:      make(map[uint64]sessionSlab),
		partitions: make(map[partitionKey]partition),
	}, nil
}

// FD returns the memfd, passed to clients via SCM_RIGHTS exactly once per
// mapping.
func (r *Region) FD() int { return r.fd }

// MapPartition carves a fresh contiguous slab for sessionID and
// sub-divides it, one sub-partition per entry in sourceTypes, each
// subPartitionLen bytes. Calling it twice for the same sessionID without
// an intervening UnmapPartition is an error.
func (r *Region) MapPartition(playback PlaybackType, sessionID uint64, sourceTypes []SourceType, subPartitionLen uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.slabs[sessionID]; exists {
		return rierr.Wrap(rierr.ResourceExhausted, "session already mapped")
	}
	if subPartitionLen == 0 {
		return rierr.Wrap(rierr.ResourceExhausted, "partition length must be non-zero")
	}
	total := subPartitionLen * uint64(len(sourceTypes))
	// First fit: step past every live slab overlapping [base, base+total).
	base := uint64(0)
	for moved := true; moved; {
		moved = false
		for _, sl := range r.slabs {
			if base < sl.base+sl.size && sl.base < base+total {
				base = sl.base + sl.size
				moved = true
			}
		}
	}
	if base+total > r.size {
		return rierr.Wrap(rierr.ResourceExhausted, "backing memfd exhausted")
	}

	for i, st := range sourceTypes {
		key := partitionKey{playback: playback, session: sessionID, source: st}
		r.partitions[key] = partition{
			dataOffset: base + uint64(i)*subPartitionLen,
			maxLen:     subPartitionLen,
		}
	}
	r.slabs[sessionID] = sessionSlab{base: base, size: total}
	return nil
}

// GetDataOffset returns the (offset) half of the producer-facing pair.
func (r *Region) GetDataOffset(playback PlaybackType, sessionID uint64, source SourceType) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.partitions[partitionKey{playback, sessionID, source}].dataOffset
}

// GetMaxDataLen returns 0 for "no such partition".
func (r *Region) GetMaxDataLen(playback PlaybackType, sessionID uint64, source SourceType) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.partitions[partitionKey{playback, sessionID, source}].maxLen
}

// ClearData makes the partition logically empty: any outstanding producer
// offsets into it become invalid. The region contents themselves are
// zeroed so a stale read never observes a previous cycle's bytes.
func (r *Region) ClearData(playback PlaybackType, sessionID uint64, source SourceType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.partitions[partitionKey{playback, sessionID, source}]
	if !ok {
		return
	}
	for i := p.dataOffset; i < p.dataOffset+p.maxLen; i++ {
		r.buf[i] = 0
	}
}

// GetBuffer returns the base of the mmap'd region (consumer side only —
// producers never see this, only (offset, max_len) pairs over RPC).
func (r *Region) GetBuffer() []byte {
	return r.buf
}

// UnmapPartition reclaims sessionID's slab: its bytes are free for a later
// MapPartition. Partitions survive individual
// source attach/remove cycles; only this call, or region teardown,
// invalidates them.
func (r *Region) UnmapPartition(sessionID uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.slabs[sessionID]; !ok {
		return
	}
	delete(r.slabs, sessionID)
	for key := range r.partitions {
		if key.session == sessionID {
			delete(r.partitions, key)
		}
	}
	logger.Debug("shared memory partition unmapped", "session_id", sessionID)
}

// Close unmaps the region and closes the memfd.
func (r *Region) Close() error {
	if err := unix.Munmap(r.buf); err != nil {
		return err
	}
	return unix.Close(r.fd)
}
