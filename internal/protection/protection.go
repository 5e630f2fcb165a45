// Package protection implements the decryption/protection-metadata
// pipeline: per-buffer DRM metadata attached to an encrypted segment until
// a downstream decryptor consumes it. The metadata lives in a Store keyed
// by segment identity so metadata and buffer share one lifetime.
package protection

import (
	"fmt"
	"sync"

	"github.com/rdkcentral/rialto-sub011/internal/rierr"
)

// SubsampleEntry is one (clear, encrypted) byte-count pair of the
// subsample map.
type SubsampleEntry struct {
	ClearBytes     uint32
	EncryptedBytes uint32
}

// Metadata is the per-buffer DRM record carried alongside an encrypted
// segment.
type Metadata struct {
	KeySessionID   uint32
	KeyID          []byte
	IV             []byte
	Subsamples     []SubsampleEntry
	InitWithLast15 bool
}

// SegmentID identifies the encrypted buffer the metadata is borrowed by.
// It is whatever stable identity the playback package's buffered-segment
// type exposes.
type SegmentID uint64

// Store owns the one-to-one Metadata<->SegmentID association: the
// metadata is borrowed by the buffer and is destroyed with it, or
// explicitly removed before the buffer passes the decryptor.
type Store struct {
	mu   sync.Mutex
	byID map[SegmentID]Metadata
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{byID: make(map[SegmentID]Metadata)}
}

// Attach records meta for segment. Attaching twice for the same segment
// without an intervening Remove replaces the previous metadata, keeping
// exactly one instance attached at any instant.
func (s *Store) Attach(segment SegmentID, meta Metadata) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[segment] = meta
}

// Get returns segment's metadata and whether any is attached.
func (s *Store) Get(segment SegmentID) (Metadata, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[segment]
	return m, ok
}

// Remove detaches segment's metadata, if any. Always safe to call, even
// with none attached (matches "if the metadata is absent when the
// decryptor runs, the buffer is treated as clear and passed through").
func (s *Store) Remove(segment SegmentID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, segment)
}

// Decryptor is the injected collaborator performing the actual
// decryption; it is the typed boundary to the platform DRM bindings.
type Decryptor interface {
	Decrypt(keySessionID uint32, buffer []byte, subsamples []SubsampleEntry, iv []byte, keyID []byte, initWithLast15 bool) error
}

// DecryptAndDetach is the decryptor-consumption half: it looks up
// segment's metadata, invokes dec, and removes the metadata before the
// buffer leaves the decryptor regardless of outcome — after this call Get
// reports nothing attached. If no metadata is attached, buffer is treated
// as clear and dec is never called.
func (s *Store) DecryptAndDetach(dec Decryptor, segment SegmentID, buffer []byte) error {
	meta, ok := s.Get(segment)
	if !ok {
		return nil
	}
	d := dec
	defer s.Remove(segment)

	if err := d.Decrypt(meta.KeySessionID, buffer, meta.Subsamples, meta.IV, meta.KeyID, meta.InitWithLast15); err != nil {
		return rierr.Wrap(rierr.DecryptionFailed, fmt.Sprintf("segment %d: %v", segment, err))
	}
	return nil
}
