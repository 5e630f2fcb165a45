package shm

import "testing"

func TestMapPartition_Disjointness(t *testing.T) {
	r, err := NewRegion(1 << 20)
	if err != nil {
		t.Fatalf("NewRegion: %v", err)
	}
	defer r.Close()

	types := []SourceType{SourceAudio, SourceVideo, SourceSubtitle}
	if err := r.MapPartition(PlaybackGeneric, 1, types, 4096); err != nil {
		t.Fatalf("MapPartition(session 1): %v", err)
	}
	if err := r.MapPartition(PlaybackGeneric, 2, types, 4096); err != nil {
		t.Fatalf("MapPartition(session 2): %v", err)
	}

	type span struct{ off, len uint64 }
	var spans []span
	for _, sess := range []uint64{1, 2} {
		for _, st := range types {
			off := r.GetDataOffset(PlaybackGeneric, sess, st)
			l := r.GetMaxDataLen(PlaybackGeneric, sess, st)
			if l == 0 {
				t.Fatalf("session %d source %d: expected non-zero max_len", sess, st)
			}
			spans = append(spans, span{off, l})
		}
	}
	for i := 0; i < len(spans); i++ {
		for j := i + 1; j < len(spans); j++ {
			a, b := spans[i], spans[j]
			if a.off < b.off+b.len && b.off < a.off+a.len {
				t.Fatalf("overlapping partitions: %+v and %+v", a, b)
			}
		}
	}
}

func TestGetMaxDataLen_UnknownPartitionIsZero(t *testing.T) {
	r, err := NewRegion(4096)
	if err != nil {
		t.Fatalf("NewRegion: %v", err)
	}
	defer r.Close()
	if got := r.GetMaxDataLen(PlaybackGeneric, 99, SourceAudio); got != 0 {
		t.Fatalf("expected 0 for unmapped partition, got %d", got)
	}
}

func TestUnmapPartition_InvalidatesAndAllowsRemap(t *testing.T) {
	r, err := NewRegion(1 << 16)
	if err != nil {
		t.Fatalf("NewRegion: %v", err)
	}
	defer r.Close()

	types := []SourceType{SourceAudio}
	if err := r.MapPartition(PlaybackGeneric, 1, types, 4096); err != nil {
		t.Fatalf("MapPartition: %v", err)
	}
	r.UnmapPartition(1)
	if got := r.GetMaxDataLen(PlaybackGeneric, 1, SourceAudio); got != 0 {
		t.Fatalf("expected partition gone after unmap, got len=%d", got)
	}
	// Re-mapping the same session id after unmap must succeed (session ids
	// are assigned by the caller and can be reused once unmapped).
	if err := r.MapPartition(PlaybackGeneric, 1, types, 4096); err != nil {
		t.Fatalf("re-MapPartition after unmap: %v", err)
	}
}

func TestNewRegion_RejectsZeroSize(t *testing.T) {
	_, err := NewRegion(0)
	if err == nil {
		t.Fatal("expected error for zero-size region")
	}
}

func TestClearData_ZeroesPartitionBytes(t *testing.T) {
	r, err := NewRegion(1 << 16)
	if err != nil {
		t.Fatalf("NewRegion: %v", err)
	}
	defer r.Close()
	types := []SourceType{SourceAudio}
	if err := r.MapPartition(PlaybackGeneric, 1, types, 4096); err != nil {
		t.Fatalf("MapPartition: %v", err)
	}
	off := r.GetDataOffset(PlaybackGeneric, 1, SourceAudio)
	buf := r.GetBuffer()
	buf[off] = 0xAB
	r.ClearData(PlaybackGeneric, 1, SourceAudio)
	if buf[off] != 0 {
		t.Fatalf("expected byte cleared, got %x", buf[off])
	}
}
