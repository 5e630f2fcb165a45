package playback

import (
	"bytes"
	"testing"

	"github.com/rdkcentral/rialto-sub011/internal/protection"
	"github.com/rdkcentral/rialto-sub011/internal/rierr"
)

func TestSegmentRoundtrip_Clear(t *testing.T) {
	buf := make([]byte, 4096)
	in := Segment{TimestampNs: 1_000_000, DurationNs: 33_333_333, Data: []byte("frame-bytes")}

	end, err := AppendSegment(buf, 0, uint64(len(buf)), in)
	if err != nil {
		t.Fatalf("AppendSegment: %v", err)
	}
	if end != in.EncodedLen() {
		t.Errorf("cursor after append = %d, want %d", end, in.EncodedLen())
	}

	out, err := decodeSegments(buf, 10)
	if err != nil {
		t.Fatalf("decodeSegments: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(out))
	}
	if out[0].TimestampNs != in.TimestampNs || out[0].DurationNs != in.DurationNs {
		t.Errorf("timestamps mangled: %+v", out[0])
	}
	if !bytes.Equal(out[0].Data, in.Data) {
		t.Errorf("payload mangled: %q", out[0].Data)
	}
	if out[0].Encrypted {
		t.Error("clear segment decoded as encrypted")
	}
}

func TestSegmentRoundtrip_Encrypted(t *testing.T) {
	buf := make([]byte, 4096)
	in := Segment{
		TimestampNs: 5,
		DurationNs:  10,
		Data:        []byte{0xde, 0xad, 0xbe, 0xef},
		Encrypted:   true,
		Protection: protection.Metadata{
			KeySessionID:   42,
			KeyID:          []byte{1, 2, 3, 4},
			IV:             []byte{9, 8, 7},
			Subsamples:     []protection.SubsampleEntry{{ClearBytes: 16, EncryptedBytes: 240}},
			InitWithLast15: true,
		},
	}

	if _, err := AppendSegment(buf, 0, uint64(len(buf)), in); err != nil {
		t.Fatalf("AppendSegment: %v", err)
	}
	out, err := decodeSegments(buf, 1)
	if err != nil {
		t.Fatalf("decodeSegments: %v", err)
	}
	if len(out) != 1 || !out[0].Encrypted {
		t.Fatalf("expected 1 encrypted segment, got %+v", out)
	}
	got := out[0].Protection
	if got.KeySessionID != 42 || !bytes.Equal(got.KeyID, in.Protection.KeyID) ||
		!bytes.Equal(got.IV, in.Protection.IV) || !got.InitWithLast15 {
		t.Errorf("protection record mangled: %+v", got)
	}
	if len(got.Subsamples) != 1 || got.Subsamples[0].EncryptedBytes != 240 {
		t.Errorf("subsample map mangled: %+v", got.Subsamples)
	}
}

func TestAppendSegment_RejectsOverflow(t *testing.T) {
	buf := make([]byte, 64)
	in := Segment{Data: make([]byte, 128)}
	if _, err := AppendSegment(buf, 0, uint64(len(buf)), in); !rierr.Is(err, rierr.ResourceExhausted) {
		t.Fatalf("expected ResourceExhausted, got %v", err)
	}
}

func TestDecodeSegments_StopsAtFrameLimitAndZeroHeader(t *testing.T) {
	buf := make([]byte, 4096)
	off := uint64(0)
	var err error
	for i := 0; i < 3; i++ {
		off, err = AppendSegment(buf, off, uint64(len(buf)), Segment{Data: []byte{byte(i)}})
		if err != nil {
			t.Fatalf("AppendSegment: %v", err)
		}
	}

	out, err := decodeSegments(buf, 2)
	if err != nil {
		t.Fatalf("decodeSegments: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("frame limit ignored: got %d segments", len(out))
	}

	all, err := decodeSegments(buf, 100)
	if err != nil {
		t.Fatalf("decodeSegments: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("zeroed header must terminate the sequence after 3, got %d", len(all))
	}
}
