package playback

import (
	"encoding/binary"
	"fmt"

	"github.com/rdkcentral/rialto-sub011/internal/protection"
	"github.com/rdkcentral/rialto-sub011/internal/rierr"
)

// Segment is one encoded frame handed over through the shared-memory
// partition: a header the client writes in front of the payload, plus the
// payload bytes themselves. Encrypted segments additionally carry the
// per-buffer protection record.
type Segment struct {
	TimestampNs int64
	DurationNs  int64
	Data        []byte

	Encrypted  bool
	Protection protection.Metadata
}

// Segment header layout inside the partition, little-endian:
//
//	u32 payload_len
//	i64 timestamp_ns
//	i64 duration_ns
//	u8  encrypted
//	-- only when encrypted == 1 --
//	u32 key_session_id
//	u16 key_id_len      | key_id bytes
//	u16 iv_len          | iv bytes
//	u16 subsample_count | (u32 clear, u32 encrypted) pairs
//	u8  init_with_last_15
//	-- payload_len payload bytes --
const (
	segHeaderFixed = 4 + 8 + 8 + 1
)

// EncodedLen returns the number of partition bytes s occupies.
func (s Segment) EncodedLen() uint64 {
	n := uint64(segHeaderFixed) + uint64(len(s.Data))
	if s.Encrypted {
		n += 4
		n += 2 + uint64(len(s.Protection.KeyID))
		n += 2 + uint64(len(s.Protection.IV))
		n += 2 + 8*uint64(len(s.Protection.Subsamples))
		n++
	}
	return n
}

// AppendSegment writes s into buf at off and returns the offset one past
// the written bytes. This is the producer side: the Client library (and
// tests standing in for it) writes segments into the partition it was told
// about, never past partition end.
func AppendSegment(buf []byte, off uint64, limit uint64, s Segment) (uint64, error) {
	need := s.EncodedLen()
	if off+need > limit {
		return off, rierr.Wrap(rierr.ResourceExhausted, "segment does not fit in partition")
	}
	b := buf[off:]
	binary.LittleEndian.PutUint32(b, uint32(len(s.Data)))
	binary.LittleEndian.PutUint64(b[4:], uint64(s.TimestampNs))
	binary.LittleEndian.PutUint64(b[12:], uint64(s.DurationNs))
	pos := uint64(segHeaderFixed)
	if s.Encrypted {
		b[20] = 1
		binary.LittleEndian.PutUint32(b[pos:], s.Protection.KeySessionID)
		pos += 4
		binary.LittleEndian.PutUint16(b[pos:], uint16(len(s.Protection.KeyID)))
		pos += 2
		pos += uint64(copy(b[pos:], s.Protection.KeyID))
		binary.LittleEndian.PutUint16(b[pos:], uint16(len(s.Protection.IV)))
		pos += 2
		pos += uint64(copy(b[pos:], s.Protection.IV))
		binary.LittleEndian.PutUint16(b[pos:], uint16(len(s.Protection.Subsamples)))
		pos += 2
		for _, sub := range s.Protection.Subsamples {
			binary.LittleEndian.PutUint32(b[pos:], sub.ClearBytes)
			binary.LittleEndian.PutUint32(b[pos+4:], sub.EncryptedBytes)
			pos += 8
		}
		if s.Protection.InitWithLast15 {
			b[pos] = 1
		} else {
			b[pos] = 0
		}
		pos++
	} else {
		b[20] = 0
	}
	pos += uint64(copy(b[pos:], s.Data))
	return off + pos, nil
}

// decodeSegments reads up to maxFrames segments from the partition slice.
// Data slices are copied out so the partition can be cleared immediately
// after decode — the producer's offsets become invalid the moment the
// server has taken ownership of the bytes.
func decodeSegments(part []byte, maxFrames uint32) ([]Segment, error) {
	var out []Segment
	pos := uint64(0)
	limit := uint64(len(part))
	for uint32(len(out)) < maxFrames {
		if pos+segHeaderFixed > limit {
			break
		}
		payloadLen := uint64(binary.LittleEndian.Uint32(part[pos:]))
		if payloadLen == 0 {
			// A zeroed header terminates the sequence: the partition is
			// cleared between cycles, so the first untouched byte run reads
			// as payload_len == 0.
			break
		}
		seg := Segment{
			TimestampNs: int64(binary.LittleEndian.Uint64(part[pos+4:])),
			DurationNs:  int64(binary.LittleEndian.Uint64(part[pos+12:])),
			Encrypted:   part[pos+20] == 1,
		}
		p := pos + segHeaderFixed
		if seg.Encrypted {
			var err error
			p, err = decodeProtection(part, p, limit, &seg.Protection)
			if err != nil {
				return nil, err
			}
		}
		if p+payloadLen > limit {
			return nil, rierr.Wrap(rierr.Fatal, fmt.Sprintf("segment payload overruns partition: pos=%d len=%d", p, payloadLen))
		}
		seg.Data = make([]byte, payloadLen)
		copy(seg.Data, part[p:p+payloadLen])
		pos = p + payloadLen
		out = append(out, seg)
	}
	return out, nil
}

func decodeProtection(part []byte, pos, limit uint64, meta *protection.Metadata) (uint64, error) {
	overrun := rierr.Wrap(rierr.Fatal, "protection record overruns partition")
	if pos+6 > limit {
		return pos, overrun
	}
	meta.KeySessionID = binary.LittleEndian.Uint32(part[pos:])
	pos += 4
	keyLen := uint64(binary.LittleEndian.Uint16(part[pos:]))
	pos += 2
	if pos+keyLen+2 > limit {
		return pos, overrun
	}
	meta.KeyID = append([]byte(nil), part[pos:pos+keyLen]...)
	pos += keyLen
	ivLen := uint64(binary.LittleEndian.Uint16(part[pos:]))
	pos += 2
	if pos+ivLen+2 > limit {
		return pos, overrun
	}
	meta.IV = append([]byte(nil), part[pos:pos+ivLen]...)
	pos += ivLen
	count := uint64(binary.LittleEndian.Uint16(part[pos:]))
	pos += 2
	if pos+8*count+1 > limit {
		return pos, overrun
	}
	meta.Subsamples = make([]protection.SubsampleEntry, count)
	for i := range meta.Subsamples {
		meta.Subsamples[i] = protection.SubsampleEntry{
			ClearBytes:     binary.LittleEndian.Uint32(part[pos:]),
			EncryptedBytes: binary.LittleEndian.Uint32(part[pos+4:]),
		}
		pos += 8
	}
	meta.InitWithLast15 = part[pos] == 1
	pos++
	return pos, nil
}
