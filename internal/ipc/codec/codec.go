// Package codec implements the length-delimited RPC frame: a fixed
// binary header followed by an opaque body,
// with out-of-band file descriptors carried by SCM_RIGHTS in the same
// sendmsg call as the frame bytes (the fd_count header field is a
// redundancy check against what the socket layer actually receives).
package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/rdkcentral/rialto-sub011/internal/rierr"
)

// Kind distinguishes the three message kinds carried on a channel.
type Kind uint8

const (
	KindRequest Kind = iota
	KindResponse
	KindEvent
)

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "Request"
	case KindResponse:
		return "Response"
	case KindEvent:
		return "Event"
	default:
		return "Unknown"
	}
}

const (
	// HeaderLen is the fixed size, in bytes, of the frame header:
	// u32 body_length | u32 method_or_serial | u8 kind | u8 fd_count | u16 reserved.
	HeaderLen = 4 + 4 + 1 + 1 + 2

	// DefaultMaxFrameBytes is the default max_frame_bytes limit (1 MiB).
	DefaultMaxFrameBytes = 1 << 20
	// DefaultMaxFDsPerFrame is the default max_fds_per_frame limit.
	DefaultMaxFDsPerFrame = 8
)

// Message is a decoded or to-be-encoded RPC frame.
type Message struct {
	Kind          Kind
	MethodOrSerial uint32 // method_id for Request/Event, serial for Response
	Body          []byte
	FDs           []int // ordered file descriptors passed via SCM_RIGHTS
}

// Limits bounds what Encode/Decode will accept.
type Limits struct {
	MaxFrameBytes  uint32
	MaxFDsPerFrame uint8
}

// DefaultLimits returns the standard frame limits.
func DefaultLimits() Limits {
	return Limits{MaxFrameBytes: DefaultMaxFrameBytes, MaxFDsPerFrame: DefaultMaxFDsPerFrame}
}

// Encode serialises msg's header+body into a byte slice ready for the
// socket layer to send alongside msg.FDs via SCM_RIGHTS. It does not touch
// the socket itself — that is internal/ipc/channel's and
// internal/ipc/server's job, since FD passing requires sendmsg, not write.
func Encode(msg Message, limits Limits) ([]byte, error) {
	if uint32(len(msg.Body)) > limits.MaxFrameBytes {
		return nil, rierr.Wrap(rierr.InvalidArgument, fmt.Sprintf("body_length %d exceeds max_frame_bytes %d", len(msg.Body), limits.MaxFrameBytes))
	}
	if len(msg.FDs) > int(limits.MaxFDsPerFrame) {
		return nil, rierr.Wrap(rierr.InvalidArgument, fmt.Sprintf("fd_count %d exceeds max_fds_per_frame %d", len(msg.FDs), limits.MaxFDsPerFrame))
	}

	buf := make([]byte, HeaderLen+len(msg.Body))
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(msg.Body)))
	binary.BigEndian.PutUint32(buf[4:8], msg.MethodOrSerial)
	buf[8] = byte(msg.Kind)
	buf[9] = byte(len(msg.FDs))
	binary.BigEndian.PutUint16(buf[10:12], 0) // reserved
	copy(buf[HeaderLen:], msg.Body)
	return buf, nil
}

// Header is the fully parsed fixed-size frame header.
type Header struct {
	BodyLength     uint32
	MethodOrSerial uint32
	Kind           Kind
	FDCount        uint8
}

// DecodeHeader parses the fixed-size header from buf, which must be at
// least HeaderLen bytes. It validates body_length and fd_count against
// limits but does not validate fd_count against the FDs actually received
// via ancillary data — call ValidateFDCount for that once the socket layer
// has parsed SCM_RIGHTS.
func DecodeHeader(buf []byte, limits Limits) (Header, error) {
	if len(buf) < HeaderLen {
		return Header{}, rierr.Wrap(rierr.ChannelProtocolError, "truncated frame header")
	}
	h := Header{
		BodyLength:     binary.BigEndian.Uint32(buf[0:4]),
		MethodOrSerial: binary.BigEndian.Uint32(buf[4:8]),
		Kind:           Kind(buf[8]),
		FDCount:        buf[9],
	}
	if h.Kind != KindRequest && h.Kind != KindResponse && h.Kind != KindEvent {
		return Header{}, rierr.Wrap(rierr.ChannelProtocolError, fmt.Sprintf("unknown frame kind %d", buf[8]))
	}
	if h.BodyLength > limits.MaxFrameBytes {
		return Header{}, rierr.Wrap(rierr.ChannelProtocolError, fmt.Sprintf("body_length %d exceeds max_frame_bytes %d", h.BodyLength, limits.MaxFrameBytes))
	}
	if h.FDCount > limits.MaxFDsPerFrame {
		return Header{}, rierr.Wrap(rierr.ChannelProtocolError, fmt.Sprintf("fd_count %d exceeds max_fds_per_frame %d", h.FDCount, limits.MaxFDsPerFrame))
	}
	return h, nil
}

// Decode parses a complete frame (header+body already assembled by the
// socket layer) and validates it against the fds actually received via
// SCM_RIGHTS ancillary data for this same datagram. On any error the
// caller MUST close every fd in receivedFDs — Decode does not take
// ownership of them.
func Decode(buf []byte, receivedFDs []int, limits Limits) (Message, error) {
	h, err := DecodeHeader(buf, limits)
	if err != nil {
		return Message{}, err
	}
	if len(buf) != HeaderLen+int(h.BodyLength) {
		return Message{}, rierr.Wrap(rierr.ChannelProtocolError, "frame length does not match body_length")
	}
	if int(h.FDCount) != len(receivedFDs) {
		return Message{}, rierr.Wrap(rierr.ChannelProtocolError, fmt.Sprintf("fd_count %d does not match %d fds received", h.FDCount, len(receivedFDs)))
	}

	body := make([]byte, h.BodyLength)
	copy(body, buf[HeaderLen:])

	return Message{
		Kind:           h.Kind,
		MethodOrSerial: h.MethodOrSerial,
		Body:           body,
		FDs:            receivedFDs,
	}, nil
}
