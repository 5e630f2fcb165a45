package codec

import (
	"errors"
	"testing"

	"github.com/rdkcentral/rialto-sub011/internal/rierr"
)

func TestEncodeDecodeRoundtrip(t *testing.T) {
	limits := DefaultLimits()
	msg := Message{
		Kind:           KindRequest,
		MethodOrSerial: 42,
		Body:           []byte("hello rialto"),
		FDs:            nil,
	}

	buf, err := Encode(msg, limits)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := Decode(buf, nil, limits)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Kind != msg.Kind || got.MethodOrSerial != msg.MethodOrSerial || string(got.Body) != string(msg.Body) {
		t.Fatalf("roundtrip mismatch: got %+v, want %+v", got, msg)
	}
}

func TestEncode_RejectsOversizeBody(t *testing.T) {
	limits := Limits{MaxFrameBytes: 4, MaxFDsPerFrame: 8}
	_, err := Encode(Message{Body: []byte("too long")}, limits)
	if !rierr.Is(err, rierr.InvalidArgument) {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestEncode_RejectsTooManyFDs(t *testing.T) {
	limits := Limits{MaxFrameBytes: DefaultMaxFrameBytes, MaxFDsPerFrame: 1}
	_, err := Encode(Message{FDs: []int{1, 2, 3}}, limits)
	if !rierr.Is(err, rierr.InvalidArgument) {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestDecode_TruncatedHeader(t *testing.T) {
	_, err := Decode([]byte{1, 2, 3}, nil, DefaultLimits())
	if !rierr.Is(err, rierr.ChannelProtocolError) {
		t.Fatalf("expected ChannelProtocolError, got %v", err)
	}
}

func TestDecode_BodyLengthMismatch(t *testing.T) {
	limits := DefaultLimits()
	buf, err := Encode(Message{Body: []byte("abcd")}, limits)
	if err != nil {
		t.Fatal(err)
	}
	truncated := buf[:len(buf)-1]
	_, err = Decode(truncated, nil, limits)
	if !rierr.Is(err, rierr.ChannelProtocolError) {
		t.Fatalf("expected ChannelProtocolError, got %v", err)
	}
}

func TestDecode_FDCountMismatchRequiresCallerToCloseFDs(t *testing.T) {
	limits := DefaultLimits()
	buf, err := Encode(Message{Body: []byte("x"), FDs: []int{7, 8}}, limits)
	if err != nil {
		t.Fatal(err)
	}
	// Simulate the socket layer having received only one fd in ancillary data.
	_, err = Decode(buf, []int{99}, limits)
	if !rierr.Is(err, rierr.ChannelProtocolError) {
		t.Fatalf("expected ChannelProtocolError, got %v", err)
	}
	// The contract requires the caller (not Decode) to close receivedFDs on
	// failure; Decode itself must not have taken ownership. The fds here are
	// not real, so this test checks only the error kind; the closing is done
	// by internal/ipc/transport's Endpoint.Recv.
}

func TestDecode_UnknownKind(t *testing.T) {
	limits := DefaultLimits()
	buf, err := Encode(Message{Kind: KindEvent, Body: []byte("x")}, limits)
	if err != nil {
		t.Fatal(err)
	}
	buf[8] = 99
	_, err = Decode(buf, nil, limits)
	if !errors.Is(err, rierr.ChannelProtocolError) {
		t.Fatalf("expected ChannelProtocolError, got %v", err)
	}
}

func TestKindString(t *testing.T) {
	cases := map[Kind]string{KindRequest: "Request", KindResponse: "Response", KindEvent: "Event", Kind(99): "Unknown"}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", k, got, want)
		}
	}
}
