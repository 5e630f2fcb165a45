package rpc

import (
	"encoding/json"

	"github.com/rdkcentral/rialto-sub011/internal/ipc/channel"
	"github.com/rdkcentral/rialto-sub011/internal/rierr"
)

// Stub is the client-side counterpart of Dispatcher: it serialises typed
// requests into envelopes, drives channel.Channel.Call/Send, and exposes
// typed event subscription. One Stub wraps one Channel.
type Stub struct {
	ch *channel.Channel
}

// NewStub wraps an already-connected Channel.
func NewStub(ch *channel.Channel) *Stub {
	return &Stub{ch: ch}
}

// CallWithReply sends method/params and blocks (via the returned
// controller's Wait) for a typed response, unmarshalled into respPtr once
// the call succeeds.
func (s *Stub) CallWithReply(method MethodID, params any, respPtr any) error {
	_, err := s.CallWithReplyFDs(method, params, respPtr)
	return err
}

// CallWithReplyFDs is CallWithReply for methods whose response carries
// passed file descriptors (the shared-memory handshake). Ownership of the
// returned FDs transfers to the caller.
func (s *Stub) CallWithReplyFDs(method MethodID, params any, respPtr any) ([]int, error) {
	body, err := s.encode(method, params)
	if err != nil {
		return nil, err
	}
	ctrl, err := s.ch.Call(body, nil)
	if err != nil {
		return nil, err
	}
	respBody, fds, err := ctrl.Wait()
	if err != nil {
		return nil, err
	}
	var envErr errorResponse
	if json.Unmarshal(respBody, &envErr) == nil && envErr.Error != "" {
		return fds, rierr.Wrap(rierr.RpcCallFailed, envErr.Error)
	}
	if respPtr != nil {
		return fds, json.Unmarshal(respBody, respPtr)
	}
	return fds, nil
}

// CallWithoutReply sends a best-effort request; the only possible failure
// is "could not enqueue" (channel gone).
func (s *Stub) CallWithoutReply(method MethodID, params any) error {
	body, err := s.encode(method, params)
	if err != nil {
		return err
	}
	return s.ch.Send(body, nil)
}

func (s *Stub) encode(method MethodID, params any) ([]byte, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Method: method, Params: raw})
}

// EventCallback is invoked once per delivered event, in arrival order.
type EventCallback func(payload json.RawMessage, fds []int)

// Subscribe registers cb for every Event frame whose method id matches.
func (s *Stub) Subscribe(method MethodID, cb EventCallback) {
	s.ch.Subscribe(uint32(method), func(body []byte, fds []int) {
		cb(json.RawMessage(body), fds)
	})
}
