// Package rpc implements the RPC stub/dispatcher layer on top of
// internal/ipc/channel and internal/ipc/server. Method bodies are
// JSON-encoded Go structs carried inside the custom frame format; method
// dispatch is a map lookup keyed by method id — this transport has no
// codegen.
package rpc

import (
	"encoding/json"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/rdkcentral/rialto-sub011/internal/ipc/codec"
	"github.com/rdkcentral/rialto-sub011/internal/ipc/server"
	"github.com/rdkcentral/rialto-sub011/internal/logger"
	"github.com/rdkcentral/rialto-sub011/internal/rierr"
)

// MethodID identifies one RPC method or event.
type MethodID uint32

// MethodKind is one of the three method shapes.
type MethodKind uint8

const (
	// CallWithReply: client blocks/polls until a typed response, a
	// set-failed controller, or channel disconnect.
	CallWithReply MethodKind = iota
	// CallWithoutReply: best-effort send; only failure is "could not enqueue".
	CallWithoutReply
	// Event: server-to-client one-way, dropped silently if no subscriber; the
	// drop is logged at debug level and not counted.
	Event
)

// envelope is the JSON body wrapping every method id inside a codec.Message;
// the codec frame header's method_or_serial field carries the serial for
// Request/Response, so the method id itself travels inside the body.
type envelope struct {
	Method MethodID        `json:"method"`
	Params json.RawMessage `json:"params"`
}

// HandlerFunc processes a decoded call-with-reply or call-without-reply
// request and returns the typed response body to serialise (nil for
// call-without-reply methods).
type HandlerFunc func(conn *server.Connection, params json.RawMessage, fds []int) (resp any, respFDs []int, err error)

// Dispatcher routes incoming Request frames to registered handlers and
// sends Event frames to a connection via Emit. One Dispatcher serves one
// Server (the session's RPC surface); the Client side uses Stub instead.
type Dispatcher struct {
	srv *server.Server

	mu       sync.RWMutex
	handlers map[MethodID]HandlerFunc

	// Events carry no sequence number of their own; they are ordered
	// purely by per-channel FIFO send order, which already gives
	// arrival-order delivery per channel.
}

// NewDispatcher wires a Dispatcher to srv's message stream.
func NewDispatcher(srv *server.Server) *Dispatcher {
	d := &Dispatcher{srv: srv, handlers: make(map[MethodID]HandlerFunc)}
	srv.SetMessageHandler(d.onMessage)
	return d
}

// Register installs handler for method id. Re-registering the same id
// replaces the previous handler (used by tests).
func (d *Dispatcher) Register(method MethodID, handler HandlerFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[method] = handler
}

func (d *Dispatcher) onMessage(conn *server.Connection, kind codec.Kind, serial uint32, body []byte, fds []int) {
	if kind != codec.KindRequest {
		logger.Warn("unexpected frame kind on server dispatcher", "kind", kind.String())
		for _, fd := range fds {
			_ = unix.Close(fd)
		}
		return
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		logger.Warn("malformed RPC envelope, dropping", "error", err)
		for _, fd := range fds {
			_ = unix.Close(fd)
		}
		return
	}

	d.mu.RLock()
	handler, ok := d.handlers[env.Method]
	d.mu.RUnlock()
	if !ok {
		logger.Warn("no handler registered for method", "method", env.Method)
		d.replyError(conn, serial, rierr.Wrap(rierr.RpcCallFailed, "unknown method"))
		return
	}

	resp, respFDs, err := handler(conn, env.Params, fds)
	if err != nil {
		d.replyError(conn, serial, err)
		return
	}
	if resp == nil {
		// call-without-reply: no response frame expected.
		return
	}
	d.reply(conn, serial, resp, respFDs)
}

func (d *Dispatcher) reply(conn *server.Connection, serial uint32, resp any, fds []int) {
	body, err := json.Marshal(resp)
	if err != nil {
		logger.Error("failed to marshal RPC response", "error", err)
		return
	}
	msg := codec.Message{Kind: codec.KindResponse, MethodOrSerial: serial, Body: body, FDs: fds}
	if err := d.srv.Send(conn, msg); err != nil {
		logger.Warn("failed to send RPC response", "error", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (d *Dispatcher) replyError(conn *server.Connection, serial uint32, err error) {
	d.reply(conn, serial, errorResponse{Error: err.Error()}, nil)
}

// Emit sends an Event frame carrying payload to conn, the server-to-client
// one-way direction. Events are dispatched in per-channel
// arrival (i.e. send) order because they share the same outbound path as
// replies.
func (d *Dispatcher) Emit(conn *server.Connection, method MethodID, payload any, fds []int) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return d.srv.Send(conn, codec.Message{Kind: codec.KindEvent, MethodOrSerial: uint32(method), Body: body, FDs: fds})
}
