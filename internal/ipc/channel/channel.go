// Package channel implements the client side of the RPC fabric: the
// exclusive owner of one connected socket,
// a monotonic serial counter, a pending-reply map, a subscription map, and
// a bounded outbound queue. wait/process are separate so the caller can
// drive the event loop, but process() itself must be serialised by the
// caller if called from multiple goroutines.
package channel

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/rdkcentral/rialto-sub011/internal/ipc/codec"
	"github.com/rdkcentral/rialto-sub011/internal/ipc/transport"
	"github.com/rdkcentral/rialto-sub011/internal/logger"
	"github.com/rdkcentral/rialto-sub011/internal/rierr"
)

// unixEAGAIN is the error returned by a non-blocking socket op with no data
// or buffer space ready.
var unixEAGAIN = unix.EAGAIN

// EventHandler is invoked for every Event frame delivered for a method_id
// the caller has subscribed to, in arrival order.
type EventHandler func(body []byte, fds []int)

// Controller tracks one in-flight call-with-reply RPC. It can be
// set-failed from any thread; in-flight reply delivery after cancellation
// is dropped.
type Controller struct {
	done      chan struct{}
	once      sync.Once
	mu        sync.Mutex
	body      []byte
	fds       []int
	err       error
	failed    bool
	delivered bool
}

func newController() *Controller {
	return &Controller{done: make(chan struct{})}
}

// Wait blocks until the call completes, fails, or the channel disconnects.
func (c *Controller) Wait() ([]byte, []int, error) {
	<-c.done
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.body, c.fds, c.err
}

// SetFailed marks the call as failed with reason, from any thread. If the
// reply has already been delivered this is a no-op.
func (c *Controller) SetFailed(reason string) {
	c.mu.Lock()
	if c.failed || c.delivered {
		c.mu.Unlock()
		return
	}
	c.failed = true
	c.err = rierr.Wrap(rierr.RpcCallFailed, reason)
	c.mu.Unlock()
	c.once.Do(func() { close(c.done) })
}

func (c *Controller) complete(body []byte, fds []int) {
	c.mu.Lock()
	if c.failed {
		// Cancelled: drop the late reply.
		c.mu.Unlock()
		for _, fd := range fds {
			_ = unix.Close(fd)
		}
		return
	}
	c.body, c.fds = body, fds
	c.delivered = true
	c.mu.Unlock()
	c.once.Do(func() { close(c.done) })
}

type outboundFrame struct {
	msg codec.Message
}

// Channel is the client-side connection endpoint.
type Channel struct {
	ep     *transport.Endpoint
	poller *transport.Poller
	limits codec.Limits

	serial uint32 // atomic, per-channel monotonic

	mu        sync.Mutex
	pending   map[uint32]*Controller
	subs      map[uint32][]EventHandler
	outbound  []outboundFrame
	closed    bool
	maxQueued int
}

// Connect dials path and returns a ready-to-drive Channel.
func Connect(path string, limits codec.Limits) (*Channel, error) {
	ep, err := transport.Connect(path, limits)
	if err != nil {
		return nil, err
	}
	poller, err := transport.NewPoller()
	if err != nil {
		_ = ep.Close()
		return nil, err
	}
	if err := poller.Add(ep.FD(), false); err != nil {
		_ = ep.Close()
		_ = poller.Close()
		return nil, err
	}
	return &Channel{
		ep:        ep,
		poller:    poller,
		limits:    limits,
		pending:   make(map[uint32]*Controller),
		subs:      make(map[uint32][]EventHandler),
		maxQueued: 256,
	}, nil
}

// Wait blocks until the socket is readable/writable or timeoutMs elapses
// (-1 for infinite); returns true if work is available.
func (c *Channel) Wait(timeoutMs int) (bool, error) {
	return c.poller.Wait(timeoutMs)
}

// Subscribe registers handler for every Event frame with the given method id.
func (c *Channel) Subscribe(methodID uint32, handler EventHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs[methodID] = append(c.subs[methodID], handler)
}

// Call sends a Request frame carrying an already-serialised envelope (the
// RPC layer, package internal/ipc/rpc, embeds the method id into body) and
// returns a Controller the caller can Wait() on. The wire field that
// distinguishes one Request from another is the channel's own serial
// counter, not the method id — the pending-reply map is keyed
// "serial -> callback", so method dispatch on the receiving end is
// done by the RPC layer unpacking the method id from inside body. The
// completion is always resolved from Process(), never from this call.
func (c *Channel) Call(body []byte, fds []int) (*Controller, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, rierr.Wrap(rierr.ChannelDisconnected, "channel closed")
	}
	serial := atomic.AddUint32(&c.serial, 1)
	ctrl := newController()
	c.pending[serial] = ctrl
	c.enqueueLocked(codec.Message{Kind: codec.KindRequest, MethodOrSerial: serial, Body: body, FDs: fds})
	c.mu.Unlock()
	return ctrl, nil
}

// Send sends a best-effort Request frame (call-without-reply); the only
// possible failure is "could not enqueue" (channel gone).
func (c *Channel) Send(body []byte, fds []int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return rierr.Wrap(rierr.ChannelDisconnected, "channel closed")
	}
	serial := atomic.AddUint32(&c.serial, 1)
	c.enqueueLocked(codec.Message{Kind: codec.KindRequest, MethodOrSerial: serial, Body: body, FDs: fds})
	return nil
}

// enqueueLocked must be called with c.mu held.
func (c *Channel) enqueueLocked(msg codec.Message) {
	if len(c.outbound) >= c.maxQueued {
		logger.Warn("channel outbound queue full, dropping oldest frame", "queued", len(c.outbound))
		c.outbound = c.outbound[1:]
	}
	c.outbound = append(c.outbound, outboundFrame{msg: msg})
}

// Process drains all ready data without blocking: dispatches every
// fully-assembled frame and flushes pending outbound frames. Returns false
// if the connection is permanently closed.
func (c *Channel) Process() bool {
	for {
		msg, err := c.ep.Recv()
		if err != nil {
			if err == unixEAGAIN {
				break
			}
			c.onDisconnect(err)
			return false
		}
		c.dispatch(msg)
	}
	c.flushOutbound()
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	return !closed
}

func (c *Channel) dispatch(msg codec.Message) {
	switch msg.Kind {
	case codec.KindResponse:
		c.mu.Lock()
		ctrl, ok := c.pending[msg.MethodOrSerial]
		if ok {
			delete(c.pending, msg.MethodOrSerial)
		}
		c.mu.Unlock()
		if ok {
			ctrl.complete(msg.Body, msg.FDs)
		} else {
			logger.Warn("response for unknown serial, dropped", "serial", msg.MethodOrSerial)
			for _, fd := range msg.FDs {
				_ = unix.Close(fd)
			}
		}
	case codec.KindEvent:
		c.mu.Lock()
		handlers := append([]EventHandler(nil), c.subs[msg.MethodOrSerial]...)
		c.mu.Unlock()
		if len(handlers) == 0 {
			logger.Debug("event dropped, no subscriber", "method_id", msg.MethodOrSerial)
			return
		}
		for _, h := range handlers {
			h(msg.Body, msg.FDs)
		}
	default:
		logger.Warn("unexpected frame kind on client channel", "kind", msg.Kind.String())
	}
}

func (c *Channel) flushOutbound() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.outbound) > 0 {
		frame := c.outbound[0]
		if err := c.ep.Send(frame.msg); err != nil {
			if err == unixEAGAIN {
				_ = c.poller.Modify(c.ep.FD(), true)
				return
			}
			c.onDisconnectLocked(err)
			return
		}
		c.outbound = c.outbound[1:]
	}
	_ = c.poller.Modify(c.ep.FD(), false)
}

func (c *Channel) onDisconnect(err error) {
	c.mu.Lock()
	c.onDisconnectLocked(err)
	c.mu.Unlock()
}

// onDisconnectLocked drains every pending-reply callback with
// ChannelDisconnected exactly once.
func (c *Channel) onDisconnectLocked(err error) {
	if c.closed {
		return
	}
	c.closed = true
	for serial, ctrl := range c.pending {
		delete(c.pending, serial)
		ctrl.SetFailed(rierr.ChannelDisconnected.Error())
	}
	logger.Warn("channel disconnected", "error", err)
}

// Close disconnects the channel, draining all pending calls.
func (c *Channel) Close() error {
	c.mu.Lock()
	c.onDisconnectLocked(rierr.ChannelDisconnected)
	c.mu.Unlock()
	_ = c.poller.Close()
	return c.ep.Close()
}
