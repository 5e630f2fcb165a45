// Package server implements the server side of the RPC fabric: one or
// more listening SOCK_SEQPACKET sockets, an accept loop that captures peer
// credentials, and per-connection endpoints driven by the same
// wait/process split as the client side. Safe under a single processor
// thread (the caller drives Wait/Process); accepting new connections runs
// on one goroutine per listen socket, joined via golang.org/x/sync/errgroup.
package server

import (
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/rdkcentral/rialto-sub011/internal/ipc/codec"
	"github.com/rdkcentral/rialto-sub011/internal/ipc/transport"
	"github.com/rdkcentral/rialto-sub011/internal/logger"
	"github.com/rdkcentral/rialto-sub011/internal/rierr"
)

// PeerCredentials is the SO_PEERCRED-equivalent identity captured on accept.
type PeerCredentials struct {
	PID int
	UID int
	GID int
}

// Connection is one accepted peer: a ready-to-drive Channel-shaped endpoint
// plus its captured identity. The dispatcher (internal/ipc/rpc) receives it
// with every frame and replies through Server.Send; Server only owns the
// raw socket and credential capture.
type Connection struct {
	ID    uint64
	// Correlation tags every log line about this connection so interleaved
	// multi-client traces can be pulled apart; it never goes on the wire.
	Correlation uuid.UUID
	Peer        PeerCredentials
	EP          *transport.Endpoint
	mu          sync.Mutex
	alive       bool
}

// Close closes the underlying socket. Safe to call more than once.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.alive {
		return nil
	}
	c.alive = false
	return c.EP.Close()
}

// ConnectedFunc is invoked once per accepted connection, in accept order.
type ConnectedFunc func(*Connection)

// DisconnectedFunc is invoked once per connection teardown.
type DisconnectedFunc func(*Connection)

// Server owns zero or more listen sockets plus the accepted connections.
type Server struct {
	limits codec.Limits
	poller *transport.Poller

	onConnected    ConnectedFunc
	onDisconnected DisconnectedFunc

	mu         sync.Mutex
	listeners  map[int]*transport.Endpoint // fd -> listener endpoint
	conns      map[int]*Connection         // fd -> connection
	nextConnID uint64
	onMessage  messageFunc
}

// New creates a Server with no listeners yet; call Listen or AddPaired to
// register sockets before driving Wait/Process.
func New(limits codec.Limits, onConnected ConnectedFunc, onDisconnected DisconnectedFunc) (*Server, error) {
	poller, err := transport.NewPoller()
	if err != nil {
		return nil, err
	}
	return &Server{
		limits:         limits,
		poller:         poller,
		onConnected:    onConnected,
		onDisconnected: onDisconnected,
		listeners:      make(map[int]*transport.Endpoint),
		conns:          make(map[int]*Connection),
	}, nil
}

// Permission is the per-class socket-permission bitmask (r=4 w=2 x=1).
type Permission struct{ Owner, Group, Other uint8 }

// Listen creates a SOCK_SEQPACKET listen socket bound to path (the caller
// has already resolved the bare-name/absolute-path form via
// internal/config.ResolveSocketPath) and applies perm to the resulting
// socket file.
func (s *Server) Listen(path string, perm Permission) error {
	_ = os.Remove(path) // stale socket from a prior crashed run

	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_SEQPACKET|unix.SOCK_CLOEXEC|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		return fmt.Errorf("socket: %w", err)
	}
	sa := &unix.SockaddrUnix{Name: path}
	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return fmt.Errorf("bind %s: %w", path, err)
	}
	mode := os.FileMode(uint32(perm.Owner)<<6 | uint32(perm.Group)<<3 | uint32(perm.Other))
	if err := os.Chmod(path, mode); err != nil {
		logger.Warn("socket chmod failed", "path", path, "error", err)
	}
	if err := unix.Listen(fd, 16); err != nil {
		_ = unix.Close(fd)
		return fmt.Errorf("listen %s: %w", path, err)
	}
	if err := s.poller.Add(fd, false); err != nil {
		_ = unix.Close(fd)
		return err
	}

	ep := transport.NewEndpoint(fd, s.limits)
	s.mu.Lock()
	s.listeners[fd] = ep
	s.mu.Unlock()
	return nil
}

// AddPaired registers an already-connected socket fd (the socketpair
// use-case) as a live Connection without going through accept().
func (s *Server) AddPaired(fd int) (*Connection, error) {
	if err := s.poller.Add(fd, false); err != nil {
		return nil, err
	}
	ep := transport.NewEndpoint(fd, s.limits)
	conn := s.newConnLocked(ep, PeerCredentials{PID: os.Getpid()})
	if s.onConnected != nil {
		s.onConnected(conn)
	}
	return conn, nil
}

func (s *Server) newConnLocked(ep *transport.Endpoint, peer PeerCredentials) *Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextConnID++
	conn := &Connection{ID: s.nextConnID, Correlation: uuid.New(), Peer: peer, EP: ep, alive: true}
	s.conns[ep.FD()] = conn
	return conn
}

// Wait blocks until at least one listen or connection socket is ready, or
// timeoutMs elapses (-1 for infinite).
func (s *Server) Wait(timeoutMs int) (bool, error) {
	return s.poller.Wait(timeoutMs)
}

// Process drains every ready listener (accepting new connections, one
// goroutine per listener joined by an errgroup, so a slow credential lookup
// on one listener never blocks accepts on another; accepts on the same
// listener run one after the other) and every ready connection (closing it on protocol error or disconnect).
// Returns false only if every listener and connection has been torn down.
func (s *Server) Process() bool {
	s.mu.Lock()
	listenerFDs := make([]int, 0, len(s.listeners))
	for fd := range s.listeners {
		listenerFDs = append(listenerFDs, fd)
	}
	s.mu.Unlock()

	var g errgroup.Group
	for _, fd := range listenerFDs {
		fd := fd
		g.Go(func() error {
			s.acceptAll(fd)
			return nil
		})
	}
	_ = g.Wait()

	s.mu.Lock()
	connFDs := make([]int, 0, len(s.conns))
	for fd := range s.conns {
		connFDs = append(connFDs, fd)
	}
	s.mu.Unlock()

	for _, fd := range connFDs {
		s.processConn(fd)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners) > 0 || len(s.conns) > 0
}

func (s *Server) acceptAll(listenFD int) {
	for {
		fd, _, err := unix.Accept4(listenFD, unix.SOCK_CLOEXEC|unix.SOCK_NONBLOCK)
		if err != nil {
			if err != unix.EAGAIN {
				logger.Warn("accept failed", "error", err)
			}
			return
		}
		peer, err := peerCredentials(fd)
		if err != nil {
			logger.Warn("peer credential lookup failed, closing connection", "error", err)
			_ = unix.Close(fd)
			continue
		}
		if err := s.poller.Add(fd, false); err != nil {
			_ = unix.Close(fd)
			continue
		}
		ep := transport.NewEndpoint(fd, s.limits)
		conn := s.newConnLocked(ep, peer)
		logger.Info("client connected", "conn_id", conn.ID, "pid", peer.PID, "uid", peer.UID, "gid", peer.GID)
		if s.onConnected != nil {
			s.onConnected(conn)
		}
	}
}

func peerCredentials(fd int) (PeerCredentials, error) {
	ucred, err := unix.GetsockoptUcred(fd, unix.SOL_SOCKET, unix.SO_PEERCRED)
	if err != nil {
		return PeerCredentials{}, err
	}
	return PeerCredentials{PID: int(ucred.Pid), UID: int(ucred.Uid), GID: int(ucred.Gid)}, nil
}

func (s *Server) processConn(fd int) {
	s.mu.Lock()
	conn, ok := s.conns[fd]
	s.mu.Unlock()
	if !ok {
		return
	}

	for {
		msg, err := conn.EP.Recv()
		if err != nil {
			if err == unix.EAGAIN {
				return
			}
			s.teardown(conn, err)
			return
		}
		if s.onMessage != nil {
			s.onMessage(conn, msg.Kind, msg.MethodOrSerial, msg.Body, msg.FDs)
		}
	}
}

func (s *Server) teardown(conn *Connection, err error) {
	s.mu.Lock()
	delete(s.conns, conn.EP.FD())
	s.mu.Unlock()

	_ = s.poller.Remove(conn.EP.FD())
	_ = conn.Close()

	if rierr.Is(err, rierr.ChannelDisconnected) {
		logger.Info("client disconnected", "conn_id", conn.ID, "correlation", conn.Correlation.String())
	} else {
		logger.Warn("connection closed on protocol error", "conn_id", conn.ID, "correlation", conn.Correlation.String(), "error", err)
	}
	if s.onDisconnected != nil {
		s.onDisconnected(conn)
	}
}

// messageFunc is set by SetMessageHandler; kept separate from the
// constructor so internal/ipc/rpc can wire its dispatcher after creating
// both sides without a dependency cycle.
type messageFunc func(conn *Connection, kind codec.Kind, methodOrSerial uint32, body []byte, fds []int)

// SetMessageHandler installs the callback invoked for every fully-assembled
// frame received on any connection, in per-connection FIFO arrival order.
func (s *Server) SetMessageHandler(fn messageFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onMessage = fn
}

// Send writes a frame to a specific connection in a single sendmsg call.
// The server side keeps no outbound queue and does not retry: when the
// socket's send buffer is full the frame is not sent and unix.EAGAIN is
// returned to the caller.
func (s *Server) Send(conn *Connection, msg codec.Message) error {
	return conn.EP.Send(msg)
}

// Close tears down every listener and connection.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ep := range s.listeners {
		_ = ep.Close()
	}
	for _, conn := range s.conns {
		_ = conn.Close()
	}
	s.listeners = make(map[int]*transport.Endpoint)
	s.conns = make(map[int]*Connection)
	return s.poller.Close()
}
