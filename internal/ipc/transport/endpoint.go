// Package transport provides the raw SOCK_SEQPACKET socket endpoint shared
// by internal/ipc/channel (client side) and internal/ipc/server (server
// side): one send/recv pair per frame, with SCM_RIGHTS carrying file
// descriptors in the same sendmsg/recvmsg call as the frame bytes. Because
// SOCK_SEQPACKET preserves message boundaries, exactly one recvmsg yields
// exactly one frame — no manual reassembly across datagrams is needed.
package transport

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/rdkcentral/rialto-sub011/internal/ipc/codec"
	"github.com/rdkcentral/rialto-sub011/internal/rierr"
)

// Endpoint owns one connected SOCK_SEQPACKET file descriptor.
type Endpoint struct {
	fd     int
	limits codec.Limits
}

// NewEndpoint wraps an already-connected or already-accepted socket fd.
// Ownership of fd transfers to the Endpoint; Close closes it.
func NewEndpoint(fd int, limits codec.Limits) *Endpoint {
	return &Endpoint{fd: fd, limits: limits}
}

// FD returns the underlying file descriptor, e.g. to register with epoll.
func (e *Endpoint) FD() int { return e.fd }

// Close closes the underlying socket. Safe to call once.
func (e *Endpoint) Close() error {
	if e.fd < 0 {
		return nil
	}
	err := unix.Close(e.fd)
	e.fd = -1
	return err
}

// Connect creates a SOCK_SEQPACKET socket and connects it to path.
func Connect(path string, limits codec.Limits) (*Endpoint, error) {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_SEQPACKET|unix.SOCK_CLOEXEC|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}
	sa := &unix.SockaddrUnix{Name: path}
	if err := unix.Connect(fd, sa); err != nil && err != unix.EINPROGRESS {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("connect %s: %w", path, err)
	}
	return NewEndpoint(fd, limits), nil
}

// Send encodes msg and sends it in one sendmsg call, passing msg.FDs via
// SCM_RIGHTS. Returns unix.EAGAIN unmodified when the socket's send buffer
// is full so callers can move the frame to an outbound queue.
func (e *Endpoint) Send(msg codec.Message) error {
	buf, err := codec.Encode(msg, e.limits)
	if err != nil {
		return err
	}
	var oob []byte
	if len(msg.FDs) > 0 {
		oob = unix.UnixRights(msg.FDs...)
	}
	_, err = unix.SendmsgN(e.fd, buf, oob, nil, 0)
	return err
}

// recvBufSize bounds the per-recvmsg read buffer; a single frame can be at
// most codec.HeaderLen + limits.MaxFrameBytes.
func (e *Endpoint) recvBufSize() int {
	return codec.HeaderLen + int(e.limits.MaxFrameBytes)
}

// Recv blocks (the fd is non-blocking, so this returns unix.EAGAIN when no
// frame is ready — callers drive Recv from an epoll-readiness loop) and
// returns the next complete frame plus any fds received with it. When the
// frame fails to decode, Recv closes every fd received with it before
// returning the error, and the returned Message is empty.
func (e *Endpoint) Recv() (codec.Message, error) {
	buf := make([]byte, e.recvBufSize())
	oob := make([]byte, unix.CmsgSpace(int(e.limits.MaxFDsPerFrame)*4))

	n, oobn, _, _, err := unix.Recvmsg(e.fd, buf, oob, 0)
	if err != nil {
		return codec.Message{}, err
	}
	if n == 0 {
		return codec.Message{}, rierr.Wrap(rierr.ChannelDisconnected, "peer closed connection")
	}

	fds, ferr := parseRights(oob[:oobn])
	if ferr != nil {
		return codec.Message{}, rierr.Wrap(rierr.ChannelProtocolError, "malformed ancillary data: "+ferr.Error())
	}

	msg, derr := codec.Decode(buf[:n], fds, e.limits)
	if derr != nil {
		for _, fd := range fds {
			_ = unix.Close(fd)
		}
		return codec.Message{}, derr
	}
	return msg, nil
}

func parseRights(oob []byte) ([]int, error) {
	if len(oob) == 0 {
		return nil, nil
	}
	cmsgs, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return nil, err
	}
	var fds []int
	for _, c := range cmsgs {
		rights, err := unix.ParseUnixRights(&c)
		if err != nil {
			continue
		}
		fds = append(fds, rights...)
	}
	return fds, nil
}

// PeerCredentials returns the connected peer's (pid, uid, gid), the
// SO_PEERCRED equivalent used by internal/ipc/server on accept.
func (e *Endpoint) PeerCredentials() (pid int, uid int, gid int, err error) {
	ucred, err := unix.GetsockoptUcred(e.fd, unix.SOL_SOCKET, unix.SO_PEERCRED)
	if err != nil {
		return 0, 0, 0, err
	}
	return int(ucred.Pid), int(ucred.Uid), int(ucred.Gid), nil
}
