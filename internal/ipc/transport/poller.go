package transport

import (
	"golang.org/x/sys/unix"
)

// Poller wraps one epoll instance, shared by Channel.Wait and
// Server.Wait.
type Poller struct {
	epfd int
}

// NewPoller creates a fresh epoll instance.
func NewPoller() (*Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &Poller{epfd: epfd}, nil
}

// Add registers fd for readiness notification (read and, if forWrite, write).
func (p *Poller) Add(fd int, forWrite bool) error {
	events := uint32(unix.EPOLLIN)
	if forWrite {
		events |= unix.EPOLLOUT
	}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{Events: events, Fd: int32(fd)})
}

// Modify updates fd's registered event mask, e.g. to add EPOLLOUT once an
// outbound frame needs to be retried after EAGAIN.
func (p *Poller) Modify(fd int, forWrite bool) error {
	events := uint32(unix.EPOLLIN)
	if forWrite {
		events |= unix.EPOLLOUT
	}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{Events: events, Fd: int32(fd)})
}

// Remove deregisters fd, e.g. on disconnect.
func (p *Poller) Remove(fd int) error {
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// Wait blocks until at least one registered fd is ready or timeoutMs
// elapses (-1 for infinite), returning true iff any fd became ready.
func (p *Poller) Wait(timeoutMs int) (bool, error) {
	events := make([]unix.EpollEvent, 32)
	n, err := unix.EpollWait(p.epfd, events, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return false, nil
		}
		return false, err
	}
	return n > 0, nil
}

// Close releases the epoll fd.
func (p *Poller) Close() error {
	return unix.Close(p.epfd)
}
