package poller

import (
	"syscall"
	"time"

	"github.com/Trinoooo/quail_ev/errs"
)

type EpollPoller struct {
	epfd int
	// epoll holds one interest mask per fd, while callers add and remove
	// read/write interest independently. Track the mask here to pick
	// between CTL_ADD, CTL_MOD and CTL_DEL.
	interest map[int]uint32
}

func New() (Poller, error) {
	return NewEpollPoller()
}

func NewEpollPoller() (*EpollPoller, error) {
	epfd, err := syscall.EpollCreate1(syscall.EPOLL_CLOEXEC)
	if err != nil {
		return nil, errs.NewPollerErr().WithErr(err)
	}

	return &EpollPoller{
		epfd:     epfd,
		interest: make(map[int]uint32),
	}, nil
}

func (ep *EpollPoller) Register(changes []Pevent) error {
	for _, change := range changes {
		if err := ep.register(change); err != nil {
			return err
		}
	}
	return nil
}

func (ep *EpollPoller) register(change Pevent) error {
	var bit uint32
	switch change.Operation {
	case OpRead:
		bit = syscall.EPOLLIN
	case OpWrite:
		bit = syscall.EPOLLOUT
	default:
		return errs.NewInvalidParamErr()
	}

	old := ep.interest[change.Fd]
	var next uint32
	switch {
	case change.Flag&FlagAdd != 0:
		next = old | bit
	case change.Flag&FlagDel != 0:
		next = old &^ bit
	default:
		return errs.NewInvalidParamErr()
	}

	if next == old {
		return nil
	}

	var op int
	switch {
	case old == 0:
		op = syscall.EPOLL_CTL_ADD
	case next == 0:
		op = syscall.EPOLL_CTL_DEL
	default:
		op = syscall.EPOLL_CTL_MOD
	}

	evt := &syscall.EpollEvent{
		Events: next,
		Fd:     int32(change.Fd),
	}
	if err := syscall.EpollCtl(ep.epfd, op, change.Fd, evt); err != nil {
		// 容忍对已失效fd的摘除操作，语义上等价于已经注销
		if change.Flag&FlagDel != 0 && (err == syscall.ENOENT || err == syscall.EBADF) {
			delete(ep.interest, change.Fd)
			return nil
		}
		return errs.NewPollerErr().WithErr(err)
	}

	if next == 0 {
		delete(ep.interest, change.Fd)
	} else {
		ep.interest[change.Fd] = next
	}
	return nil
}

func (ep *EpollPoller) Wait(events []Pevent, timeout time.Duration) (int, error) {
	msec := -1
	if timeout >= 0 {
		msec = int(timeout / time.Millisecond)
		if msec == 0 && timeout > 0 {
			msec = 1
		}
	}

	eevents := make([]syscall.EpollEvent, len(events))
	n, err := syscall.EpollWait(ep.epfd, eevents, msec)
	if err != nil {
		return 0, err
	}

	// 单个epoll事件可能同时可读可写，展开成两个Pevent
	count := 0
	for i := 0; i < n && count < len(events); i++ {
		eevt := eevents[i]
		var flag int64
		if eevt.Events&(syscall.EPOLLHUP|syscall.EPOLLRDHUP) != 0 {
			flag |= FlagEOF
		}
		if eevt.Events&syscall.EPOLLERR != 0 {
			flag |= FlagErr
		}

		readable := eevt.Events&(syscall.EPOLLIN|syscall.EPOLLHUP|syscall.EPOLLRDHUP|syscall.EPOLLERR) != 0
		writable := eevt.Events&(syscall.EPOLLOUT|syscall.EPOLLERR) != 0
		if readable {
			events[count] = Pevent{Fd: int(eevt.Fd), Operation: OpRead, Flag: flag}
			count++
		}
		if writable && count < len(events) {
			events[count] = Pevent{Fd: int(eevt.Fd), Operation: OpWrite, Flag: flag}
			count++
		}
	}
	return count, nil
}

func (ep *EpollPoller) Close() error {
	return syscall.Close(ep.epfd)
}
