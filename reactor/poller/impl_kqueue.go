//go:build darwin || freebsd || netbsd || openbsd

package poller

import (
	"syscall"
	"time"

	"github.com/Trinoooo/quail_ev/errs"
)

type KqueuePoller struct {
	kq int
}

func New() (Poller, error) {
	return NewKqueuePoller()
}

func NewKqueuePoller() (*KqueuePoller, error) {
	kqFd, err := syscall.Kqueue()
	if err != nil {
		return nil, errs.NewPollerErr().WithErr(err)
	}

	return &KqueuePoller{
		kq: kqFd,
	}, nil
}

func (kp *KqueuePoller) Register(changes []Pevent) error {
	for _, change := range changes {
		kchange, err := fromPevent(change)
		if err != nil {
			return err
		}
		if _, err = syscall.Kevent(kp.kq, []syscall.Kevent_t{kchange}, nil, nil); err != nil {
			// 容忍对未注册watcher的摘除操作
			if change.Flag&FlagDel != 0 && (err == syscall.ENOENT || err == syscall.EBADF) {
				continue
			}
			return errs.NewPollerErr().WithErr(err)
		}
	}
	return nil
}

func (kp *KqueuePoller) Wait(events []Pevent, timeout time.Duration) (int, error) {
	var ts *syscall.Timespec
	if timeout >= 0 {
		t := syscall.NsecToTimespec(timeout.Nanoseconds())
		ts = &t
	}

	kevents := make([]syscall.Kevent_t, len(events))
	n, err := syscall.Kevent(kp.kq, nil, kevents, ts)
	if err != nil {
		return 0, err
	}

	for i := 0; i < n; i++ {
		kevt := kevents[i]
		var op int64
		switch kevt.Filter {
		case syscall.EVFILT_READ:
			op = OpRead
		case syscall.EVFILT_WRITE:
			op = OpWrite
		}
		var flag int64
		if kevt.Flags&syscall.EV_EOF != 0 {
			flag |= FlagEOF
		}
		if kevt.Flags&syscall.EV_ERROR != 0 {
			flag |= FlagErr
		}
		events[i] = Pevent{Fd: int(kevt.Ident), Operation: op, Flag: flag}
	}
	return n, nil
}

func fromPevent(change Pevent) (syscall.Kevent_t, error) {
	var filter int16
	switch change.Operation {
	case OpRead:
		filter = syscall.EVFILT_READ
	case OpWrite:
		filter = syscall.EVFILT_WRITE
	default:
		return syscall.Kevent_t{}, errs.NewInvalidParamErr()
	}

	var flags uint16
	switch {
	case change.Flag&FlagAdd != 0:
		flags = syscall.EV_ADD | syscall.EV_ENABLE
	case change.Flag&FlagDel != 0:
		flags = syscall.EV_DELETE
	default:
		return syscall.Kevent_t{}, errs.NewInvalidParamErr()
	}

	return syscall.Kevent_t{
		Ident:  uint64(change.Fd),
		Filter: filter,
		Flags:  flags,
	}, nil
}

func (kp *KqueuePoller) Close() error {
	return syscall.Close(kp.kq)
}
