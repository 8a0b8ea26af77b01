package async

import (
	"bytes"
	"fmt"
	"strings"
	"syscall"
	"time"

	"github.com/Trinoooo/quail_ev/consts"
	"github.com/Trinoooo/quail_ev/errs"
	"github.com/Trinoooo/quail_ev/logs"
	"github.com/luci/go-render/render"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var asyncLogger = logs.With(consts.ComponentAsync)

const readChunkSize = 4 * consts.KB

// Hooks is the capability set an adapter installs into a Context to
// satisfy its readiness requests. All six entry points are best-effort:
// they never fail and tolerate being called in any state.
type Hooks interface {
	AddRead()
	DelRead()
	AddWrite()
	DelWrite()
	ScheduleTimer(d time.Duration)
	Cleanup()
}

type ReplyCallback func(reply string, err error)

// Context is an asynchronous client connection. It never blocks on I/O:
// it asks the installed Hooks for readiness notification and does all
// socket work inside HandleRead/HandleWrite/HandleTimeout, which the
// adapter invokes from the event loop.
type Context struct {
	fd int
	// ev is the hook slot; non-nil means an adapter is attached. Only
	// the adapter's attach and cleanup paths mutate it.
	ev Hooks

	obuf    []byte
	ibuf    []byte
	pending []ReplyCallback

	onDisconnect func(err error)
	closed       bool
}

func Connect(host string, port int) (*Context, error) {
	fd, err := dial(host, port)
	if err != nil {
		return nil, err
	}
	return newContext(fd), nil
}

// NewFromFd wraps an existing connected descriptor. The descriptor must
// already be nonblocking; ownership transfers to the context.
func NewFromFd(fd int) *Context {
	return newContext(fd)
}

func newContext(fd int) *Context {
	return &Context{fd: fd}
}

func (c *Context) Fd() int {
	return c.fd
}

// Attached reports whether an adapter currently occupies the hook slot.
func (c *Context) Attached() bool {
	return c.ev != nil
}

// Hooks exposes the installed hook set, nil when detached.
func (c *Context) Hooks() Hooks {
	return c.ev
}

// AttachHooks installs h into the hook slot. Fails when the slot is
// already occupied; the caller must not double-attach.
func (c *Context) AttachHooks(h Hooks) error {
	if h == nil {
		return errs.NewInvalidParamErr()
	}
	if c.ev != nil {
		return errs.NewAlreadyAttachedErr()
	}
	c.ev = h
	return nil
}

// ClearHooks empties the hook slot. Called by the adapter's cleanup.
func (c *Context) ClearHooks() {
	c.ev = nil
}

// OnDisconnect registers fn to run once when the connection tears down.
// fn receives nil on an orderly Disconnect.
func (c *Context) OnDisconnect(fn func(err error)) {
	c.onDisconnect = fn
}

// Do queues a command and requests write readiness. cb fires with the
// matching reply line, or with an error if the connection dies first.
func (c *Context) Do(cmd string, cb ReplyCallback) error {
	if c.closed {
		return errs.NewConnClosedErr()
	}
	if c.ev == nil {
		return errs.NewNotAttachedErr()
	}
	if len(cmd) == 0 || strings.ContainsRune(cmd, '\n') {
		return errs.NewInvalidParamErr()
	}

	asyncLogger.Debug(fmt.Sprintf("queue cmd: %s", render.Render(cmd)))
	c.obuf = append(c.obuf, cmd...)
	c.obuf = append(c.obuf, '\n')
	c.pending = append(c.pending, cb)
	c.ev.AddWrite()
	return nil
}

// SetTimeout arms the adapter's timer; when it fires before the pending
// replies arrive, HandleTimeout fails them and tears the connection down.
func (c *Context) SetTimeout(d time.Duration) {
	if c.ev != nil {
		c.ev.ScheduleTimer(d)
	}
}

// HandleRead drains the socket and dispatches complete reply lines to
// pending callbacks in FIFO order.
func (c *Context) HandleRead() {
	if c.closed {
		return
	}

	buf := make([]byte, readChunkSize)
	for {
		n, err := syscall.Read(c.fd, buf)
		if n > 0 {
			c.ibuf = append(c.ibuf, buf[:n]...)
			continue
		}
		if err != nil {
			if errors.Is(err, syscall.EINTR) {
				continue
			}
			if errors.Is(err, syscall.EAGAIN) {
				break
			}
			c.dispatchReplies()
			c.teardown(errs.NewReadSocketErr().WithErr(err))
			return
		}
		// n == 0, peer closed
		c.dispatchReplies()
		c.teardown(errs.NewConnClosedErr())
		return
	}

	c.dispatchReplies()
}

func (c *Context) dispatchReplies() {
	for {
		idx := bytes.IndexByte(c.ibuf, '\n')
		if idx < 0 {
			return
		}
		line := string(c.ibuf[:idx])
		c.ibuf = c.ibuf[idx+1:]

		if len(c.pending) == 0 {
			asyncLogger.Warn("reply without pending command",
				zap.String(consts.LogFieldValue, line))
			continue
		}
		cb := c.pending[0]
		c.pending = c.pending[1:]
		asyncLogger.Debug(fmt.Sprintf("reply: %s", render.Render(line)))
		if cb != nil {
			cb(line, nil)
		}
	}
}

// HandleWrite flushes the out buffer. Once drained it swaps write
// readiness for read readiness to collect replies.
func (c *Context) HandleWrite() {
	if c.closed {
		return
	}

	for len(c.obuf) > 0 {
		n, err := syscall.Write(c.fd, c.obuf)
		if n > 0 {
			c.obuf = c.obuf[n:]
			continue
		}
		if err != nil {
			if errors.Is(err, syscall.EINTR) {
				continue
			}
			if errors.Is(err, syscall.EAGAIN) {
				return
			}
			c.teardown(errs.NewWriteSocketErr().WithErr(err))
			return
		}
	}

	if c.ev != nil {
		c.ev.DelWrite()
		c.ev.AddRead()
	}
}

// HandleTimeout fails every pending callback and tears the connection
// down.
func (c *Context) HandleTimeout() {
	if c.closed {
		return
	}
	c.teardown(errs.NewTimeoutErr())
}

// Disconnect tears the connection down in an orderly fashion. Pending
// callbacks fail with a closed-connection error.
func (c *Context) Disconnect() {
	c.teardown(nil)
}

func (c *Context) teardown(err error) {
	if c.closed {
		return
	}
	c.closed = true

	failErr := err
	if failErr == nil {
		failErr = errs.NewConnClosedErr()
	}
	pending := c.pending
	c.pending = nil
	for _, cb := range pending {
		if cb != nil {
			cb("", failErr)
		}
	}

	// the adapter's cleanup stops all watchers before the fd goes away
	if ev := c.ev; ev != nil {
		ev.Cleanup()
	}
	if e := syscall.Close(c.fd); e != nil {
		asyncLogger.Warn("close socket failed",
			zap.Int(consts.LogFieldFd, c.fd), zap.Error(e))
	}

	if c.onDisconnect != nil {
		c.onDisconnect(err)
	}
}
