package async

import (
	"syscall"
	"testing"
	"time"

	"github.com/Trinoooo/quail_ev/errs"
	"github.com/stretchr/testify/assert"
)

// fakeHooks records hook invocations so tests can observe what the
// context asks of its adapter.
type fakeHooks struct {
	addRead, delRead   int
	addWrite, delWrite int
	cleanup            int
	scheduled          []time.Duration
	owner              *Context
}

func (fh *fakeHooks) AddRead()  { fh.addRead++ }
func (fh *fakeHooks) DelRead()  { fh.delRead++ }
func (fh *fakeHooks) AddWrite() { fh.addWrite++ }
func (fh *fakeHooks) DelWrite() { fh.delWrite++ }

func (fh *fakeHooks) ScheduleTimer(d time.Duration) {
	fh.scheduled = append(fh.scheduled, d)
}

func (fh *fakeHooks) Cleanup() {
	fh.cleanup++
	if fh.owner != nil {
		fh.owner.ClearHooks()
	}
}

func newTestContext(t *testing.T) (*Context, *fakeHooks, int) {
	t.Helper()
	fds, err := syscall.Socketpair(syscall.AF_UNIX, syscall.SOCK_STREAM, 0)
	assert.Nil(t, err)
	assert.Nil(t, syscall.SetNonblock(fds[0], true))

	c := newContext(fds[0])
	fh := &fakeHooks{owner: c}
	assert.Nil(t, c.AttachHooks(fh))
	return c, fh, fds[1]
}

func TestAttachHooksTwice(t *testing.T) {
	c, _, peer := newTestContext(t)
	defer syscall.Close(peer)
	defer c.Disconnect()

	err := c.AttachHooks(&fakeHooks{})
	assert.Equal(t, int64(errs.AlreadyAttachedErrCode), errs.GetCode(err))
}

func TestDoRequestsWrite(t *testing.T) {
	c, fh, peer := newTestContext(t)
	defer syscall.Close(peer)
	defer c.Disconnect()

	assert.Nil(t, c.Do("PING", nil))
	assert.Equal(t, 1, fh.addWrite)
	assert.Nil(t, c.Do("PING", nil))
	assert.Equal(t, 2, fh.addWrite)
}

func TestDoRejectsEmbeddedNewline(t *testing.T) {
	c, _, peer := newTestContext(t)
	defer syscall.Close(peer)
	defer c.Disconnect()

	err := c.Do("PI\nNG", nil)
	assert.Equal(t, int64(errs.InvalidParamErrCode), errs.GetCode(err))
}

func TestDoWithoutHooks(t *testing.T) {
	fds, err := syscall.Socketpair(syscall.AF_UNIX, syscall.SOCK_STREAM, 0)
	assert.Nil(t, err)
	defer syscall.Close(fds[1])

	c := newContext(fds[0])
	defer c.Disconnect()
	assert.Equal(t, int64(errs.NotAttachedErrCode), errs.GetCode(c.Do("PING", nil)))
}

func TestHandleWriteDrainsAndSwapsInterest(t *testing.T) {
	c, fh, peer := newTestContext(t)
	defer syscall.Close(peer)
	defer c.Disconnect()

	assert.Nil(t, c.Do("PING", nil))
	c.HandleWrite()

	buf := make([]byte, 64)
	n, err := syscall.Read(peer, buf)
	assert.Nil(t, err)
	assert.Equal(t, "PING\n", string(buf[:n]))
	assert.Equal(t, 1, fh.delWrite)
	assert.Equal(t, 1, fh.addRead)
}

func TestHandleReadDispatchesFIFO(t *testing.T) {
	c, _, peer := newTestContext(t)
	defer syscall.Close(peer)
	defer c.Disconnect()

	var got []string
	cb := func(tag string) ReplyCallback {
		return func(reply string, err error) {
			assert.Nil(t, err)
			got = append(got, tag+":"+reply)
		}
	}
	assert.Nil(t, c.Do("A", cb("first")))
	assert.Nil(t, c.Do("B", cb("second")))

	_, err := syscall.Write(peer, []byte("a\nb\n"))
	assert.Nil(t, err)
	c.HandleRead()

	assert.Equal(t, []string{"first:a", "second:b"}, got)
}

func TestHandleReadPartialLine(t *testing.T) {
	c, _, peer := newTestContext(t)
	defer syscall.Close(peer)
	defer c.Disconnect()

	var got []string
	assert.Nil(t, c.Do("A", func(reply string, err error) {
		assert.Nil(t, err)
		got = append(got, reply)
	}))

	_, err := syscall.Write(peer, []byte("par"))
	assert.Nil(t, err)
	c.HandleRead()
	assert.Empty(t, got)

	_, err = syscall.Write(peer, []byte("tial\n"))
	assert.Nil(t, err)
	c.HandleRead()
	assert.Equal(t, []string{"partial"}, got)
}

func TestHandleReadEOFTearsDown(t *testing.T) {
	c, fh, peer := newTestContext(t)

	var cbErr error
	assert.Nil(t, c.Do("A", func(reply string, err error) {
		cbErr = err
	}))

	var disconnectErr error
	disconnected := 0
	c.OnDisconnect(func(err error) {
		disconnected++
		disconnectErr = err
	})

	assert.Nil(t, syscall.Close(peer))
	c.HandleRead()

	assert.Equal(t, 1, fh.cleanup)
	assert.Equal(t, 1, disconnected)
	assert.Equal(t, int64(errs.ConnClosedErrCode), errs.GetCode(cbErr))
	assert.Equal(t, int64(errs.ConnClosedErrCode), errs.GetCode(disconnectErr))
	assert.False(t, c.Attached())
}

func TestHandleTimeoutFailsPending(t *testing.T) {
	c, fh, peer := newTestContext(t)
	defer syscall.Close(peer)

	var errsSeen []error
	for i := 0; i < 2; i++ {
		assert.Nil(t, c.Do("A", func(reply string, err error) {
			errsSeen = append(errsSeen, err)
		}))
	}

	c.HandleTimeout()

	assert.Len(t, errsSeen, 2)
	for _, err := range errsSeen {
		assert.Equal(t, int64(errs.TimeoutErrCode), errs.GetCode(err))
	}
	assert.Equal(t, 1, fh.cleanup)
	assert.Equal(t, int64(errs.ConnClosedErrCode), errs.GetCode(c.Do("B", nil)))
}

func TestSetTimeoutRelaysToHooks(t *testing.T) {
	c, fh, peer := newTestContext(t)
	defer syscall.Close(peer)
	defer c.Disconnect()

	c.SetTimeout(time.Second)
	c.SetTimeout(2 * time.Second)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, fh.scheduled)
}

func TestTeardownOnce(t *testing.T) {
	c, fh, peer := newTestContext(t)
	defer syscall.Close(peer)

	disconnected := 0
	c.OnDisconnect(func(err error) {
		assert.Nil(t, err)
		disconnected++
	})

	c.Disconnect()
	c.Disconnect()
	c.HandleRead()
	c.HandleWrite()
	c.HandleTimeout()

	assert.Equal(t, 1, fh.cleanup)
	assert.Equal(t, 1, disconnected)
}
