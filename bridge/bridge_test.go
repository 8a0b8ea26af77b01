package bridge

import (
	"bufio"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/Trinoooo/quail_ev/async"
	"github.com/Trinoooo/quail_ev/errs"
	"github.com/Trinoooo/quail_ev/reactor"
	"github.com/stretchr/testify/assert"
)

// socketPair returns a connected nonblocking pair; the first fd belongs
// to the context under test, the second acts as the peer.
func socketPair(t *testing.T) (int, int) {
	t.Helper()
	fds, err := syscall.Socketpair(syscall.AF_UNIX, syscall.SOCK_STREAM, 0)
	assert.Nil(t, err)
	assert.Nil(t, syscall.SetNonblock(fds[0], true))
	return fds[0], fds[1]
}

func newAttached(t *testing.T) (*reactor.Loop, *async.Context, *Events, int) {
	t.Helper()
	lp, err := reactor.New()
	assert.Nil(t, err)

	local, peer := socketPair(t)
	ctx := async.NewFromFd(local)
	assert.Nil(t, Attach(lp, ctx))

	e, ok := ctx.Hooks().(*Events)
	assert.True(t, ok)
	return lp, ctx, e, peer
}

func TestAttachTwice(t *testing.T) {
	lp, ctx, e, peer := newAttached(t)
	defer syscall.Close(peer)
	defer lp.Close()

	err := Attach(lp, ctx)
	assert.Equal(t, int64(errs.AlreadyAttachedErrCode), errs.GetCode(err))
	// first adapter untouched
	assert.Same(t, e, ctx.Hooks().(*Events))
}

func TestAttachNilParams(t *testing.T) {
	assert.Equal(t, int64(errs.InvalidParamErrCode), errs.GetCode(Attach(nil, nil)))
}

func TestAddDelIdempotent(t *testing.T) {
	lp, _, e, peer := newAttached(t)
	defer syscall.Close(peer)
	defer lp.Close()

	// del before any add is a no-op
	e.DelRead()
	assert.False(t, e.reading)

	e.AddRead()
	e.AddRead()
	assert.True(t, e.reading)
	assert.True(t, e.rev.Active())

	e.DelRead()
	e.DelRead()
	assert.False(t, e.reading)
	assert.False(t, e.rev.Active())

	// state always matches the most recent add/del
	e.AddWrite()
	e.DelWrite()
	e.AddWrite()
	assert.True(t, e.writing)
	assert.True(t, e.wev.Active())
}

func TestCleanupIdempotent(t *testing.T) {
	lp, ctx, e, peer := newAttached(t)
	defer syscall.Close(peer)
	defer lp.Close()

	e.AddRead()
	e.AddWrite()
	e.ScheduleTimer(time.Minute)

	for i := 0; i < 3; i++ {
		e.Cleanup()
		assert.False(t, e.reading)
		assert.False(t, e.writing)
		assert.False(t, e.timing)
		assert.False(t, ctx.Attached())
		assert.Nil(t, e.rev.Data)
		assert.Nil(t, e.wev.Data)
		assert.Nil(t, e.timer.Data)
		assert.False(t, e.rev.Active())
		assert.False(t, e.wev.Active())
		assert.False(t, e.timer.Active())
	}
}

func TestReentrantCleanup(t *testing.T) {
	lp, ctx, e, peer := newAttached(t)
	defer lp.Close()

	e.AddRead()
	// peer goes away; the next read sees EOF, tears the context down and
	// runs Cleanup inside the fired handler
	assert.Nil(t, syscall.Close(peer))
	readEvent(e.rev)

	assert.False(t, ctx.Attached())
	assert.Nil(t, e.rev.Data)

	// a stale firing after cleanup must no-op instead of faulting
	readEvent(e.rev)
	writeEvent(e.wev)
	timeoutEvent(e.timer)
}

func TestSetPriorityPreservesRegistration(t *testing.T) {
	lp, ctx, e, peer := newAttached(t)
	defer syscall.Close(peer)
	defer lp.Close()

	e.AddRead()
	SetPriority(ctx, 5)

	assert.True(t, e.reading)
	assert.False(t, e.writing)
	assert.True(t, e.rev.Active())
	assert.False(t, e.wev.Active())
	assert.Equal(t, 5, e.rev.Priority)
	assert.Equal(t, 5, e.wev.Priority)
	assert.Equal(t, 5, e.timer.Priority)
	assert.Equal(t, 5, e.priority)
}

func TestSetPriorityAfterCleanup(t *testing.T) {
	lp, ctx, e, peer := newAttached(t)
	defer syscall.Close(peer)
	defer lp.Close()

	e.Cleanup()
	SetPriority(ctx, 3)
	assert.Equal(t, 0, e.priority)
}

func TestScheduleTimerAfterCleanupDropped(t *testing.T) {
	lp, _, e, peer := newAttached(t)
	defer syscall.Close(peer)
	defer lp.Close()

	e.Cleanup()
	e.ScheduleTimer(time.Second)
	assert.False(t, e.timing)
	assert.False(t, e.timer.Active())
}

func TestScheduleTimerRearm(t *testing.T) {
	lp, ctx, _, peer := newAttached(t)
	defer syscall.Close(peer)

	fired := make(chan time.Duration, 1)
	start := time.Now()
	ctx.OnDisconnect(func(err error) {
		fired <- time.Since(start)
		_ = lp.Close()
	})

	// arm at D1, immediately replace with the longer D2; the timeout
	// must land at D2 from the re-arm, not at D1
	assert.Nil(t, lp.Submit(func() {
		ctx.SetTimeout(40 * time.Millisecond)
		ctx.SetTimeout(150 * time.Millisecond)
	}))

	done := make(chan error, 1)
	go func() { done <- lp.Run() }()

	select {
	case elapsed := <-fired:
		assert.GreaterOrEqual(t, elapsed, 120*time.Millisecond)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout never fired")
	}
	assert.Nil(t, <-done)
}

func TestEndToEnd(t *testing.T) {
	// line echo peer
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	assert.Nil(t, err)
	defer ln.Close()
	go func() {
		conn, e := ln.Accept()
		if e != nil {
			return
		}
		defer conn.Close()
		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			_, _ = conn.Write(append(scanner.Bytes(), '\n'))
		}
	}()

	lp, err := reactor.New()
	assert.Nil(t, err)

	addr := ln.Addr().(*net.TCPAddr)
	ctx, err := async.Connect("127.0.0.1", addr.Port)
	assert.Nil(t, err)

	detached := make(chan struct{})
	replies := make(chan string, 1)

	assert.Nil(t, lp.Submit(func() {
		if e := Attach(lp, ctx); e != nil {
			t.Error(e)
			return
		}
		_ = ctx.Do("PING", func(reply string, err error) {
			if err != nil {
				t.Error(err)
				return
			}
			replies <- reply
		})
	}))

	done := make(chan error, 1)
	go func() { done <- lp.Run() }()

	select {
	case reply := <-replies:
		assert.Equal(t, "PING", reply)
	case <-time.After(2 * time.Second):
		t.Fatal("no reply")
	}

	assert.Nil(t, lp.Submit(func() {
		ctx.Disconnect()
		if !ctx.Attached() {
			close(detached)
		}
		_ = lp.Close()
	}))

	select {
	case <-detached:
	case <-time.After(2 * time.Second):
		t.Fatal("context still attached after disconnect")
	}
	assert.Nil(t, <-done)
}
