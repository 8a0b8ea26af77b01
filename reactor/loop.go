package reactor

import (
	"sort"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/Trinoooo/quail_ev/consts"
	"github.com/Trinoooo/quail_ev/errs"
	"github.com/Trinoooo/quail_ev/logs"
	"github.com/Trinoooo/quail_ev/reactor/poller"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var loopLogger = logs.With(consts.ComponentLoop)

const (
	eventBufferSize = 100
	// wake watcher outranks every user watcher so submitted funcs run
	// before user callbacks in the same iteration
	wakeWatcherPriority = 1 << 16
)

type ioSlot struct {
	read, write *IO
}

// Loop is a single-goroutine reactor: one goroutine calls Run and every
// watcher callback executes on it. Watcher registration must happen on
// that goroutine (or before Run); use Submit to enter it from outside.
type Loop struct {
	p      poller.Poller
	ios    map[int]*ioSlot
	timers timerHeap
	evbuf  []poller.Pevent

	mutex   sync.Mutex
	submits []func()
	wakeR   int
	wakeW   int
	wakeIO  *IO

	closed int32
}

func New() (*Loop, error) {
	p, err := poller.New()
	if err != nil {
		return nil, err
	}

	var pipeFds [2]int
	if err = syscall.Pipe(pipeFds[:]); err != nil {
		_ = p.Close()
		return nil, errs.NewSocketErr().WithErr(err)
	}
	for _, fd := range pipeFds {
		if err = syscall.SetNonblock(fd, true); err != nil {
			_ = p.Close()
			_ = syscall.Close(pipeFds[0])
			_ = syscall.Close(pipeFds[1])
			return nil, errs.NewSocketErr().WithErr(err)
		}
	}

	lp := &Loop{
		p:     p,
		ios:   make(map[int]*ioSlot),
		evbuf: make([]poller.Pevent, eventBufferSize),
		wakeR: pipeFds[0],
		wakeW: pipeFds[1],
	}
	lp.wakeIO = &IO{
		Fd:       lp.wakeR,
		Kind:     Read,
		Priority: wakeWatcherPriority,
		Callback: lp.onWake,
	}
	if err = lp.StartIO(lp.wakeIO); err != nil {
		_ = p.Close()
		_ = syscall.Close(pipeFds[0])
		_ = syscall.Close(pipeFds[1])
		return nil, err
	}
	return lp, nil
}

// StartIO registers w with the poller. Starting an already-active watcher
// is a caller error; callers that can't rule it out must track activity
// themselves.
func (lp *Loop) StartIO(w *IO) error {
	if w == nil || w.Callback == nil || w.Fd < 0 {
		return errs.NewInvalidParamErr()
	}
	if w.Kind != Read && w.Kind != Write {
		return errs.NewInvalidParamErr()
	}
	if w.active {
		return errs.NewWatcherActiveErr()
	}

	change := poller.Pevent{Fd: w.Fd, Operation: int64(w.Kind), Flag: poller.FlagAdd}
	if err := lp.p.Register([]poller.Pevent{change}); err != nil {
		return err
	}

	slot := lp.ios[w.Fd]
	if slot == nil {
		slot = &ioSlot{}
		lp.ios[w.Fd] = slot
	}
	if w.Kind == Read {
		slot.read = w
	} else {
		slot.write = w
	}
	w.active = true
	return nil
}

// StopIO unregisters w. Stopping an inactive watcher is a no-op.
func (lp *Loop) StopIO(w *IO) {
	if w == nil || !w.active {
		return
	}

	change := poller.Pevent{Fd: w.Fd, Operation: int64(w.Kind), Flag: poller.FlagDel}
	if err := lp.p.Register([]poller.Pevent{change}); err != nil {
		loopLogger.Warn("unregister watcher failed",
			zap.Int(consts.LogFieldFd, w.Fd), zap.Error(err))
	}

	if slot := lp.ios[w.Fd]; slot != nil {
		if slot.read == w {
			slot.read = nil
		}
		if slot.write == w {
			slot.write = nil
		}
		if slot.read == nil && slot.write == nil {
			delete(lp.ios, w.Fd)
		}
	}
	w.active = false
}

func (lp *Loop) StartTimer(t *Timer) {
	if t == nil || t.Callback == nil {
		return
	}
	lp.Again(t)
}

// Again re-arms t to fire Repeat from now, replacing any remaining time.
// Repeat <= 0 fires on the next loop iteration.
func (lp *Loop) Again(t *Timer) {
	if t == nil || t.Callback == nil {
		return
	}

	now := time.Now()
	if t.Repeat > 0 {
		t.deadline = now.Add(t.Repeat)
	} else {
		t.deadline = now
	}

	if t.active {
		lp.timers.fix(t)
		return
	}
	t.active = true
	lp.timers.push(t)
}

// StopTimer disarms t. Stopping an inactive timer is a no-op.
func (lp *Loop) StopTimer(t *Timer) {
	if t == nil || !t.active {
		return
	}
	lp.timers.remove(t)
	t.active = false
}

// Submit queues fn to run on the loop goroutine.
func (lp *Loop) Submit(fn func()) error {
	if fn == nil {
		return errs.NewInvalidParamErr()
	}
	if atomic.LoadInt32(&lp.closed) == 1 {
		return errs.NewLoopClosedErr()
	}

	lp.mutex.Lock()
	lp.submits = append(lp.submits, fn)
	lp.mutex.Unlock()
	lp.wake()
	return nil
}

func (lp *Loop) wake() {
	_, err := syscall.Write(lp.wakeW, []byte{0})
	if err != nil && !errors.Is(err, syscall.EAGAIN) {
		loopLogger.Warn("wake loop failed", zap.Error(err))
	}
}

func (lp *Loop) onWake(w *IO) {
	buf := make([]byte, 64)
	for {
		if _, err := syscall.Read(w.Fd, buf); err != nil {
			break
		}
	}

	lp.mutex.Lock()
	fns := lp.submits
	lp.submits = nil
	lp.mutex.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// Run drives the loop until Close. It owns the calling goroutine.
func (lp *Loop) Run() error {
	for atomic.LoadInt32(&lp.closed) == 0 {
		n, err := lp.p.Wait(lp.evbuf, lp.nextTimeout())
		if err != nil {
			if errors.Is(err, syscall.EINTR) { // bugfix: ignore EINTR
				continue
			}
			loopLogger.Error("poller wait failed", zap.Error(err))
			lp.teardown()
			return errs.NewPollerErr().WithErr(err)
		}
		lp.dispatch(lp.evbuf[:n], time.Now())
	}

	lp.teardown()
	return nil
}

// Close stops Run. Safe to call from any goroutine, more than once.
func (lp *Loop) Close() error {
	if !atomic.CompareAndSwapInt32(&lp.closed, 0, 1) {
		return nil
	}
	lp.wake()
	return nil
}

func (lp *Loop) teardown() {
	if err := lp.p.Close(); err != nil {
		loopLogger.Warn("close poller failed", zap.Error(err))
	}
	_ = syscall.Close(lp.wakeR)
	_ = syscall.Close(lp.wakeW)
}

func (lp *Loop) nextTimeout() time.Duration {
	t := lp.timers.peek()
	if t == nil {
		return -1
	}
	d := time.Until(t.deadline)
	if d < 0 {
		return 0
	}
	return d
}

type firing struct {
	priority int
	fn       func()
}

func (lp *Loop) dispatch(events []poller.Pevent, now time.Time) {
	pending := make([]firing, 0, len(events))

	for _, evt := range events {
		slot := lp.ios[evt.Fd]
		if slot == nil {
			continue
		}
		var w *IO
		switch evt.Operation {
		case poller.OpRead:
			w = slot.read
		case poller.OpWrite:
			w = slot.write
		}
		if w == nil {
			continue
		}
		pending = append(pending, firing{w.Priority, func() {
			// stopped by an earlier callback in this same batch
			if !w.active {
				return
			}
			w.Callback(w)
		}})
	}

	for {
		t := lp.timers.peek()
		if t == nil || t.deadline.After(now) {
			break
		}
		// re-arm repeating timers before the callback runs, so a callback
		// calling Again or StopTimer sees consistent heap state
		repeating := t.Repeat > 0
		if repeating {
			t.deadline = now.Add(t.Repeat)
			lp.timers.fix(t)
		} else {
			lp.timers.remove(t)
			t.active = false
		}
		pending = append(pending, firing{t.Priority, func() {
			// a repeating timer stopped by an earlier callback this batch
			// must not fire; a one-shot already fired out of the heap
			if repeating && !t.active {
				return
			}
			t.Callback(t)
		}})
	}

	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].priority > pending[j].priority
	})
	for _, p := range pending {
		p.fn()
	}
}
