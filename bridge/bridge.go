// Package bridge attaches an async.Context to a reactor.Loop: it
// translates the context's readiness requests into watcher registrations
// and relays fired events back into the context's handlers. It performs
// no I/O of its own.
package bridge

import (
	"time"

	"github.com/Trinoooo/quail_ev/async"
	"github.com/Trinoooo/quail_ev/consts"
	"github.com/Trinoooo/quail_ev/errs"
	"github.com/Trinoooo/quail_ev/logs"
	"github.com/Trinoooo/quail_ev/reactor"
	"go.uber.org/zap"
)

var bridgeLogger = logs.With(consts.ComponentBridge)

// Events is the watcher state for one attached context. It owns the three
// watchers and borrows the context and the loop; either side may go away
// first, so every operation tolerates nil back-references.
type Events struct {
	context *async.Context
	loop    *reactor.Loop

	rev   *reactor.IO
	wev   *reactor.IO
	timer *reactor.Timer

	reading, writing, timing bool
	priority                 int
}

// Attach wires ctx to loop: allocates the watcher state, installs it into
// the context's hook slot and initializes (without registering) the
// read/write watchers on the context's descriptor plus the timer watcher.
// Fails when the context already has an adapter attached.
func Attach(loop *reactor.Loop, ctx *async.Context) error {
	if loop == nil || ctx == nil {
		return errs.NewInvalidParamErr()
	}
	if ctx.Attached() {
		getMetricsHelper().AttachConflictCounter.Inc()
		return errs.NewAlreadyAttachedErr()
	}

	e := &Events{
		context: ctx,
		loop:    loop,
	}
	e.rev = &reactor.IO{
		Fd:       ctx.Fd(),
		Kind:     reactor.Read,
		Callback: readEvent,
		Data:     e,
	}
	e.wev = &reactor.IO{
		Fd:       ctx.Fd(),
		Kind:     reactor.Write,
		Callback: writeEvent,
		Data:     e,
	}
	e.timer = &reactor.Timer{
		Callback: timeoutEvent,
		Data:     e,
	}

	if err := ctx.AttachHooks(e); err != nil {
		return err
	}
	getMetricsHelper().AttachCounter.Inc()
	return nil
}

// readEvent relays read readiness into the context. The handler may
// trigger cleanup synchronously, so nothing touches e after the dispatch.
func readEvent(w *reactor.IO) {
	e, _ := w.Data.(*Events)
	if e == nil || e.context == nil {
		return
	}
	getMetricsHelper().FiredReadCounter.Inc()
	e.context.HandleRead()
}

func writeEvent(w *reactor.IO) {
	e, _ := w.Data.(*Events)
	if e == nil || e.context == nil {
		return
	}
	getMetricsHelper().FiredWriteCounter.Inc()
	e.context.HandleWrite()
}

func timeoutEvent(t *reactor.Timer) {
	e, _ := t.Data.(*Events)
	if e == nil || e.context == nil {
		return
	}
	getMetricsHelper().FiredTimeoutCounter.Inc()
	e.context.HandleTimeout()
}

// AddRead registers the read watcher. Idempotent; no-op after cleanup.
func (e *Events) AddRead() {
	if e == nil || e.loop == nil {
		return
	}
	if !e.reading {
		e.reading = true
		if err := e.loop.StartIO(e.rev); err != nil {
			bridgeLogger.Warn("start read watcher failed", zap.Error(err))
		}
	}
}

// DelRead unregisters the read watcher. The flag drops even when the
// loop is already gone, so state stays consistent through teardown.
func (e *Events) DelRead() {
	if e == nil {
		return
	}
	if e.reading {
		e.reading = false
		if e.loop != nil {
			e.loop.StopIO(e.rev)
		}
	}
}

// AddWrite registers the write watcher. Idempotent; no-op after cleanup.
func (e *Events) AddWrite() {
	if e == nil || e.loop == nil {
		return
	}
	if !e.writing {
		e.writing = true
		if err := e.loop.StartIO(e.wev); err != nil {
			bridgeLogger.Warn("start write watcher failed", zap.Error(err))
		}
	}
}

func (e *Events) DelWrite() {
	if e == nil {
		return
	}
	if e.writing {
		e.writing = false
		if e.loop != nil {
			e.loop.StopIO(e.wev)
		}
	}
}

// ScheduleTimer re-arms the timeout watcher to fire d from now,
// replacing any remaining time. d <= 0 fires as soon as possible.
// A request arriving after cleanup is dropped; that silent loss is
// deliberate, surfaced here as a warning and a counter.
func (e *Events) ScheduleTimer(d time.Duration) {
	if e == nil {
		return
	}
	if e.loop == nil {
		getMetricsHelper().TimerDroppedCounter.Inc()
		bridgeLogger.Warn("timer request after cleanup dropped",
			zap.Duration(consts.LogFieldValue, d))
		return
	}

	if !e.timing {
		e.timing = true
	}
	e.timer.Repeat = d
	e.loop.Again(e.timer)
}

// Cleanup detaches everything exactly once. Ordering matters: the
// back-references are nulled before any watcher is unregistered, so an
// in-flight firing observes nil and no-ops instead of touching state
// that is going away. Safe to call any number of times.
func (e *Events) Cleanup() {
	if e == nil {
		return
	}

	ctx := e.context
	loop := e.loop
	e.context = nil
	e.loop = nil

	if ctx != nil {
		ctx.ClearHooks()
	}

	e.rev.Data = nil
	e.wev.Data = nil
	e.timer.Data = nil

	if loop != nil {
		loop.StopIO(e.rev)
		loop.StopIO(e.wev)
		loop.StopTimer(e.timer)
	}

	e.reading = false
	e.writing = false
	e.timing = false
}

// SetPriority applies priority to all three watchers, re-registering the
// ones currently registered so their status survives the change.
func SetPriority(ctx *async.Context, priority int) {
	if ctx == nil {
		return
	}
	e, _ := ctx.Hooks().(*Events)
	if e == nil || e.loop == nil {
		return
	}
	e.priority = priority

	if e.reading {
		e.loop.StopIO(e.rev)
		e.rev.Priority = priority
		if err := e.loop.StartIO(e.rev); err != nil {
			bridgeLogger.Warn("restart read watcher failed", zap.Error(err))
		}
	} else {
		e.rev.Priority = priority
	}

	if e.writing {
		e.loop.StopIO(e.wev)
		e.wev.Priority = priority
		if err := e.loop.StartIO(e.wev); err != nil {
			bridgeLogger.Warn("restart write watcher failed", zap.Error(err))
		}
	} else {
		e.wev.Priority = priority
	}

	if e.timing {
		e.loop.StopTimer(e.timer)
		e.timer.Priority = priority
		e.loop.Again(e.timer)
	} else {
		e.timer.Priority = priority
	}
}
