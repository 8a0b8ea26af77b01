package reactor

import "time"

type EventKind int64

const (
	Read EventKind = iota + 1
	Write
)

// IO watches one readiness condition on one descriptor. A watcher holds a
// single interest kind; watch read and write with two watchers.
type IO struct {
	Fd       int
	Kind     EventKind
	Priority int
	Callback func(*IO)
	// Data is an opaque slot the loop passes back unchanged on firing.
	Data interface{}

	active bool
}

func (w *IO) Active() bool {
	return w.active
}

// Timer fires after Repeat elapses. Repeat > 0 keeps the timer firing
// every Repeat until stopped; Repeat <= 0 fires once on the next loop
// iteration and deactivates.
type Timer struct {
	Repeat   time.Duration
	Priority int
	Callback func(*Timer)
	Data     interface{}

	active   bool
	deadline time.Time
	hidx     int
}

func (t *Timer) Active() bool {
	return t.active
}
