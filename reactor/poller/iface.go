package poller

import "time"

const (
	OpRead int64 = iota + 1
	OpWrite
)

const (
	FlagAdd int64 = 1 << iota
	FlagDel
	FlagEOF
	FlagErr
)

type Pevent struct {
	Fd        int
	Operation int64
	Flag      int64
}

type Poller interface {
	Register(changes []Pevent) error
	// Wait blocks until at least one event triggers or timeout elapses.
	// timeout < 0 blocks indefinitely, timeout == 0 polls.
	Wait(events []Pevent, timeout time.Duration) (int, error)
	Close() error
}
