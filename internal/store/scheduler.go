package store

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Scheduler programa callbacks de una sola ejecucion. El cancel devuelto
// informa si el callback fue detenido antes de ejecutarse.
type Scheduler interface {
	After(d time.Duration, fn func()) (cancel func() bool)
}

type clockScheduler struct {
	clock clockwork.Clock
}

// NewClockScheduler adapta un clockwork.Clock a Scheduler.
func NewClockScheduler(clock clockwork.Clock) Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return clockScheduler{clock: clock}
}

func (s clockScheduler) After(d time.Duration, fn func()) func() bool {
	t := s.clock.AfterFunc(d, fn)
	return t.Stop
}
