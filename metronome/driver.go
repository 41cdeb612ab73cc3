package metronome

import (
	"runtime"
	"time"
)

// DefaultResolution is the production driver period. 2ms gives better
// than 2x headroom over the fastest supported tick rate (400 BPM at
// 12 subdivisions is 80 ticks/s).
const DefaultResolution = 2 * time.Millisecond

// Driver delivers the periodic invocations that advance the scheduler,
// each carrying a monotonic now. It is the engine's only source of
// time-critical execution.
type Driver interface {
	Run(cycle func(now time.Time))
	Stop()
}

// tickerDriver drives cycles from a time.Ticker on a dedicated,
// OS-thread-pinned goroutine.
type tickerDriver struct {
	res  time.Duration
	stop chan struct{}
	done chan struct{}
}

func newTickerDriver(res time.Duration) *tickerDriver {
	if res <= 0 {
		res = DefaultResolution
	}
	return &tickerDriver{
		res:  res,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

func (d *tickerDriver) Run(cycle func(now time.Time)) {
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		defer close(d.done)

		ticker := time.NewTicker(d.res)
		defer ticker.Stop()
		for {
			select {
			case <-d.stop:
				return
			case <-ticker.C:
				// The ticker's stamped time can lag under load; take
				// a fresh reading for deadline math.
				cycle(time.Now())
			}
		}
	}()
}

func (d *tickerDriver) Stop() {
	select {
	case <-d.stop:
	default:
		close(d.stop)
	}
	<-d.done
}

// ManualDriver steps the scheduler with synthetic instants, one cycle
// per Step call on the caller's goroutine. Used by tests.
type ManualDriver struct {
	cycle func(now time.Time)
}

func NewManualDriver() *ManualDriver { return &ManualDriver{} }

func (d *ManualDriver) Run(cycle func(now time.Time)) { d.cycle = cycle }

func (d *ManualDriver) Stop() {}

// Step runs exactly one scheduler cycle at the given instant.
func (d *ManualDriver) Step(now time.Time) {
	if d.cycle != nil {
		d.cycle(now)
	}
}
