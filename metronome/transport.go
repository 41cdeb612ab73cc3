package metronome

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"clave/log"
)

// ErrInvalidTransition is returned when a transport operation is not
// legal from the current phase. State is left unchanged.
var ErrInvalidTransition = errors.New("invalid transport transition")

// Phase is the transport's mutually exclusive playback state.
type Phase int

const (
	Stopped Phase = iota
	Running
	Paused
)

func (p Phase) String() string {
	switch p {
	case Stopped:
		return "stopped"
	case Running:
		return "running"
	case Paused:
		return "paused"
	}
	return "unknown"
}

// snapshot is the single value shared across the concurrency boundary.
// The control domain replaces it atomically on every transition; the
// scheduler loads it once per cycle and never writes it.
type snapshot struct {
	phase Phase
	spec  TempoSpec

	// epoch increments on every re-anchoring transition (start,
	// resume) so the scheduler knows to rebuild its grid. specGen
	// increments on SetTempo; the scheduler applies it at the next
	// committed tick boundary.
	epoch   uint64
	specGen uint64

	anchor  time.Time // start or resume instant the grid is based on
	resumed bool      // anchor is a resume instant, keep the sequence counter

	startedAt time.Time     // wall anchor of the current run segment
	elapsed   time.Duration // run time accumulated before startedAt
}

// Transport owns the transport state machine. All transitions are
// serialized by a mutex on the control side and become visible to the
// scheduler as one atomic snapshot replacement.
type Transport struct {
	mu   sync.Mutex
	snap atomic.Pointer[snapshot]
	bus  *Bus
	now  func() time.Time
}

func NewTransport(bus *Bus, now func() time.Time) *Transport {
	if now == nil {
		now = time.Now
	}
	t := &Transport{bus: bus, now: now}
	t.snap.Store(&snapshot{phase: Stopped, spec: DefaultSpec()})
	return t
}

func (t *Transport) snapshot() *snapshot {
	return t.snap.Load()
}

// Phase returns the current transport phase.
func (t *Transport) Phase() Phase {
	return t.snapshot().phase
}

// Spec returns the tempo spec currently in force.
func (t *Transport) Spec() TempoSpec {
	return t.snapshot().spec
}

// Elapsed returns accumulated playback time, frozen while paused.
func (t *Transport) Elapsed() time.Duration {
	s := t.snapshot()
	if s.phase == Running {
		return s.elapsed + t.now().Sub(s.startedAt)
	}
	return s.elapsed
}

func (t *Transport) publish(s *snapshot) {
	t.snap.Store(s)
	log.Transition(s.phase.String(), s.spec.String())
	if t.bus != nil {
		t.bus.Publish(TransportChange{Phase: s.phase, Spec: s.spec, At: t.now()})
	}
}

// Start anchors a fresh session at the current instant. The sequence
// counter and drift accumulator reset on the scheduler side when it
// observes the new epoch.
func (t *Transport) Start(spec TempoSpec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	cur := t.snapshot()
	if cur.phase != Stopped {
		return fmt.Errorf("%w: start from %s", ErrInvalidTransition, cur.phase)
	}
	now := t.now()
	t.publish(&snapshot{
		phase:     Running,
		spec:      spec,
		epoch:     cur.epoch + 1,
		specGen:   cur.specGen,
		anchor:    now,
		startedAt: now,
	})
	return nil
}

// Pause freezes playback, capturing the elapsed run time.
func (t *Transport) Pause() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur := t.snapshot()
	if cur.phase != Running {
		return fmt.Errorf("%w: pause from %s", ErrInvalidTransition, cur.phase)
	}
	next := *cur
	next.phase = Paused
	next.elapsed = cur.elapsed + t.now().Sub(cur.startedAt)
	t.publish(&next)
	return nil
}

// Resume re-anchors the grid at the resume instant: the next tick lands
// exactly one interval later, never backdated to the pause point.
func (t *Transport) Resume() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur := t.snapshot()
	if cur.phase != Paused {
		return fmt.Errorf("%w: resume from %s", ErrInvalidTransition, cur.phase)
	}
	now := t.now()
	next := *cur
	next.phase = Running
	next.epoch = cur.epoch + 1
	next.anchor = now
	next.resumed = true
	next.startedAt = now
	t.publish(&next)
	return nil
}

// Stop ends the session from Running or Paused. Elapsed freezes at the
// total run time of the session just ended; Start begins from zero.
func (t *Transport) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur := t.snapshot()
	if cur.phase != Running && cur.phase != Paused {
		return fmt.Errorf("%w: stop from %s", ErrInvalidTransition, cur.phase)
	}
	next := *cur
	next.phase = Stopped
	next.resumed = false
	if cur.phase == Running {
		next.elapsed = cur.elapsed + t.now().Sub(cur.startedAt)
	}
	t.publish(&next)
	return nil
}

// SetTempo atomically replaces the tempo spec while Running or Paused.
// The scheduler picks it up at the next committed tick boundary, so the
// interval already in flight completes at the old spacing.
func (t *Transport) SetTempo(spec TempoSpec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	cur := t.snapshot()
	if cur.phase != Running && cur.phase != Paused {
		return fmt.Errorf("%w: set tempo from %s", ErrInvalidTransition, cur.phase)
	}
	next := *cur
	next.spec = spec
	next.specGen = cur.specGen + 1
	t.publish(&next)
	return nil
}
