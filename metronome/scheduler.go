package metronome

import (
	"math"
	"sync/atomic"
	"time"
)

// lookahead is how early within a cycle a deadline may be taken. It
// absorbs driver jitter: a tick due 1ms from now fires on this cycle
// rather than landing a full driver period late.
const lookahead = time.Millisecond

// scheduler advances the tick grid. Its mutable state is owned by the
// single driver goroutine; the control domain talks to it only through
// the transport snapshot, and it talks back only through the bus and a
// few atomic counters.
type scheduler struct {
	transport *Transport
	bus       *Bus
	voice     Voice

	sched   schedule
	nextSeq uint64
	epoch   uint64
	specGen uint64
	started bool

	// Stats, read from the control domain.
	ticks    atomic.Uint64
	notices  atomic.Uint64
	maxDrift atomic.Int64 // nanoseconds, max absolute observed
}

func newScheduler(t *Transport, bus *Bus, voice Voice) *scheduler {
	if voice == nil {
		voice = NullVoice{}
	}
	return &scheduler{transport: t, bus: bus, voice: voice}
}

// cycle runs once per driver invocation with the driver's monotonic now.
func (s *scheduler) cycle(now time.Time) {
	snap := s.transport.snapshot()
	switch snap.phase {
	case Stopped:
		s.started = false
		return
	case Paused:
		// Grid frozen; resume re-anchors via a new epoch.
		return
	}

	if !s.started || snap.epoch != s.epoch {
		s.resync(snap, now)
	}

	for {
		deadline := s.sched.deadline(s.nextSeq)
		if now.Before(deadline.Add(-lookahead)) {
			return
		}
		late := now.Sub(deadline)
		if late > s.sched.spec.Interval()/2 {
			s.missDeadline(now, deadline, late)
			return
		}
		s.fire(now, deadline, snap)
	}
}

// resync rebuilds the grid after a start or resume transition.
func (s *scheduler) resync(snap *snapshot, now time.Time) {
	if snap.resumed && s.started {
		// Next tick exactly one interval after the resume instant;
		// the sequence counter carries on without a gap.
		s.sched = schedule{
			origin:  snap.anchor.Add(snap.spec.Interval()),
			baseSeq: s.nextSeq,
			spec:    snap.spec,
		}
	} else {
		// Fresh session: tick 0 fires at the start instant.
		s.nextSeq = 0
		s.ticks.Store(0)
		s.notices.Store(0)
		s.maxDrift.Store(0)
		s.sched = schedule{origin: snap.anchor, baseSeq: 0, spec: snap.spec}
	}
	s.epoch = snap.epoch
	s.specGen = snap.specGen
	s.started = true
}

// fire emits one tick: click first, then the event. A failed click is
// reported and the tick stream continues; visual ticking never depends
// on the audio backend. Conditions surface only as bus Notices; any
// logging or display is the consumer's business.
func (s *scheduler) fire(now, deadline time.Time, snap *snapshot) {
	accented := s.sched.spec.Accented(s.nextSeq)
	if err := s.voice.Trigger(accented); err != nil {
		s.notices.Add(1)
		s.bus.Publish(Notice{Kind: AudioUnavailable, Err: err, At: now})
	}

	beat, sub := s.sched.spec.Position(s.nextSeq)
	s.bus.Publish(TickEvent{
		Seq:      s.nextSeq,
		Beat:     beat,
		Sub:      sub,
		Accented: accented,
		Deadline: deadline,
		At:       now,
	})

	s.nextSeq++
	s.ticks.Add(1)
	s.observeDrift(now.Sub(deadline))

	// A tempo edit takes effect here, at the boundary just committed:
	// tick n+1 lands one new-spec interval after tick n's ideal
	// instant. No partial interval is ever emitted.
	if snap.specGen != s.specGen {
		s.sched = schedule{origin: deadline, baseSeq: s.nextSeq - 1, spec: snap.spec}
		s.specGen = snap.specGen
	}
}

// missDeadline handles drift beyond half an interval. Instead of firing
// the backlog in a burst, the grid is shifted forward onto the nearest
// ideal slot at or after now and the next cycle resumes from there.
// Sequence numbers stay contiguous; only deadlines move.
func (s *scheduler) missDeadline(now, deadline time.Time, late time.Duration) {
	interval := s.sched.spec.intervalSeconds()
	slots := int(math.Ceil(late.Seconds() / interval))
	if slots < 1 {
		slots = 1
	}
	s.sched = schedule{
		origin:  s.sched.deadline(s.nextSeq + uint64(slots)),
		baseSeq: s.nextSeq,
		spec:    s.sched.spec,
	}
	s.notices.Add(1)
	s.bus.Publish(Notice{Kind: MissedDeadline, Drift: late, Skipped: slots, At: now})
}

func (s *scheduler) observeDrift(d time.Duration) {
	abs := d
	if abs < 0 {
		abs = -abs
	}
	if int64(abs) > s.maxDrift.Load() {
		s.maxDrift.Store(int64(abs))
	}
}

// Stats is a point-in-time snapshot of scheduler counters.
type Stats struct {
	Ticks    uint64
	Notices  uint64
	MaxDrift time.Duration
}

func (s *scheduler) stats() Stats {
	return Stats{
		Ticks:    s.ticks.Load(),
		Notices:  s.notices.Load(),
		MaxDrift: time.Duration(s.maxDrift.Load()),
	}
}
