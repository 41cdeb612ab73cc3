package metronome

import "time"

// Event is a notification delivered on the Bus. The concrete types are
// TickEvent, TransportChange and Notice.
type Event interface {
	event()
}

// TickEvent describes one scheduled click. Values are read-only once
// published.
type TickEvent struct {
	Seq      uint64    // monotonic, 0 on transport start
	Beat     int       // 0-based beat within the bar
	Sub      int       // 0-based subdivision within the beat
	Accented bool
	Deadline time.Time // ideal instant this tick was scheduled for
	At       time.Time // instant the scheduler actually fired it
}

func (TickEvent) event() {}

// TransportChange announces a transport transition to observers.
type TransportChange struct {
	Phase Phase
	Spec  TempoSpec
	At    time.Time
}

func (TransportChange) event() {}

// NoticeKind classifies recoverable engine conditions.
type NoticeKind int

const (
	// MissedDeadline: scheduling drift exceeded half a tick interval.
	// The engine re-synced onto the grid and kept going.
	MissedDeadline NoticeKind = iota
	// AudioUnavailable: the click backend failed to render. Ticking
	// continues silently.
	AudioUnavailable
)

func (k NoticeKind) String() string {
	switch k {
	case MissedDeadline:
		return "missed_deadline"
	case AudioUnavailable:
		return "audio_unavailable"
	}
	return "unknown"
}

// Notice reports a recoverable condition from the scheduling path.
type Notice struct {
	Kind    NoticeKind
	Drift   time.Duration // how late the tick was (MissedDeadline)
	Skipped int           // grid slots jumped to resync (MissedDeadline)
	Err     error         // backend error (AudioUnavailable)
	At      time.Time
}

func (Notice) event() {}
