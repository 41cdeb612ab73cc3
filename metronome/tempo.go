package metronome

import (
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	MinBPM         = 20.0
	MaxBPM         = 400.0
	MaxBeatsPerBar = 32
	MaxSubdivision = 12
)

// ErrInvalidTempoSpec is returned when a TempoSpec fails validation.
// The wrapped message names the offending field.
var ErrInvalidTempoSpec = errors.New("invalid tempo spec")

// TempoSpec is an immutable snapshot of the musical parameters. It is
// replaced wholesale on every edit, never mutated in place, so the
// scheduler can read it without coordination.
type TempoSpec struct {
	BPM         float64
	BeatsPerBar int
	Subdivision int // ticks per beat: 1=quarter, 2=eighth, 3=triplet, 4=sixteenth
	Accents     []bool
}

// DefaultSpec returns 120 BPM in 4/4 with quarter-note ticks and the
// first beat accented.
func DefaultSpec() TempoSpec {
	return TempoSpec{
		BPM:         120,
		BeatsPerBar: 4,
		Subdivision: 1,
		Accents:     []bool{true, false, false, false},
	}
}

func (s TempoSpec) Validate() error {
	if s.BPM < MinBPM || s.BPM > MaxBPM || math.IsNaN(s.BPM) {
		return fmt.Errorf("%w: bpm %v outside %v..%v", ErrInvalidTempoSpec, s.BPM, MinBPM, MaxBPM)
	}
	if s.BeatsPerBar < 1 || s.BeatsPerBar > MaxBeatsPerBar {
		return fmt.Errorf("%w: beats per bar %d outside 1..%d", ErrInvalidTempoSpec, s.BeatsPerBar, MaxBeatsPerBar)
	}
	if s.Subdivision < 1 || s.Subdivision > MaxSubdivision {
		return fmt.Errorf("%w: subdivision %d outside 1..%d", ErrInvalidTempoSpec, s.Subdivision, MaxSubdivision)
	}
	if len(s.Accents) != s.BeatsPerBar {
		return fmt.Errorf("%w: accent pattern length %d != beats per bar %d", ErrInvalidTempoSpec, len(s.Accents), s.BeatsPerBar)
	}
	return nil
}

// intervalSeconds is the ideal spacing between consecutive ticks.
func (s TempoSpec) intervalSeconds() float64 {
	return 60 / (s.BPM * float64(s.Subdivision))
}

// Interval returns the tick spacing as a duration, for display and
// threshold checks. Deadline math uses intervalSeconds directly.
func (s TempoSpec) Interval() time.Duration {
	return time.Duration(s.intervalSeconds() * float64(time.Second))
}

// Position maps a sequence number to its beat within the bar and its
// subdivision index within the beat.
func (s TempoSpec) Position(n uint64) (beat, sub int) {
	beat = int(n / uint64(s.Subdivision) % uint64(s.BeatsPerBar))
	sub = int(n % uint64(s.Subdivision))
	return beat, sub
}

// Accented reports whether tick n lands on an accented beat. Only the
// first subdivision of a beat can carry the accent.
func (s TempoSpec) Accented(n uint64) bool {
	beat, sub := s.Position(n)
	return sub == 0 && s.Accents[beat]
}

func (s TempoSpec) String() string {
	return fmt.Sprintf("%g bpm %d/beat sub=%d", s.BPM, s.BeatsPerBar, s.Subdivision)
}

// schedule anchors the ideal tick grid: tick baseSeq fires at origin and
// every later tick is spaced by the spec's interval. Deadlines are always
// computed multiplicatively from the sequence number, never by repeated
// addition, so no rounding error accumulates over a session.
type schedule struct {
	origin  time.Time
	baseSeq uint64
	spec    TempoSpec
}

func (sc schedule) deadline(n uint64) time.Time {
	dt := float64(n-sc.baseSeq) * sc.spec.intervalSeconds()
	return sc.origin.Add(time.Duration(dt * float64(time.Second)))
}
