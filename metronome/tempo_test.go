package metronome

import (
	"errors"
	"math"
	"testing"
	"time"
)

func spec(bpm float64, beats, sub int, accents ...bool) TempoSpec {
	if accents == nil {
		accents = make([]bool, beats)
		accents[0] = true
	}
	return TempoSpec{BPM: bpm, BeatsPerBar: beats, Subdivision: sub, Accents: accents}
}

func TestValidateRejectsOutOfRange(t *testing.T) {
	cases := []struct {
		name string
		spec TempoSpec
	}{
		{"bpm too low", spec(19, 4, 1)},
		{"bpm too high", spec(401, 4, 1)},
		{"bpm nan", spec(math.NaN(), 4, 1)},
		{"zero beats", spec(120, 0, 1, []bool{}...)},
		{"too many beats", TempoSpec{BPM: 120, BeatsPerBar: 33, Subdivision: 1, Accents: make([]bool, 33)}},
		{"zero subdivision", spec(120, 4, 0)},
		{"subdivision too fine", spec(120, 4, 13)},
		{"accent length mismatch", TempoSpec{BPM: 120, BeatsPerBar: 4, Subdivision: 1, Accents: []bool{true}}},
	}
	for _, tc := range cases {
		if err := tc.spec.Validate(); !errors.Is(err, ErrInvalidTempoSpec) {
			t.Errorf("%s: expected ErrInvalidTempoSpec, got %v", tc.name, err)
		}
	}
}

func TestValidateAcceptsRange(t *testing.T) {
	for _, s := range []TempoSpec{
		DefaultSpec(),
		spec(20, 1, 1),
		spec(400, 32, 12),
		spec(90, 3, 1),
	} {
		if err := s.Validate(); err != nil {
			t.Errorf("%v: unexpected error %v", s, err)
		}
	}
}

func TestIntervalExact(t *testing.T) {
	for _, s := range []TempoSpec{
		spec(60, 4, 1),
		spec(120, 4, 2),
		spec(90, 3, 3),
		spec(400, 32, 12),
	} {
		want := 60 / (s.BPM * float64(s.Subdivision))
		if got := s.intervalSeconds(); math.Abs(got-want) > 1e-12 {
			t.Errorf("%v: interval %v, want %v", s, got, want)
		}
	}
}

func TestDeadlineSpacingNoAccumulation(t *testing.T) {
	s := spec(90, 3, 1)
	origin := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	sc := schedule{origin: origin, baseSeq: 0, spec: s}

	interval := s.intervalSeconds()
	for n := uint64(0); n < 100_000; n += 997 {
		want := origin.Add(time.Duration(float64(n) * interval * float64(time.Second)))
		got := sc.deadline(n)
		if d := got.Sub(want); d < -time.Microsecond || d > time.Microsecond {
			t.Fatalf("deadline(%d) off by %v", n, d)
		}
	}

	// Consecutive spacing stays the ideal interval even far from the origin.
	far := uint64(1_000_000)
	gap := sc.deadline(far + 1).Sub(sc.deadline(far))
	want := time.Duration(interval * float64(time.Second))
	if d := gap - want; d < -time.Microsecond || d > time.Microsecond {
		t.Errorf("spacing at n=%d drifted: %v vs %v", far, gap, want)
	}
}

func TestPositionAndAccents(t *testing.T) {
	// 90 BPM, 3 beats per bar, quarter ticks, first beat accented:
	// ticks 0..5 map to beats 0,1,2,0,1,2.
	s := spec(90, 3, 1, true, false, false)
	wantBeats := []int{0, 1, 2, 0, 1, 2}
	wantAccent := []bool{true, false, false, true, false, false}
	for n := 0; n < 6; n++ {
		beat, sub := s.Position(uint64(n))
		if beat != wantBeats[n] || sub != 0 {
			t.Errorf("tick %d: got beat=%d sub=%d, want beat=%d sub=0", n, beat, sub, wantBeats[n])
		}
		if got := s.Accented(uint64(n)); got != wantAccent[n] {
			t.Errorf("tick %d: accent %v, want %v", n, got, wantAccent[n])
		}
	}
	seconds := 60.0 / 90.0
	if got := s.Interval(); got != time.Duration(seconds*float64(time.Second)) {
		t.Errorf("interval %v, want ~666.67ms", got)
	}
}

func TestSubdivisionPosition(t *testing.T) {
	s := spec(120, 2, 3, true, true)
	type pos struct{ beat, sub int }
	want := []pos{
		{0, 0}, {0, 1}, {0, 2},
		{1, 0}, {1, 1}, {1, 2},
		{0, 0},
	}
	for n, w := range want {
		beat, sub := s.Position(uint64(n))
		if beat != w.beat || sub != w.sub {
			t.Errorf("tick %d: got (%d,%d), want (%d,%d)", n, beat, sub, w.beat, w.sub)
		}
	}
	// Accent only on the first subdivision of an accented beat.
	if !s.Accented(0) || s.Accented(1) || s.Accented(2) || !s.Accented(3) {
		t.Error("accents must land only on subdivision 0")
	}
}
