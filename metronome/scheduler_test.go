package metronome

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"clave/log"
)

// recordingVoice captures trigger calls; fails on demand.
type recordingVoice struct {
	accents []bool
	err     error
}

func (v *recordingVoice) Trigger(accented bool) error {
	v.accents = append(v.accents, accented)
	return v.err
}

type schedulerHarness struct {
	transport *Transport
	sched     *scheduler
	sub       *Subscription
	voice     *recordingVoice
	clock     *fakeClock
}

func newHarness(t *testing.T) *schedulerHarness {
	t.Helper()
	clock := newFakeClock()
	bus := NewBus()
	transport := NewTransport(bus, clock.Now)
	voice := &recordingVoice{}
	return &schedulerHarness{
		transport: transport,
		sched:     newScheduler(transport, bus, voice),
		sub:       bus.Subscribe(1024),
		voice:     voice,
		clock:     clock,
	}
}

// step advances the clock and runs one scheduler cycle at the new now.
func (h *schedulerHarness) step(d time.Duration) {
	h.sched.cycle(h.clock.advance(d))
}

func (h *schedulerHarness) drain(t *testing.T) (ticks []TickEvent, notices []Notice) {
	t.Helper()
	for {
		select {
		case ev := <-h.sub.C():
			switch e := ev.(type) {
			case TickEvent:
				ticks = append(ticks, e)
			case Notice:
				notices = append(notices, e)
			}
		default:
			return ticks, notices
		}
	}
}

// run steps the scheduler in fixed cycles over a span of virtual time.
func (h *schedulerHarness) run(span, cycle time.Duration) {
	for elapsed := time.Duration(0); elapsed < span; elapsed += cycle {
		h.step(cycle)
	}
}

func TestTicksFireOnIdealGrid(t *testing.T) {
	h := newHarness(t)
	if err := h.transport.Start(spec(60, 4, 1)); err != nil {
		t.Fatal(err)
	}
	start := h.clock.Now()

	h.sched.cycle(h.clock.Now()) // tick 0 fires at the start instant
	h.run(3500*time.Millisecond, 2*time.Millisecond)

	ticks, notices := h.drain(t)
	if len(notices) != 0 {
		t.Fatalf("unexpected notices: %+v", notices)
	}
	if len(ticks) != 4 { // t=0,1,2,3s
		t.Fatalf("expected 4 ticks in 3.5s at 60 BPM, got %d", len(ticks))
	}
	for i, tick := range ticks {
		if tick.Seq != uint64(i) {
			t.Errorf("tick %d: seq %d", i, tick.Seq)
		}
		want := start.Add(time.Duration(i) * time.Second)
		if d := tick.Deadline.Sub(want); d < -time.Millisecond || d > time.Millisecond {
			t.Errorf("tick %d: deadline off by %v", i, d)
		}
		if tick.At.Before(tick.Deadline.Add(-lookahead)) {
			t.Errorf("tick %d fired before its lookahead window", i)
		}
	}
}

func TestSequenceGaplessAndOrdered(t *testing.T) {
	h := newHarness(t)
	if err := h.transport.Start(spec(240, 4, 3)); err != nil {
		t.Fatal(err)
	}
	h.sched.cycle(h.clock.Now())
	h.run(5*time.Second, 2*time.Millisecond)

	ticks, _ := h.drain(t)
	if len(ticks) < 50 {
		t.Fatalf("expected a dense tick stream, got %d", len(ticks))
	}
	prevDeadline := time.Time{}
	for i, tick := range ticks {
		if tick.Seq != uint64(i) {
			t.Fatalf("sequence gap or repeat at %d: seq %d", i, tick.Seq)
		}
		if tick.Deadline.Before(prevDeadline) {
			t.Fatalf("tick %d scheduled before its predecessor", i)
		}
		prevDeadline = tick.Deadline
	}
}

func TestBeatAndAccentDerivation(t *testing.T) {
	h := newHarness(t)
	if err := h.transport.Start(spec(90, 3, 1, true, false, false)); err != nil {
		t.Fatal(err)
	}
	h.sched.cycle(h.clock.Now())
	h.run(4*time.Second, 2*time.Millisecond)

	ticks, _ := h.drain(t)
	if len(ticks) < 6 {
		t.Fatalf("expected >= 6 ticks, got %d", len(ticks))
	}
	wantBeat := []int{0, 1, 2, 0, 1, 2}
	wantAccent := []bool{true, false, false, true, false, false}
	for i := 0; i < 6; i++ {
		if ticks[i].Beat != wantBeat[i] || ticks[i].Accented != wantAccent[i] {
			t.Errorf("tick %d: beat=%d accent=%v, want beat=%d accent=%v",
				i, ticks[i].Beat, ticks[i].Accented, wantBeat[i], wantAccent[i])
		}
	}
	// Inter-tick spacing 60/90 s.
	seconds := 60.0 / 90.0
	want := time.Duration(seconds * float64(time.Second))
	for i := 1; i < 6; i++ {
		gap := ticks[i].Deadline.Sub(ticks[i-1].Deadline)
		if d := gap - want; d < -time.Millisecond || d > time.Millisecond {
			t.Errorf("gap %d: %v, want %v", i, gap, want)
		}
	}
	// Voice saw the same accent sequence.
	for i := 0; i < 6; i++ {
		if h.voice.accents[i] != wantAccent[i] {
			t.Errorf("voice trigger %d: accent %v, want %v", i, h.voice.accents[i], wantAccent[i])
		}
	}
}

func TestTempoChangeAtBoundary(t *testing.T) {
	h := newHarness(t)
	if err := h.transport.Start(spec(60, 4, 1)); err != nil {
		t.Fatal(err)
	}
	start := h.clock.Now()
	h.sched.cycle(h.clock.Now())
	h.run(3200*time.Millisecond, 2*time.Millisecond) // ticks 0..3 committed

	// Change to 120 BPM mid-interval, after tick 3.
	if err := h.transport.SetTempo(spec(120, 4, 1)); err != nil {
		t.Fatal(err)
	}
	h.run(2*time.Second, 2*time.Millisecond)

	ticks, notices := h.drain(t)
	if len(notices) != 0 {
		t.Fatalf("unexpected notices: %+v", notices)
	}
	if len(ticks) < 7 {
		t.Fatalf("expected >= 7 ticks, got %d", len(ticks))
	}

	// Tick 4 still lands one old-tempo interval after tick 3.
	want4 := start.Add(4 * time.Second)
	if d := ticks[4].Deadline.Sub(want4); d < -time.Millisecond || d > time.Millisecond {
		t.Errorf("tick 4 deadline off by %v (must keep old spacing)", d)
	}
	// Tick 5 onward are spaced at the new 500ms interval.
	for i := 5; i < len(ticks); i++ {
		gap := ticks[i].Deadline.Sub(ticks[i-1].Deadline)
		if d := gap - 500*time.Millisecond; d < -time.Millisecond || d > time.Millisecond {
			t.Errorf("tick %d: gap %v, want 500ms", i, gap)
		}
	}
}

func TestPauseResumeReanchors(t *testing.T) {
	h := newHarness(t)
	if err := h.transport.Start(spec(60, 4, 1)); err != nil {
		t.Fatal(err)
	}
	h.sched.cycle(h.clock.Now())
	h.run(2100*time.Millisecond, 2*time.Millisecond) // ticks 0,1,2

	if err := h.transport.Pause(); err != nil {
		t.Fatal(err)
	}
	// Arbitrary real-time delay while paused; cycles are no-ops.
	h.run(7*time.Second, 50*time.Millisecond)
	preResume, _ := h.drain(t)
	if len(preResume) != 3 {
		t.Fatalf("expected 3 ticks before pause, got %d", len(preResume))
	}

	if err := h.transport.Resume(); err != nil {
		t.Fatal(err)
	}
	resumeAt := h.clock.Now()
	h.run(1500*time.Millisecond, 2*time.Millisecond)

	ticks, _ := h.drain(t)
	if len(ticks) != 1 {
		t.Fatalf("expected exactly 1 tick within 1.5s of resume, got %d", len(ticks))
	}
	// Exactly one interval after the resume instant, not backdated,
	// and the sequence continues without a gap.
	want := resumeAt.Add(time.Second)
	if d := ticks[0].Deadline.Sub(want); d < -time.Millisecond || d > time.Millisecond {
		t.Errorf("resumed tick deadline off by %v", d)
	}
	if ticks[0].At.Before(want.Add(-lookahead)) {
		t.Error("resumed tick fired earlier than one interval after resume")
	}
	if ticks[0].Seq != 3 {
		t.Errorf("resumed tick seq %d, want 3", ticks[0].Seq)
	}
}

func TestMissedDeadlineResyncsWithoutBurst(t *testing.T) {
	h := newHarness(t)
	if err := h.transport.Start(spec(60, 4, 1)); err != nil {
		t.Fatal(err)
	}
	start := h.clock.Now()
	h.sched.cycle(h.clock.Now()) // tick 0

	// Stall for 3 tick intervals past tick 1's deadline.
	h.step(1*time.Second + 3*time.Second)

	// Then resume normal cycling for a while.
	h.run(3*time.Second, 2*time.Millisecond)

	ticks, notices := h.drain(t)
	if len(notices) != 1 {
		t.Fatalf("expected exactly 1 MissedDeadline, got %d: %+v", len(notices), notices)
	}
	if notices[0].Kind != MissedDeadline {
		t.Fatalf("notice kind %v", notices[0].Kind)
	}
	if notices[0].Skipped != 3 {
		t.Errorf("skipped slots %d, want 3", notices[0].Skipped)
	}

	// No burst: tick 1 fires at the first grid slot at/after the stall
	// (t=4s), and later ticks stay on that grid, gapless.
	if len(ticks) < 4 {
		t.Fatalf("expected ticks after resync, got %d", len(ticks))
	}
	want1 := start.Add(4 * time.Second)
	if d := ticks[1].Deadline.Sub(want1); d < -time.Millisecond || d > time.Millisecond {
		t.Errorf("resynced tick deadline off by %v", d)
	}
	for i, tick := range ticks {
		if tick.Seq != uint64(i) {
			t.Fatalf("sequence gap after resync at %d: seq %d", i, tick.Seq)
		}
	}
	for i := 2; i < len(ticks); i++ {
		gap := ticks[i].Deadline.Sub(ticks[i-1].Deadline)
		if d := gap - time.Second; d < -time.Millisecond || d > time.Millisecond {
			t.Errorf("post-resync gap %d: %v", i, gap)
		}
	}
}

func TestAudioFailureDoesNotStopTicks(t *testing.T) {
	h := newHarness(t)
	h.voice.err = errors.New("backend gone")
	if err := h.transport.Start(spec(120, 4, 1)); err != nil {
		t.Fatal(err)
	}
	h.sched.cycle(h.clock.Now())
	h.run(2*time.Second, 2*time.Millisecond)

	ticks, notices := h.drain(t)
	if len(ticks) < 4 {
		t.Fatalf("tick stream must continue without audio, got %d ticks", len(ticks))
	}
	if len(notices) != len(ticks) {
		t.Fatalf("expected one AudioUnavailable per tick, got %d for %d ticks", len(notices), len(ticks))
	}
	for _, n := range notices {
		if n.Kind != AudioUnavailable {
			t.Fatalf("notice kind %v", n.Kind)
		}
		if !errors.Is(n.Err, h.voice.err) {
			t.Errorf("notice error %v", n.Err)
		}
	}
}

func TestStopResetsSession(t *testing.T) {
	h := newHarness(t)
	if err := h.transport.Start(spec(120, 4, 1)); err != nil {
		t.Fatal(err)
	}
	h.sched.cycle(h.clock.Now())
	h.run(time.Second, 2*time.Millisecond)
	if err := h.transport.Stop(); err != nil {
		t.Fatal(err)
	}
	h.run(time.Second, 2*time.Millisecond) // no ticks while stopped
	h.drain(t)

	if err := h.transport.Start(spec(120, 4, 1)); err != nil {
		t.Fatal(err)
	}
	h.sched.cycle(h.clock.Now())
	ticks, _ := h.drain(t)
	if len(ticks) != 1 || ticks[0].Seq != 0 {
		t.Fatalf("sequence must restart at 0 on a fresh start, got %+v", ticks)
	}
	if h.sched.stats().Ticks != 1 {
		t.Errorf("stats must reset on start, got %d ticks", h.sched.stats().Ticks)
	}
}

func TestStatsTrackDrift(t *testing.T) {
	h := newHarness(t)
	if err := h.transport.Start(spec(60, 4, 1)); err != nil {
		t.Fatal(err)
	}
	h.sched.cycle(h.clock.Now())
	// Fire tick 1 a bit late, under the miss threshold.
	h.step(1*time.Second + 100*time.Millisecond)

	st := h.sched.stats()
	if st.Ticks != 2 {
		t.Fatalf("ticks %d, want 2", st.Ticks)
	}
	if st.MaxDrift < 99*time.Millisecond || st.MaxDrift > 101*time.Millisecond {
		t.Errorf("max drift %v, want ~100ms", st.MaxDrift)
	}
}

// The cycle path must never touch the diagnostics file: conditions
// leave the scheduler only as bus Notices, and consumers log them from
// the control domain.
func TestCycleDoesNotWriteDiagnostics(t *testing.T) {
	dir := t.TempDir()
	log.SetDir(dir)
	if err := log.Init(); err != nil {
		t.Fatal(err)
	}
	defer log.Close()

	h := newHarness(t)
	h.voice.err = errors.New("device gone")
	if err := h.transport.Start(spec(60, 4, 1)); err != nil {
		t.Fatal(err)
	}

	diagPath := filepath.Join(dir, "diagnostics_log.txt")
	before, err := os.Stat(diagPath)
	if err != nil {
		t.Fatal(err)
	}

	h.sched.cycle(h.clock.Now()) // failing click
	h.step(5 * time.Second)      // stall, missed deadline
	_, notices := h.drain(t)
	if len(notices) < 2 {
		t.Fatalf("expected click failure and missed deadline notices, got %+v", notices)
	}

	after, err := os.Stat(diagPath)
	if err != nil {
		t.Fatal(err)
	}
	if after.Size() != before.Size() {
		t.Errorf("cycle wrote %d bytes to the diagnostics file", after.Size()-before.Size())
	}
}
