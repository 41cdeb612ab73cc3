package metronome

import (
	"errors"
	"testing"
	"time"
)

func newTestEngine(t *testing.T) (*Engine, *ManualDriver, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	driver := NewManualDriver()
	e := New(NullVoice{}, WithDriver(driver), WithClock(clock.Now))
	t.Cleanup(e.Close)
	return e, driver, clock
}

func TestEngineLifecycle(t *testing.T) {
	e, driver, clock := newTestEngine(t)
	sub := e.Subscribe(0)
	defer sub.Close()

	if err := e.Start(spec(120, 4, 1)); err != nil {
		t.Fatal(err)
	}
	if e.Phase() != Running {
		t.Fatalf("phase %v", e.Phase())
	}

	driver.Step(clock.Now())
	for i := 0; i < 1000; i++ {
		driver.Step(clock.advance(2 * time.Millisecond))
	}

	var ticks []TickEvent
	for done := false; !done; {
		select {
		case ev := <-sub.C():
			if tk, ok := ev.(TickEvent); ok {
				ticks = append(ticks, tk)
			}
		default:
			done = true
		}
	}
	if len(ticks) != 5 { // 2s at 120 BPM: t=0,.5,1,1.5,2
		t.Fatalf("expected 5 ticks, got %d", len(ticks))
	}
	if st := e.Stats(); st.Ticks != 5 || st.Notices != 0 {
		t.Fatalf("stats %+v", st)
	}

	if err := e.Stop(); err != nil {
		t.Fatal(err)
	}
	if e.Phase() != Stopped {
		t.Fatalf("phase %v", e.Phase())
	}
}

func TestEngineRejectsBadCalls(t *testing.T) {
	e, _, _ := newTestEngine(t)
	if err := e.Start(spec(5, 4, 1)); !errors.Is(err, ErrInvalidTempoSpec) {
		t.Errorf("bad spec: %v", err)
	}
	if err := e.Pause(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("pause while stopped: %v", err)
	}
	if err := e.SetTempo(DefaultSpec()); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("set tempo while stopped: %v", err)
	}
}

func TestEngineCloseIsIdempotent(t *testing.T) {
	e, _, _ := newTestEngine(t)
	if err := e.Start(DefaultSpec()); err != nil {
		t.Fatal(err)
	}
	e.Close()
	e.Close()
	if e.Phase() != Stopped {
		t.Error("close must stop a running session")
	}
}

func TestEngineWithTickerDriver(t *testing.T) {
	// Real driver, real clock: coarse sanity that ticks arrive.
	e := New(NullVoice{}, WithResolution(time.Millisecond))
	defer e.Close()
	sub := e.Subscribe(64)
	defer sub.Close()

	if err := e.Start(spec(400, 4, 4)); err != nil { // 37.5ms interval
		t.Fatal(err)
	}

	deadline := time.After(2 * time.Second)
	seen := 0
	for seen < 5 {
		select {
		case ev := <-sub.C():
			if _, ok := ev.(TickEvent); ok {
				seen++
			}
		case <-deadline:
			t.Fatalf("only %d ticks within 2s", seen)
		}
	}
}
