package metronome

// Voice renders the click for a tick. Trigger is called from the
// time-critical cycle and must be wait-free: implementations hand off to
// an already-running output device and report failure instead of
// blocking or retrying.
type Voice interface {
	Trigger(accented bool) error
}

// NullVoice is a silent Voice for headless and test use.
type NullVoice struct{}

func (NullVoice) Trigger(bool) error { return nil }
