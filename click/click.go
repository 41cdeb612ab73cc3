// Package click renders the metronome's percussive voice: two
// pre-rendered samples (accented and unaccented) fed to an always-open
// output device through a wait-free trigger.
package click

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"clave/audio"
)

// ErrUnavailable is reported when the click cannot be rendered. Tick
// generation is never gated on it.
var ErrUnavailable = errors.New("audio unavailable")

const (
	SampleRate = 44100

	// Accented click: high pitch, hot
	accentFreq   = 1200.0
	accentVolume = 0.6
	accentDecay  = 45.0

	// Unaccented click: lower, softer
	tickFreq   = 880.0
	tickVolume = 0.45
	tickDecay  = 55.0

	clickDuration = 0.08 // seconds
)

// renderTick synthesizes a mono sine burst with an exponential decay
// envelope.
func renderTick(sampleRate int, freq, duration, volume, decay float64) []int16 {
	n := int(float64(sampleRate) * duration)
	samples := make([]int16, n)
	for i := 0; i < n; i++ {
		t := float64(i) / float64(sampleRate)
		envelope := math.Exp(-t * decay)
		samples[i] = int16(math.Sin(2*math.Pi*freq*t) * 32767 * volume * envelope)
	}
	return samples
}

// Voice implements the engine's click voice. Trigger swaps an atomic
// sample pointer that the device callback plays out; between clicks the
// callback renders silence, so the device stays open for the whole
// session and triggering costs two atomic stores.
type Voice struct {
	device audio.PlaybackDevice

	accented   []int16
	unaccented []int16

	active atomic.Pointer[[]int16]
	pos    atomic.Uint32

	cause error // why the voice is unavailable, nil when healthy
}

// NewVoice renders the samples and opens a playback device on ctx. The
// device starts immediately and runs until Close.
func NewVoice(ctx audio.Context, device *audio.DeviceInfo) (*Voice, error) {
	v := &Voice{
		accented:   renderTick(SampleRate, accentFreq, clickDuration, accentVolume, accentDecay),
		unaccented: renderTick(SampleRate, tickFreq, clickDuration, tickVolume, tickDecay),
	}

	dev, err := ctx.NewPlayback(device, audio.PlaybackConfig{SampleRate: SampleRate}, v.render)
	if err != nil {
		return nil, fmt.Errorf("opening playback device: %w", err)
	}
	if err := dev.Start(); err != nil {
		dev.Close()
		return nil, fmt.Errorf("starting playback device: %w", err)
	}
	v.device = dev
	return v, nil
}

// Disabled returns a Voice whose Trigger always reports ErrUnavailable
// with the given cause. Used when no backend could be opened so the
// engine keeps ticking visually.
func Disabled(cause error) *Voice {
	return &Voice{cause: cause}
}

// Trigger starts playback of the requested sample. Wait-free; safe to
// call from the scheduler cycle.
func (v *Voice) Trigger(accented bool) error {
	if v.device == nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, v.cause)
	}
	sample := &v.unaccented
	if accented {
		sample = &v.accented
	}
	// Position first, pointer second: the callback only reads pos
	// after loading a non-nil pointer.
	v.pos.Store(0)
	v.active.Store(sample)
	return nil
}

// render is the device callback: plays out the active sample, silence
// otherwise.
func (v *Voice) render(out []int16) {
	sample := v.active.Load()
	if sample == nil {
		for i := range out {
			out[i] = 0
		}
		return
	}
	pos := int(v.pos.Load())
	n := copy(out, (*sample)[pos:])
	for i := n; i < len(out); i++ {
		out[i] = 0
	}
	if pos+n >= len(*sample) {
		v.active.CompareAndSwap(sample, nil)
	} else {
		v.pos.Store(uint32(pos + n))
	}
}

// Close releases the playback device.
func (v *Voice) Close() {
	if v.device != nil {
		v.device.Close()
	}
}
