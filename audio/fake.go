package audio

import "sync"

// FakeContext hands out FakePlayback devices whose callback is pulled
// on demand by the test instead of by an audio thread.
type FakeContext struct {
	mu      sync.Mutex
	devices []*FakePlayback
}

func NewFakeContext() *FakeContext {
	return &FakeContext{}
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) {
	return []DeviceInfo{{ID: "fake", Name: "fake output"}}, nil
}

func (f *FakeContext) NewPlayback(_ *DeviceInfo, config PlaybackConfig, cb DataCallback) (PlaybackDevice, error) {
	d := &FakePlayback{cb: cb, config: config}
	f.mu.Lock()
	f.devices = append(f.devices, d)
	f.mu.Unlock()
	return d, nil
}

func (f *FakeContext) Close() {}

// Playbacks returns every device created so far.
func (f *FakeContext) Playbacks() []*FakePlayback {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*FakePlayback(nil), f.devices...)
}

type FakePlayback struct {
	cb     DataCallback
	config PlaybackConfig

	mu      sync.Mutex
	running bool
	closed  bool
}

func (d *FakePlayback) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.running = true
	return nil
}

func (d *FakePlayback) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.running = false
}

func (d *FakePlayback) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.running = false
	d.closed = true
}

func (d *FakePlayback) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Pull renders the next n frames through the device callback, as the
// platform audio thread would.
func (d *FakePlayback) Pull(n int) []int16 {
	out := make([]int16, n)
	d.cb(out)
	return out
}
