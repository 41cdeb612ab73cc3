// Package audio abstracts the audio-output capability the click voice
// renders into. Platform backends live behind build tags; tests use the
// fake. Buffers are 16-bit mono PCM.
package audio

// DataCallback fills out with the next mono frames to play. It runs on
// the backend's audio thread and must not block.
type DataCallback func(out []int16)

type PlaybackConfig struct {
	SampleRate uint32
}

type DeviceInfo struct {
	ID   string // opaque platform-specific identifier
	Name string
}

type Context interface {
	Devices() ([]DeviceInfo, error)
	NewPlayback(device *DeviceInfo, config PlaybackConfig, cb DataCallback) (PlaybackDevice, error)
	Close()
}

type PlaybackDevice interface {
	Start() error
	Stop()
	Close()
}
