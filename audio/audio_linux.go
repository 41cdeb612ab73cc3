//go:build linux

package audio

import (
	"fmt"
	"sync"

	"github.com/jfreymuth/pulse"
	"github.com/jfreymuth/pulse/proto"
)

type pulseContext struct {
	client *pulse.Client
}

func NewContext() (Context, error) {
	c, err := pulse.NewClient()
	if err != nil {
		return nil, fmt.Errorf("pulse: %w", err)
	}
	return &pulseContext{client: c}, nil
}

func (p *pulseContext) Devices() ([]DeviceInfo, error) {
	sinks, err := p.client.ListSinks()
	if err != nil {
		return nil, fmt.Errorf("pulse list sinks: %w", err)
	}
	var devices []DeviceInfo
	for _, s := range sinks {
		devices = append(devices, DeviceInfo{
			ID:   s.ID(),
			Name: s.Name(),
		})
	}
	return devices, nil
}

func (p *pulseContext) NewPlayback(device *DeviceInfo, config PlaybackConfig, cb DataCallback) (PlaybackDevice, error) {
	return &pulsePlayback{
		client: p.client,
		device: device,
		config: config,
		cb:     cb,
	}, nil
}

func (p *pulseContext) Close() {
	p.client.Close()
}

type pulsePlayback struct {
	client *pulse.Client
	device *DeviceInfo
	config PlaybackConfig
	cb     DataCallback

	mono []int16 // scratch, reused across reads

	stream *pulse.PlaybackStream
	mu     sync.Mutex
}

func (d *pulsePlayback) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stream != nil {
		d.stream.Start()
		return nil
	}

	// The stream is stereo; the callback renders mono and both
	// channels get the same signal.
	reader := pulse.Int16Reader(func(buf []int16) (int, error) {
		frames := len(buf) / 2
		if frames == 0 {
			return 0, nil
		}
		if cap(d.mono) < frames {
			d.mono = make([]int16, frames)
		}
		mono := d.mono[:frames]
		d.cb(mono)
		for i, s := range mono {
			buf[i*2] = s
			buf[i*2+1] = s
		}
		return frames * 2, nil
	})

	opts := []pulse.PlaybackOption{
		pulse.PlaybackStereo,
		pulse.PlaybackSampleRate(int(d.config.SampleRate)),
		pulse.PlaybackLatency(0.05),
		pulse.PlaybackRawOption(func(p *proto.CreatePlaybackStream) {
			p.ChannelVolumes = proto.ChannelVolumes{uint32(proto.VolumeNorm), uint32(proto.VolumeNorm)}
		}),
	}
	if d.device != nil {
		sink, err := d.client.SinkByID(d.device.ID)
		if err == nil && sink != nil {
			opts = append(opts, pulse.PlaybackSink(sink))
		}
	}

	stream, err := d.client.NewPlayback(reader, opts...)
	if err != nil {
		return fmt.Errorf("pulse playback: %w", err)
	}
	d.stream = stream
	stream.Start()
	return nil
}

func (d *pulsePlayback) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stream != nil {
		d.stream.Stop()
	}
}

func (d *pulsePlayback) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stream != nil {
		d.stream.Stop()
		d.stream.Close()
		d.stream = nil
	}
}
