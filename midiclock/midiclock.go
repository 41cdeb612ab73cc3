// Package midiclock forwards metronome ticks to a MIDI output port so
// external gear can voice the click. It consumes engine events as an
// ordinary bus subscriber: a stalled port drops bus events, never
// scheduler time.
package midiclock

import (
	"fmt"
	"strings"

	gomidi "gitlab.com/gomidi/midi/v2"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // register MIDI driver

	"clave/metronome"
)

// GM percussion defaults: high/low woodblock on the drum channel.
const (
	channel    = 9
	accentNote = 76
	tickNote   = 77
	accentVel  = 112
	tickVel    = 80
)

// Sink sends a short percussion note per tick.
type Sink struct {
	send func(gomidi.Message) error
	done chan struct{}
}

// Ports lists available MIDI output port names.
func Ports() []string {
	var names []string
	for _, p := range gomidi.GetOutPorts() {
		names = append(names, p.String())
	}
	return names
}

// Open connects to the named output port. Matching is case-insensitive
// on substring, the way hardware port names are usually given.
func Open(portName string) (*Sink, error) {
	want := strings.ToLower(portName)
	for _, port := range gomidi.GetOutPorts() {
		if !strings.Contains(strings.ToLower(port.String()), want) {
			continue
		}
		send, err := gomidi.SendTo(port)
		if err != nil {
			return nil, fmt.Errorf("opening midi port %q: %w", port.String(), err)
		}
		return newSink(send), nil
	}
	return nil, fmt.Errorf("no midi output port matching %q", portName)
}

// newSink wraps a raw sender; split out so tests can record messages.
func newSink(send func(gomidi.Message) error) *Sink {
	return &Sink{send: send, done: make(chan struct{})}
}

// Run consumes the subscription until it is closed or Close is called.
// Blocks; callers run it on its own goroutine.
func (s *Sink) Run(sub *metronome.Subscription) {
	for {
		select {
		case <-s.done:
			return
		case ev := <-sub.C():
			tick, ok := ev.(metronome.TickEvent)
			if !ok {
				continue
			}
			note, vel := uint8(tickNote), uint8(tickVel)
			if tick.Accented {
				note, vel = accentNote, accentVel
			}
			// Trigger style: immediate on/off pair, the receiver's
			// envelope shapes the click.
			if err := s.send(gomidi.NoteOn(channel, note, vel)); err != nil {
				continue
			}
			_ = s.send(gomidi.NoteOff(channel, note))
		}
	}
}

// Close stops Run. The subscription is the caller's to close.
func (s *Sink) Close() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}
