// Package metronome implements a drift-free tick scheduling engine: an
// absolute-deadline tempo grid, a lock-free transport state machine, a
// non-blocking event bus and the driver loop that binds them together.
package metronome

import (
	"sync"
	"time"
)

// Engine is one metronome instance. It owns the transport, the
// scheduler and the event bus; the application's composition root
// creates it and hands it to whatever control surface needs it. There
// is no package-level instance.
type Engine struct {
	transport *Transport
	bus       *Bus
	sched     *scheduler
	driver    Driver

	closeOnce sync.Once
}

// Option configures an Engine at construction.
type Option func(*engineConfig)

type engineConfig struct {
	driver Driver
	res    time.Duration
	now    func() time.Time
}

// WithDriver substitutes the periodic callback source. Tests use this
// with a ManualDriver.
func WithDriver(d Driver) Option {
	return func(c *engineConfig) { c.driver = d }
}

// WithResolution sets the production driver period.
func WithResolution(res time.Duration) Option {
	return func(c *engineConfig) { c.res = res }
}

// WithClock substitutes the transport's wall clock. Tests only.
func WithClock(now func() time.Time) Option {
	return func(c *engineConfig) { c.now = now }
}

// New assembles an engine around the given click voice and starts the
// driver loop. The engine comes up Stopped.
func New(voice Voice, opts ...Option) *Engine {
	cfg := engineConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.driver == nil {
		cfg.driver = newTickerDriver(cfg.res)
	}

	bus := NewBus()
	transport := NewTransport(bus, cfg.now)
	sched := newScheduler(transport, bus, voice)

	e := &Engine{
		transport: transport,
		bus:       bus,
		sched:     sched,
		driver:    cfg.driver,
	}
	e.driver.Run(sched.cycle)
	return e
}

// Start begins a session with the given spec. Fails with
// ErrInvalidTempoSpec or ErrInvalidTransition.
func (e *Engine) Start(spec TempoSpec) error { return e.transport.Start(spec) }

// Pause freezes the tick grid.
func (e *Engine) Pause() error { return e.transport.Pause() }

// Resume re-anchors the grid so the next tick lands one interval after
// the resume instant.
func (e *Engine) Resume() error { return e.transport.Resume() }

// Stop ends the session. Effective for all future ticks; a click
// already triggered this cycle is not recalled.
func (e *Engine) Stop() error { return e.transport.Stop() }

// SetTempo atomically swaps the tempo spec, effective at the next tick
// boundary.
func (e *Engine) SetTempo(spec TempoSpec) error { return e.transport.SetTempo(spec) }

// Phase returns the current transport phase.
func (e *Engine) Phase() Phase { return e.transport.Phase() }

// Spec returns the tempo spec currently in force.
func (e *Engine) Spec() TempoSpec { return e.transport.Spec() }

// Elapsed returns accumulated playback time for the current session.
func (e *Engine) Elapsed() time.Duration { return e.transport.Elapsed() }

// Subscribe attaches an observer with the given queue depth (0 for the
// default). Slow observers lose their oldest events, never the engine's
// time.
func (e *Engine) Subscribe(buffer int) *Subscription { return e.bus.Subscribe(buffer) }

// Stats reports scheduler counters for the current session.
func (e *Engine) Stats() Stats { return e.sched.stats() }

// Close stops the session if one is active and shuts down the driver.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		if p := e.transport.Phase(); p == Running || p == Paused {
			_ = e.transport.Stop()
		}
		e.driver.Stop()
	})
}
