package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"clave/audio"
	"clave/click"
	"clave/config"
	"clave/log"
	"clave/metronome"
	"clave/midiclock"
)

var version = "dev"

func main() {
	bpm := flag.Float64("bpm", 0, "tempo in beats per minute (20-400)")
	beats := flag.Int("beats", 0, "beats per bar (1-32)")
	sub := flag.Int("sub", 0, "ticks per beat: 1=quarter 2=eighth 3=triplet 4=sixteenth")
	accents := flag.String("accents", "", "accent pattern, one char per beat, e.g. x..x")
	deviceFlag := flag.String("device", "", "output device name substring, 'list' or 'pick'")
	midiPort := flag.String("midiport", "", "MIDI output port for the click, or 'list'")
	silent := flag.Bool("silent", false, "no audio, visual ticking only")
	headless := flag.Bool("headless", false, "print ticks to stdout instead of the TUI")
	dur := flag.Duration("dur", 0, "stop after this long (headless mode)")
	logPath := flag.String("logpath", "", "log directory (default: OS log location)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("clave %s\n", version)
		return
	}

	logDir, err := log.ResolveDir(*logPath)
	if err == nil {
		log.SetDir(logDir)
		if err := log.Init(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
		}
	}
	defer log.Close()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: bad config, using defaults: %v\n", err)
		cfg = config.DefaultConfig()
	}

	spec, err := buildSpec(cfg, *bpm, *beats, *sub, *accents)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *midiPort == "list" {
		for _, name := range midiclock.Ports() {
			fmt.Println(name)
		}
		return
	}

	voice, cleanup, err := setupVoice(*silent, *deviceFlag, cfg)
	if errors.Is(err, errDevicesListed) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		log.Close()
		os.Exit(1)
	}
	defer cleanup()

	engine := metronome.New(voice)
	defer engine.Close()

	var sink *midiclock.Sink
	if *midiPort != "" {
		sink, err = midiclock.Open(*midiPort)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
			log.Warnf("midi sink unavailable: %v", err)
		} else {
			midiSub := engine.Subscribe(0)
			go sink.Run(midiSub)
			defer func() {
				sink.Close()
				midiSub.Close()
			}()
			cfg.MIDIPort = *midiPort
		}
	}

	log.SessionStart(spec.BPM, spec.BeatsPerBar, spec.Subdivision)

	if *headless {
		runHeadless(engine, spec, *dur)
	} else {
		if err := runTUI(engine, spec); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	final := engine.Spec()
	cfg.Tempo = config.TempoConfig{
		BPM:         final.BPM,
		BeatsPerBar: final.BeatsPerBar,
		Subdivision: final.Subdivision,
		Accents:     final.Accents,
	}
	if err := cfg.Save(); err != nil {
		log.Warnf("saving config: %v", err)
	}

	st := engine.Stats()
	log.SessionEnd(log.SessionStats{
		Ticks:      st.Ticks,
		Notices:    st.Notices,
		MaxDriftMs: float64(st.MaxDrift) / float64(time.Millisecond),
		ElapsedS:   engine.Elapsed().Seconds(),
	})
}

// buildSpec merges flag overrides onto the saved config and validates.
func buildSpec(cfg *config.Config, bpm float64, beats, sub int, accents string) (metronome.TempoSpec, error) {
	spec := metronome.TempoSpec{
		BPM:         cfg.Tempo.BPM,
		BeatsPerBar: cfg.Tempo.BeatsPerBar,
		Subdivision: cfg.Tempo.Subdivision,
		Accents:     cfg.Tempo.Accents,
	}
	if spec.BPM == 0 {
		spec = metronome.DefaultSpec()
	}
	if bpm != 0 {
		spec.BPM = bpm
	}
	if beats != 0 {
		spec.BeatsPerBar = beats
		spec.Accents = resizeAccents(spec.Accents, beats)
	}
	if sub != 0 {
		spec.Subdivision = sub
	}
	if accents != "" {
		parsed, err := parseAccents(accents, spec.BeatsPerBar)
		if err != nil {
			return spec, err
		}
		spec.Accents = parsed
	}
	if len(spec.Accents) != spec.BeatsPerBar {
		spec.Accents = resizeAccents(spec.Accents, spec.BeatsPerBar)
	}
	return spec, spec.Validate()
}

// parseAccents reads a one-char-per-beat pattern: 'x', 'X' or '>' mark
// an accent, '.', '-' or 'o' a plain beat.
func parseAccents(pattern string, beats int) ([]bool, error) {
	if len(pattern) != beats {
		return nil, fmt.Errorf("accent pattern %q has %d chars, need %d (one per beat)", pattern, len(pattern), beats)
	}
	out := make([]bool, beats)
	for i, c := range pattern {
		switch c {
		case 'x', 'X', '>':
			out[i] = true
		case '.', '-', 'o':
		default:
			return nil, fmt.Errorf("accent pattern %q: unknown char %q", pattern, c)
		}
	}
	return out, nil
}

// resizeAccents grows or shrinks a pattern, keeping the first beat
// accented when growing from nothing.
func resizeAccents(accents []bool, beats int) []bool {
	out := make([]bool, beats)
	n := copy(out, accents)
	if n == 0 && beats > 0 {
		out[0] = true
	}
	return out
}

// errDevicesListed signals that -device list printed its output and the
// program should exit cleanly, letting deferred cleanup run.
var errDevicesListed = errors.New("device list printed")

// setupVoice opens the audio backend, falling back to a disabled voice
// so the engine still ticks visually when audio cannot come up. The
// only hard failure is a device request that cannot be resolved.
func setupVoice(silent bool, deviceFlag string, cfg *config.Config) (metronome.Voice, func(), error) {
	if silent {
		return metronome.NullVoice{}, func() {}, nil
	}

	ctx, err := audio.NewContext()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: audio unavailable, ticking silently: %v\n", err)
		log.Warnf("audio context: %v", err)
		return click.Disabled(err), func() {}, nil
	}

	dev, err := pickDevice(ctx, deviceFlag, cfg)
	if err != nil {
		ctx.Close()
		return nil, nil, err
	}

	voice, err := click.NewVoice(ctx, dev)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: click voice unavailable, ticking silently: %v\n", err)
		log.Warnf("click voice: %v", err)
		ctx.Close()
		return click.Disabled(err), func() {}, nil
	}
	if dev != nil {
		cfg.OutputName = dev.Name
	}
	cleanup := func() {
		voice.Close()
		ctx.Close()
	}
	return voice, cleanup, nil
}

// pickDevice resolves the -device flag: empty uses the saved or default
// device, "list" prints the devices and reports errDevicesListed,
// "pick" opens the selector, anything else matches on name substring.
func pickDevice(ctx audio.Context, deviceFlag string, cfg *config.Config) (*audio.DeviceInfo, error) {
	switch deviceFlag {
	case "":
		if cfg.OutputName == "" {
			return nil, nil // system default
		}
		return matchDevice(ctx, cfg.OutputName)
	case "list":
		devices, err := ctx.Devices()
		if err != nil {
			return nil, err
		}
		for _, d := range devices {
			fmt.Println(d.Name)
		}
		return nil, errDevicesListed
	case "pick":
		return selectOutputDevice(ctx)
	default:
		return matchDevice(ctx, deviceFlag)
	}
}

func matchDevice(ctx audio.Context, name string) (*audio.DeviceInfo, error) {
	devices, err := ctx.Devices()
	if err != nil {
		return nil, err
	}
	want := strings.ToLower(name)
	for i, d := range devices {
		if strings.Contains(strings.ToLower(d.Name), want) {
			return &devices[i], nil
		}
	}
	// Saved device may be unplugged; fall back to the default quietly.
	log.Warnf("no output device matching %q, using default", name)
	return nil, nil
}

// logNotice writes an engine notice to the diagnostics log. Runs on
// the consuming side of the bus, never inside the scheduler cycle.
func logNotice(n metronome.Notice) {
	switch n.Kind {
	case metronome.MissedDeadline:
		log.MissedDeadline(n.Drift, n.Skipped)
	case metronome.AudioUnavailable:
		log.AudioUnavailable(n.Err)
	}
}

// runHeadless prints one line per tick until the duration elapses or
// the process is interrupted.
func runHeadless(engine *metronome.Engine, spec metronome.TempoSpec, dur time.Duration) {
	sub := engine.Subscribe(0)
	defer sub.Close()

	if err := engine.Start(spec); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	var timeout <-chan time.Time
	if dur > 0 {
		timeout = time.After(dur)
	}

	for {
		select {
		case ev := <-sub.C():
			switch e := ev.(type) {
			case metronome.TickEvent:
				mark := "."
				if e.Accented {
					mark = ">"
				}
				fmt.Printf("%s beat %d.%d seq %d\n", mark, e.Beat+1, e.Sub+1, e.Seq)
			case metronome.Notice:
				fmt.Fprintf(os.Stderr, "notice: %s\n", e.Kind)
				logNotice(e)
			}
		case <-sig:
			_ = engine.Stop()
			return
		case <-timeout:
			_ = engine.Stop()
			return
		}
	}
}
