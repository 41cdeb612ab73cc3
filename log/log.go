package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	diagLog  zerolog.Logger
	diagFile *os.File
	logMu    sync.Mutex
	logReady bool
	pid      int
	dir      string

	audioFailures int
)

func ResolveDir(flagPath string) (string, error) {
	// Priority 1: -logpath flag
	if flagPath != "" {
		if !filepath.IsAbs(flagPath) {
			wd, err := os.Getwd()
			if err != nil {
				return "", err
			}
			return filepath.Join(wd, flagPath), nil
		}
		return flagPath, nil
	}

	// Priority 2: CLAVE_LOG_PATH environment variable
	envPath := os.Getenv("CLAVE_LOG_PATH")
	if envPath != "" {
		if !filepath.IsAbs(envPath) {
			wd, err := os.Getwd()
			if err != nil {
				return "", err
			}
			return filepath.Join(wd, envPath), nil
		}
		return envPath, nil
	}

	// Priority 3: Default OS-specific location
	return getDefaultDir()
}

func SetDir(d string) {
	dir = d
}

func Dir() string {
	return dir
}

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

func Init() error {
	logMu.Lock()
	defer logMu.Unlock()

	if err := EnsureDir(); err != nil {
		return err
	}

	pid = os.Getpid()

	var err error
	diagPath := filepath.Join(dir, "diagnostics_log.txt")
	diagFile, err = os.OpenFile(diagPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        diagFile,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}
	diagLog = zerolog.New(consoleWriter).With().Timestamp().Int("pid", pid).Logger()

	logReady = true
	return nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if diagFile != nil {
		diagFile.Close()
		diagFile = nil
	}
	logReady = false
	audioFailures = 0
}

func Info(msg string) {
	if logReady {
		diagLog.Info().Msg(msg)
	}
}

func Error(msg string) {
	if logReady {
		diagLog.Error().Msg(msg)
	}
}

func Errorf(format string, args ...any) {
	if logReady {
		diagLog.Error().Msg(fmt.Sprintf(format, args...))
	}
}

func Warn(msg string) {
	if logReady {
		diagLog.Warn().Msg(msg)
	}
}

func Warnf(format string, args ...any) {
	if logReady {
		diagLog.Warn().Msg(fmt.Sprintf(format, args...))
	}
}

// SessionStart records the tempo parameters a session begins with.
func SessionStart(bpm float64, beatsPerBar, subdivision int) {
	if !logReady {
		return
	}
	diagLog.Info().
		Float64("bpm", bpm).
		Int("beats_per_bar", beatsPerBar).
		Int("subdivision", subdivision).
		Msg("session_start")
}

// SessionStats summarizes a session on stop or exit.
type SessionStats struct {
	Ticks      uint64
	Notices    uint64
	Dropped    uint64
	MaxDriftMs float64
	ElapsedS   float64
}

func SessionEnd(s SessionStats) {
	if !logReady {
		return
	}
	diagLog.Info().
		Uint64("ticks", s.Ticks).
		Uint64("notices", s.Notices).
		Uint64("dropped", s.Dropped).
		Float64("max_drift_ms", s.MaxDriftMs).
		Float64("elapsed_s", s.ElapsedS).
		Msg("session_end")
}

// Transition records a transport state change.
func Transition(phase, spec string) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("phase", phase).
		Str("spec", spec).
		Msg("transport")
}

// MissedDeadline records a drift re-sync.
func MissedDeadline(drift time.Duration, skipped int) {
	if !logReady {
		return
	}
	diagLog.Warn().
		Float64("drift_ms", float64(drift)/float64(time.Millisecond)).
		Int("skipped_slots", skipped).
		Msg("missed_deadline")
}

// AudioUnavailable records a click backend failure. Failures arrive at
// tick rate while the backend is down, so only the first and every
// 100th are written.
func AudioUnavailable(err error) {
	if !logReady {
		return
	}
	logMu.Lock()
	audioFailures++
	n := audioFailures
	logMu.Unlock()
	if n != 1 && n%100 != 0 {
		return
	}
	diagLog.Warn().
		Int("failures", n).
		Err(err).
		Msg("audio_unavailable")
}
