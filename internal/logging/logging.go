// Package logging provides omni's multi-sink logger: one long-lived handle
// opened once per process, writing to several named files under
// <data_home>/logs (spec.md §6 persisted state layout), safe for concurrent
// use by ENVCACHE, the UP executor, and SYNCOP's arbiter.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	charmlog "github.com/charmbracelet/log"
)

// Logger is a minimal interface library packages depend on, so ENVCACHE,
// internal/up, and internal/syncop stay usable outside the CLI (tests,
// future service embedding) without pulling in file-sink concerns.
type Logger interface {
	Info(format string, args ...any)
	Debug(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// NoOpLogger discards every message. Used by library-mode callers and tests
// that don't care about log output.
type NoOpLogger struct{}

func (NoOpLogger) Info(format string, args ...any)  {}
func (NoOpLogger) Debug(format string, args ...any) {}
func (NoOpLogger) Warn(format string, args ...any)  {}
func (NoOpLogger) Error(format string, args ...any) {}

// sink pairs a charmbracelet/log logger with the file backing it, so Close
// can flush and release the descriptor.
type sink struct {
	log  *charmlog.Logger
	file *os.File
}

// MultiLogger fans a single call out to omni's four log files:
//
//   - up.log       one line per backend resolve/install/commit step
//   - history.log  one line per EnvHistory transition
//   - arbiter.log  SYNCOP holder/attacher lifecycle
//   - debug.log    everything the other three get, plus every level of log line
//
// Info/Debug/Warn/Error write to debug.log always; callers that want a
// line to also land in a specific sink use the named methods (Up, History,
// Arbiter) instead.
type MultiLogger struct {
	mu    sync.Mutex
	up    sink
	hist  sink
	arb   sink
	debug sink
}

// Open creates dir (if absent) and opens all four log files for appending,
// mirroring the teacher's log.NewLogger startup sequence.
func Open(dir string) (*MultiLogger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("logging: create log directory %s: %w", dir, err)
	}

	l := &MultiLogger{}
	var err error
	if l.up, err = openSink(dir, "up.log"); err != nil {
		return nil, err
	}
	if l.hist, err = openSink(dir, "history.log"); err != nil {
		l.up.file.Close()
		return nil, err
	}
	if l.arb, err = openSink(dir, "arbiter.log"); err != nil {
		l.up.file.Close()
		l.hist.file.Close()
		return nil, err
	}
	if l.debug, err = openSink(dir, "debug.log"); err != nil {
		l.up.file.Close()
		l.hist.file.Close()
		l.arb.file.Close()
		return nil, err
	}
	return l, nil
}

func openSink(dir, name string) (sink, error) {
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return sink{}, fmt.Errorf("logging: open %s: %w", name, err)
	}
	return sink{log: charmlog.NewWithOptions(f, charmlog.Options{ReportTimestamp: true, Level: charmlog.DebugLevel}), file: f}, nil
}

// Up logs one backend resolve/install/commit step.
func (l *MultiLogger) Up(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.up.log.Infof(format, args...)
	l.debug.log.Infof(format, args...)
}

// History logs one EnvHistory transition.
func (l *MultiLogger) History(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hist.log.Infof(format, args...)
	l.debug.log.Infof(format, args...)
}

// Arbiter logs one SYNCOP holder/attacher lifecycle event.
func (l *MultiLogger) Arbiter(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.arb.log.Infof(format, args...)
	l.debug.log.Infof(format, args...)
}

func (l *MultiLogger) Info(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.debug.log.Infof(format, args...)
}

func (l *MultiLogger) Debug(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.debug.log.Debugf(format, args...)
}

func (l *MultiLogger) Warn(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.debug.log.Warnf(format, args...)
}

func (l *MultiLogger) Error(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.debug.log.Errorf(format, args...)
}

// Close flushes and releases all four file descriptors.
func (l *MultiLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var firstErr error
	for _, s := range []sink{l.up, l.hist, l.arb, l.debug} {
		if err := s.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
