package syncop

import (
	"context"
	"os"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"omni/internal/errs"
)

// ProgressSink is what an Attacher replays records against. internal/up's
// ProgressHandler tree implements it, but syncop stays independent of the
// up package so the attach protocol can be tested without a real executor.
type ProgressSink interface {
	Progress(ProgressPayload)
	Info(string)
	Warning(string)
	Error(string)
}

// Attacher is a process that found the work directory's lock already held
// and is replaying the holder's progress instead of running the operation
// itself.
type Attacher struct {
	path            string
	fl              *flock.Flock
	file            *os.File
	scanner         *recordScanner
	pollInterval    time.Duration
	attachKillAfter time.Duration

	init    *InitPayload
	initErr error
}

// Attach opens path for reading and parses its Init record. Callers compare
// the returned Init against their own expected operation before calling
// Wait (spec.md §4.4 "Init compatibility").
func Attach(path string, pollInterval, attachKillAfter time.Duration) (*Attacher, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &errs.IOError{Code: "U103", Path: path, Op: "open", Err: err}
	}

	a := &Attacher{
		path:            path,
		fl:              flock.New(path),
		file:            f,
		scanner:         newRecordScanner(f),
		pollInterval:    pollInterval,
		attachKillAfter: attachKillAfter,
	}

	init, err := a.waitForInit()
	a.init = init
	a.initErr = err
	return a, err
}

// Init returns the holder's Init record, read during Attach.
func (a *Attacher) Init() *InitPayload { return a.init }

func (a *Attacher) waitForInit() (*InitPayload, error) {
	for {
		rec, ok, err := a.scanner.Next()
		if err != nil {
			return nil, err
		}
		if ok {
			if rec.Kind != KindInit || rec.Init == nil {
				return nil, &errs.ArbiterError{Code: "U202", WorkDir: a.path, Op: "attach", Err: errBadFirstRecord}
			}
			return rec.Init, nil
		}
		time.Sleep(a.pollInterval)
	}
}

var errBadFirstRecord = errArbiter("lock file's first record was not Init")

type errArbiter string

func (e errArbiter) Error() string { return string(e) }

// Wait replays records from the lock file against sink until the holder's
// Exit record appears or ctx is cancelled. If no new bytes appear for
// longer than attachKillAfter, killConfirm is invoked; if it returns true,
// the holder's pid is sent SIGKILL and Wait proceeds to wait out its exit.
func (a *Attacher) Wait(ctx context.Context, sink ProgressSink, killConfirm func(pid int) bool) (exitCode int, err error) {
	lastActivity := time.Now()

	for {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		default:
		}

		rec, ok, err := a.scanner.Next()
		if err != nil {
			return 0, err
		}
		if ok {
			lastActivity = time.Now()
			switch rec.Kind {
			case KindProgress:
				if rec.Progress != nil {
					sink.Progress(*rec.Progress)
				}
			case KindInfo:
				sink.Info(rec.Message)
			case KindWarning:
				sink.Warning(rec.Message)
			case KindError:
				sink.Error(rec.Message)
			case KindExit:
				code := 0
				if rec.Exit != nil {
					code = rec.Exit.Code
				}
				return code, nil
			}
			continue
		}

		if a.attachKillAfter > 0 && time.Since(lastActivity) > a.attachKillAfter {
			if killConfirm != nil && killConfirm(a.init.PID) {
				_ = syscall.Kill(a.init.PID, syscall.SIGKILL)
			}
			lastActivity = time.Now() // avoid re-prompting every poll tick
		}

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(a.pollInterval):
		}
	}
}

// WaitLockReleased blocks until the holder's exclusive lock is released,
// i.e. the process really has exited (the Exit record alone doesn't
// guarantee the fd is closed yet). Call after Wait returns.
func (a *Attacher) WaitLockReleased(ctx context.Context) error {
	return waitLocked(ctx, a.fl, a.pollInterval)
}

// Close releases resources held by the attacher (its read handle and, if
// it ended up acquiring the lock via WaitLockReleased, that lock too).
func (a *Attacher) Close() error {
	a.fl.Unlock()
	return a.file.Close()
}
