package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"omni/internal/envcache"
	"omni/internal/errs"
	"omni/internal/syncop"
	"omni/internal/up"
	"omni/internal/workdir"
)

// Up materializes the environment opts.WorkdirPath's manifest describes,
// implementing the control flow spec.md §4.4 calls "a typical `up`
// invocation": resolve the workdir id, acquire (or attach to) the SYNCOP
// lock, read the manifest, drive the UP executor, and commit the result
// through ENVCACHE.
//
// progress receives every step increment when this invocation ends up
// holding the lock itself. When it attaches to another process's run
// instead, progress is driven by replaying that holder's records rather
// than by a real Executor run in this process.
func (s *Service) Up(ctx context.Context, opts UpOptions, progress up.Progress) (*UpResult, error) {
	dir := opts.WorkdirPath
	if dir == "" {
		dir = "."
	}

	id, err := workdir.Resolve(dir)
	if err != nil {
		return nil, &errs.IOError{Code: "U150", Path: dir, Op: "resolve-workdir", Err: err}
	}
	workdirID := string(id)

	manifestPath := filepath.Join(dir, up.ManifestFileName)
	manifestData, modtime, err := readManifest(manifestPath)
	if err != nil {
		return nil, err
	}

	var headSHA *string
	if sha, ok := workdir.HeadSHA(dir); ok {
		headSHA = &sha
	}

	lockPath := s.cfg.LockPath(workdirID)
	holder, isHolder, err := syncop.Acquire(lockPath)
	if err != nil {
		return nil, err
	}

	wantInit := syncop.InitPayload{Op: "up", Commit: derefOrEmpty(headSHA), PID: os.Getpid(), Cache: !opts.Force}

	if isHolder {
		return s.runAsHolder(ctx, holder, wantInit, workdirID, dir, manifestPath, manifestData, modtime, headSHA, progress)
	}
	return s.attachToUp(ctx, lockPath, wantInit, workdirID, opts, progress)
}

func (s *Service) runAsHolder(ctx context.Context, holder *syncop.Holder, init syncop.InitPayload, workdirID, dir, manifestPath string, manifestData []byte, modtime time.Time, headSHA *string, progress up.Progress) (*UpResult, error) {
	if err := holder.WriteInit(init); err != nil {
		s.logger.Arbiter("up %s: write init failed: %v", workdirID, err)
	}

	sink := &up.HolderSink{Holder: holder, Logger: s.logger}
	var reportTo up.Progress = sink
	if progress != nil {
		reportTo = &teeProgress{a: sink, b: progress}
	}

	opts := up.Options{
		WorkdirID:       workdirID,
		WorkdirPath:     dir,
		WorkdirDataDir:  s.cfg.WorkdirDataDir(workdirID),
		DataHome:        s.cfg.DataHome,
		HeadSHA:         derefOrEmpty(headSHA),
		AllowPrerelease: s.cfg.AllowPrerelease,
		AllowBuild:      s.cfg.AllowBuild,
		AllowPrefix:     s.cfg.AllowPrefix,
		VersionCacheTTL: int64(s.cfg.VersionCacheTTL.Seconds()),
		Cache:           s.db,
		Logger:          s.logger,
	}

	executor := &up.Executor{Store: s.db, Retention: s.retention()}
	result, runErr := executor.Run(ctx, manifestData, opts, headSHA, reportTo, map[string]time.Time{manifestPath: modtime})

	exitCode := 0
	if runErr != nil {
		exitCode = 1
		s.logger.Up("up %s failed: %v", workdirID, runErr)
	} else {
		s.logger.Up("up %s committed %s (new=%v replaced=%v)", workdirID, result.EnvVersionID, result.NewEnv, result.ReplacedEnv)
	}
	if err := holder.Exit(exitCode); err != nil {
		s.logger.Arbiter("up %s: write exit failed: %v", workdirID, err)
	}

	if runErr != nil {
		return nil, runErr
	}
	return &UpResult{AssignResult: result, WorkdirID: workdirID}, nil
}

func (s *Service) attachToUp(ctx context.Context, lockPath string, want syncop.InitPayload, workdirID string, opts UpOptions, progress up.Progress) (*UpResult, error) {
	attacher, err := syncop.Attach(lockPath, s.cfg.LockPollInterval, s.cfg.AttachKillTimeout)
	if err != nil {
		return nil, err
	}
	defer attacher.Close()

	if err := syncop.CheckCompatibility(*attacher.Init(), want); err != nil {
		return nil, err
	}

	sink := &attachProgressAdapter{to: progress}
	exitCode, err := attacher.Wait(ctx, sink, opts.KillConfirm)
	if err != nil {
		return nil, err
	}
	if err := syncop.MissingOptionsAfterExit(*attacher.Init(), want, exitCode); err != nil {
		return nil, err
	}
	if exitCode != 0 {
		return nil, &errs.ArbiterError{Code: "U205", WorkDir: workdirID, Op: "attach", Err: fmt.Errorf("holder exited %d", exitCode)}
	}

	if err := attacher.WaitLockReleased(ctx); err != nil {
		return nil, err
	}

	env, err := s.db.GetEnv(ctx, workdirID)
	if err != nil {
		return nil, err
	}
	result := envcache.AssignResult{NewEnv: false, ReplacedEnv: false}
	if env != nil {
		result.EnvVersionID = env.EnvVersionID
	}
	return &UpResult{AssignResult: result, WorkdirID: workdirID, Attached: true}, nil
}

// readManifest reads the project manifest at path, reporting a config
// error (not a bare IOError) when it's missing: an absent manifest is a
// user-facing configuration problem, not an internal I/O failure.
func readManifest(path string) ([]byte, time.Time, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, time.Time{}, &errs.ConfigError{Code: "C100", File: path, Err: fmt.Errorf("no %s found: %w", up.ManifestFileName, err)}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, time.Time{}, &errs.IOError{Code: "U151", Path: path, Op: "read", Err: err}
	}
	return data, fi.ModTime(), nil
}

func derefOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// teeProgress fans one backend's progress out to both the SYNCOP holder
// sink (so an attacher can replay it) and a caller-supplied sink (so the
// holder's own process can render it locally too).
type teeProgress struct {
	a, b up.Progress
}

func (t *teeProgress) Progress(handlerID string, stepIndex, stepTotal int, label string, fraction float64) {
	t.a.Progress(handlerID, stepIndex, stepTotal, label, fraction)
	t.b.Progress(handlerID, stepIndex, stepTotal, label, fraction)
}
func (t *teeProgress) Info(msg string)    { t.a.Info(msg); t.b.Info(msg) }
func (t *teeProgress) Warning(msg string) { t.a.Warning(msg); t.b.Warning(msg) }
func (t *teeProgress) Error(msg string)   { t.a.Error(msg); t.b.Error(msg) }

// attachProgressAdapter adapts a caller's up.Progress sink to the
// syncop.ProgressSink shape an Attacher replays records against.
type attachProgressAdapter struct {
	to up.Progress
}

func (a *attachProgressAdapter) Progress(p syncop.ProgressPayload) {
	if a.to != nil {
		a.to.Progress(p.HandlerID, p.StepIndex, p.StepTotal, p.Label, p.Fraction)
	}
}
func (a *attachProgressAdapter) Info(msg string) {
	if a.to != nil {
		a.to.Info(msg)
	}
}
func (a *attachProgressAdapter) Warning(msg string) {
	if a.to != nil {
		a.to.Warning(msg)
	}
}
func (a *attachProgressAdapter) Error(msg string) {
	if a.to != nil {
		a.to.Error(msg)
	}
}
