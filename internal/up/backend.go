package up

import (
	"context"

	"omni/internal/envcache"
)

// Progress is the subset of syncop.ProgressSink a backend needs: it never
// touches file locks or replay logic directly, only reports increments.
type Progress interface {
	Progress(handlerID string, stepIndex, stepTotal int, label string, fraction float64)
	Info(msg string)
	Warning(msg string)
	Error(msg string)
}

// Options carries the process-wide settings and workdir context a backend
// needs to resolve, install, and contribute to the environment. It is the
// Go-shaped equivalent of the Rust original's per-backend Options struct.
type Options struct {
	WorkdirID   string
	WorkdirPath string
	// WorkdirDataDir is "<data_home>/workdir-data/<sanitized workdir id>",
	// precomputed by the caller (internal/config.Settings.WorkdirDataDir)
	// so this package never needs to import internal/config.
	WorkdirDataDir string
	DataHome       string
	HeadSHA        string

	AllowPrerelease bool
	AllowBuild      bool
	AllowPrefix     bool
	VersionCacheTTL int64 // seconds; 0 disables the cache
	Cache           VersionCache

	Logger Logger
}

// Logger is the narrow logging surface backends use; satisfied by both
// internal/logging.Logger and internal/logging.NoOpLogger.
type Logger interface {
	Info(format string, args ...any)
	Debug(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Backend is the capability set every up: step kind implements (spec.md
// §4.2). Configure is called once per manifest parse; Up/Commit/Down run
// per invocation.
type Backend interface {
	// Configure performs pure construction from the step's manifest node,
	// reporting structured parse errors (errs.ConfigError) rather than
	// panicking on a malformed step.
	Configure(step StepNode) error

	// Up resolves a concrete version, installs it if not already present,
	// and mutates builder with its PATH/env/version contribution. Must be
	// idempotent: running Up twice against already-satisfied state is a
	// no-op beyond re-verifying the install is intact.
	Up(ctx context.Context, opts Options, builder *envcache.Builder, progress Progress) error

	// Commit records RequiredBy rows tying this backend's installs to the
	// just-assigned EnvVersion. Called only after every backend's Up has
	// succeeded and ENVCACHE.AssignEnvironment has returned envVersionID.
	Commit(ctx context.Context, db RequiredByRecorder, envVersionID string) error

	// Down removes this backend's per-workdir annotations. It never
	// physically uninstalls anything (that's ENVCACHE.Cleanup's job).
	Down(ctx context.Context, progress Progress) error

	// WasUpped reports whether Up has successfully run for this backend
	// instance in the current process.
	WasUpped() bool

	// DataPaths lists directories this backend's installs materialized,
	// for diagnostics (`omni status`) and the cleanup callback.
	DataPaths() []string
}

// RequiredByRecorder is the narrow slice of *envcache.DB a backend's Commit
// needs, kept as an interface so backend packages don't have to construct
// a real DB in unit tests.
type RequiredByRecorder interface {
	AddInstalled(ctx context.Context, backend, installKey, version string) (bool, error)
	AddRequiredBy(ctx context.Context, envVersionID, backend, installKey, version string) (bool, error)
}
