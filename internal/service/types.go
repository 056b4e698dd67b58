package service

import (
	"time"

	"omni/internal/envcache"
)

// UpOptions carries the caller's request for one `up` invocation.
type UpOptions struct {
	// WorkdirPath is the project root to resolve, lock, and materialize an
	// environment for. Defaults to the process's current directory when
	// empty.
	WorkdirPath string

	// Force marks this invocation as not eligible to share a running
	// holder's cached resolution: it is compared as part of SYNCOP's Init
	// invariant (spec.md §4.4), so an attacher wanting a forced re-resolve
	// never silently reuses a plain holder's result.
	Force bool

	// KillConfirm is asked whether to SIGKILL a holder that has gone quiet
	// past the configured attach-kill timeout, when this invocation ends up
	// attaching to another process's run instead of holding the lock
	// itself (spec.md §4.4). A nil KillConfirm means never offer to kill.
	KillConfirm func(pid int) bool
}

// UpResult is the outcome of Up: whether a new EnvVersion was computed and
// its identifier, ready for a caller to pass to dynenv.Diff.
type UpResult struct {
	envcache.AssignResult
	WorkdirID string
	// Attached reports whether this invocation replayed another process's
	// run rather than holding the lock itself (spec.md §4.4).
	Attached bool
}

// DownOptions carries the caller's request for one `down` invocation.
type DownOptions struct {
	WorkdirPath string
}

// DownResult reports what Down did.
type DownResult struct {
	WorkdirID string
	Cleared   bool
}

// StatusOptions carries the caller's request for a `status` query.
type StatusOptions struct {
	WorkdirPath string
}

// StatusResult reports a work directory's currently-assigned environment,
// or nil Env if none has been assigned yet.
type StatusResult struct {
	WorkdirID string
	Env       *envcache.EnvVersion
}

// CleanupOptions carries the caller's request for a maintenance pass.
type CleanupOptions struct {
	// CleanupAfter overrides config.Settings.CleanupAfter for this run, or
	// zero to use the service's configured default.
	CleanupAfter time.Duration
}

// CleanupResult reports what Cleanup physically removed.
type CleanupResult struct {
	Removed []envcache.InstalledArtifact
	Errors  []error
}
