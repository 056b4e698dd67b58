// Package config holds omni's process-wide settings: where ENVCACHE and
// per-tool installs live on disk, SQLite and SYNCOP timeouts, and history
// retention knobs. This is distinct from the project manifest (internal/up
// parses that); Settings describes the operator's machine, not one project.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/ini.v1"
)

// Settings holds all omni process configuration.
type Settings struct {
	// DataHome is the root of all persisted state: <data_home>/cache.db,
	// <data_home>/<tool>/<version>/, <data_home>/dynenv/<lockfile>, etc.
	DataHome string

	// SQLiteBusyTimeout bounds how long a writer waits on another process's
	// transaction before giving up (maps to PRAGMA busy_timeout).
	SQLiteBusyTimeout time.Duration

	// AttachKillTimeout is how long SYNCOP waits for progress activity from
	// a holder before offering to kill it (spec.md §4.4).
	AttachKillTimeout time.Duration

	// LockPollInterval is the fallback poll period while waiting on a
	// SYNCOP lock or attach stream (spec.md §5: "100 ms").
	LockPollInterval time.Duration

	// CleanupAfter is the minimum idle duration (no RequiredBy reference)
	// before an Installed* row is eligible for physical removal.
	CleanupAfter time.Duration

	// MaxPerWorkdir and MaxTotal bound EnvHistory ring size (spec.md §3.7).
	MaxPerWorkdir int
	MaxTotal      int

	// Retention prunes closed history entries older than this age.
	Retention time.Duration

	// VersionCacheTTL bounds how long a resolved "latest"/range lookup is
	// trusted before re-querying the backend (spec.md §4.2).
	VersionCacheTTL time.Duration

	// AllowPrerelease/AllowBuild/AllowPrefix are the default gates applied
	// to "latest"/"*" and range matching unless a backend overrides them.
	AllowPrerelease bool
	AllowBuild      bool
	AllowPrefix     bool

	// Debug enables verbose logging to debug.log regardless of command.
	Debug bool

	// NoColor forces plain-text error rendering even on a terminal.
	NoColor bool
}

// Default returns Settings populated with omni's built-in defaults, mirroring
// the teacher's LoadConfig default block.
func Default() *Settings {
	return &Settings{
		DataHome:          defaultDataHome(),
		SQLiteBusyTimeout: 5 * time.Second,
		AttachKillTimeout: 30 * time.Second,
		LockPollInterval:  100 * time.Millisecond,
		CleanupAfter:      30 * 24 * time.Hour,
		MaxPerWorkdir:     50,
		MaxTotal:          5000,
		Retention:         180 * 24 * time.Hour,
		VersionCacheTTL:   1 * time.Hour,
		AllowPrerelease:   false,
		AllowBuild:        false,
		AllowPrefix:       true,
	}
}

// defaultDataHome resolves <data_home>: OMNI_DATA_HOME if set, otherwise
// the XDG data directory for "omni".
func defaultDataHome() string {
	if v := os.Getenv("OMNI_DATA_HOME"); v != "" {
		return v
	}
	return filepath.Join(xdg.DataHome, "omni")
}

// Load builds Settings by starting from Default() and layering a host-local
// omni.ini, if present, on top. omni.ini holds operator overrides (not the
// project manifest, which internal/up parses separately).
//
// The ini file is $OMNI_CONFIG_HOME/omni.ini when OMNI_CONFIG_HOME is set,
// otherwise <data_home>/omni.ini; the other location is not consulted. A
// missing file is not an error.
func Load() (*Settings, error) {
	s := Default()

	path := os.Getenv("OMNI_CONFIG_HOME")
	if path != "" {
		path = filepath.Join(path, "omni.ini")
	} else {
		path = filepath.Join(s.DataHome, "omni.ini")
	}

	if _, err := os.Stat(path); err != nil {
		return s, nil
	}

	cfg, err := ini.Load(path)
	if err != nil {
		return nil, err
	}

	sec := cfg.Section("")
	if v := sec.Key("data_home").String(); v != "" {
		s.DataHome = v
	}
	if v, err := sec.Key("sqlite_busy_timeout_ms").Int(); err == nil && v > 0 {
		s.SQLiteBusyTimeout = time.Duration(v) * time.Millisecond
	}
	if v, err := sec.Key("attach_kill_timeout_s").Int(); err == nil && v > 0 {
		s.AttachKillTimeout = time.Duration(v) * time.Second
	}
	if v, err := sec.Key("cleanup_after_h").Int(); err == nil && v > 0 {
		s.CleanupAfter = time.Duration(v) * time.Hour
	}
	if v, err := sec.Key("max_per_workdir").Int(); err == nil && v > 0 {
		s.MaxPerWorkdir = v
	}
	if v, err := sec.Key("max_total").Int(); err == nil && v > 0 {
		s.MaxTotal = v
	}
	if v, err := sec.Key("retention_h").Int(); err == nil && v > 0 {
		s.Retention = time.Duration(v) * time.Hour
	}
	if v, err := sec.Key("version_cache_ttl_s").Int(); err == nil && v > 0 {
		s.VersionCacheTTL = time.Duration(v) * time.Second
	}
	if v, err := sec.Key("debug").Bool(); err == nil {
		s.Debug = v
	}
	if v, err := sec.Key("no_color").Bool(); err == nil {
		s.NoColor = v
	}
	return s, nil
}

// CacheDBPath is the fixed location of the ENVCACHE SQLite file under
// DataHome (spec.md §6 persisted state layout: "<data_home>/cache.db").
func (s *Settings) CacheDBPath() string {
	return filepath.Join(s.DataHome, "cache.db")
}

// ToolInstallDir is "<data_home>/<tool>/<version>/...".
func (s *Settings) ToolInstallDir(tool, version string) string {
	return filepath.Join(s.DataHome, tool, version)
}

// PackagesDir is "<data_home>/packages/<host>/<org>/<repo>", used by
// package-mode clones external to ENVCACHE's own bookkeeping.
func (s *Settings) PackagesDir(host, org, repo string) string {
	return filepath.Join(s.DataHome, "packages", host, org, repo)
}

// WorkdirDataDir is "<data_home>/<workdir-data>/..." for a given workdir id,
// holding per-work-directory private data (venvs, GOPATHs, ...).
func (s *Settings) WorkdirDataDir(workdirID string) string {
	return filepath.Join(s.DataHome, "workdir-data", sanitizeID(workdirID))
}

// LockPath is "<data_home>/dynenv/<lockfile>" for a given workdir's SYNCOP
// lock-and-log file.
func (s *Settings) LockPath(workdirID string) string {
	return filepath.Join(s.DataHome, "dynenv", sanitizeID(workdirID)+".lock")
}

// sanitizeID replaces path separators in a workdir id (e.g.
// "github.com:acme/widget") with a filesystem-safe separator so it can be
// used as a single path component.
func sanitizeID(id string) string {
	out := make([]rune, 0, len(id))
	for _, r := range id {
		switch r {
		case '/', '\\', ':':
			out = append(out, '_')
		default:
			out = append(out, r)
		}
	}
	return string(out)
}

// ParseIntDefault parses s as an int, returning def on any failure.
func ParseIntDefault(s string, def int) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
