package up

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"time"

	"omni/internal/envcache"
	"omni/internal/errs"
)

// Store is the narrow slice of *envcache.DB the Executor needs: recording
// installs/RequiredBy rows (RequiredByRecorder), committing the final
// EnvVersion, and (for the config_hash/TTL fast path) reading back and
// re-pointing at the workdir's last-committed one. Kept as an interface so
// executor tests don't need a real sqlite-backed DB.
type Store interface {
	RequiredByRecorder
	AssignEnvironment(ctx context.Context, workdirID string, headSHA *string, b *envcache.Builder, cfg envcache.RetentionPolicy) (envcache.AssignResult, error)
	GetEnv(ctx context.Context, workdirID string) (*envcache.EnvVersion, error)
	AssignExisting(ctx context.Context, workdirID, envVersionID string, headSHA *string, cfg envcache.RetentionPolicy) (envcache.AssignResult, error)
}

// Executor runs one manifest's up: list end to end (spec.md §4.2): parse,
// drive each backend sequentially in declaration order, commit the result
// through ENVCACHE, then let each backend record its RequiredBy rows.
type Executor struct {
	Store     Store
	Retention envcache.RetentionPolicy
}

// Run implements the full up operation. manifestData is the raw manifest
// bytes (re-hashed here for config_hash); configModtimes is the caller-
// supplied {file: mtime} map for whichever config files contributed to this
// manifest (resolved upstream of internal/up, which only sees one already-
// merged document per SPEC_FULL.md §2.1).
//
// A backend failure aborts immediately: no EnvVersion is committed, no
// WorkdirEnv is updated, no history entry is written. Already-completed
// backends' installs remain in ENVCACHE, discoverable by a later cleanup
// pass (spec.md §4.2 "Failure semantics").
func (e *Executor) Run(ctx context.Context, manifestData []byte, opts Options, headSHA *string, progress Progress, configModtimes map[string]time.Time) (envcache.AssignResult, error) {
	manifest, err := ParseManifest(manifestData)
	if err != nil {
		return envcache.AssignResult{}, err
	}

	cfgHash := configHash(manifestData)
	if ttl := time.Duration(opts.VersionCacheTTL) * time.Second; ttl > 0 {
		if existing, err := e.Store.GetEnv(ctx, opts.WorkdirID); err == nil && existing != nil &&
			existing.ConfigHash == cfgHash && time.Since(existing.CreatedAt) < ttl {
			if progress != nil {
				progress.Info("manifest unchanged since last up within cache TTL; reusing resolved environment")
			}
			return e.Store.AssignExisting(ctx, opts.WorkdirID, existing.EnvVersionID, headSHA, e.Retention)
		}
	}

	backends := make([]Backend, len(manifest.Steps))
	for i, step := range manifest.Steps {
		b := NewBackend(step.Kind)
		if err := b.Configure(step); err != nil {
			return envcache.AssignResult{}, err
		}
		backends[i] = b
	}

	builder := envcache.NewBuilder()
	for _, b := range backends {
		if err := b.Up(ctx, opts, builder, progress); err != nil {
			return envcache.AssignResult{}, err
		}
	}

	builder.ConfigHash = configHash(manifestData)
	for f, t := range configModtimes {
		builder.ConfigModtimes[f] = t
	}

	result, err := e.Store.AssignEnvironment(ctx, opts.WorkdirID, headSHA, builder, e.Retention)
	if err != nil {
		return envcache.AssignResult{}, err
	}

	for _, b := range backends {
		if !b.WasUpped() {
			continue
		}
		if err := b.Commit(ctx, e.Store, result.EnvVersionID); err != nil {
			return result, err
		}
	}
	return result, nil
}

// Down removes the per-workdir data paths a previously-committed
// EnvVersion's UpVersions recorded (spec.md §4.2 "down(progress) → remove
// per-workdir annotations; does not physically uninstall"). It does not
// reconstruct backend instances: the persisted DataPath is sufficient to
// know what to remove, and physical artifact removal is ENVCACHE.Cleanup's
// job, not down's.
func (e *Executor) Down(ctx context.Context, versions []envcache.UpVersion, progress Progress) error {
	for _, v := range versions {
		if v.DataPath == "" {
			continue
		}
		if progress != nil {
			progress.Info("removing " + v.DataPath)
		}
		if err := os.RemoveAll(v.DataPath); err != nil {
			return &errs.IOError{Code: "U140", Path: v.DataPath, Op: "remove", Err: err}
		}
	}
	return nil
}

// configHash is the deterministic digest over the raw manifest bytes used
// as env_versions.config_hash (spec.md §3).
func configHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
