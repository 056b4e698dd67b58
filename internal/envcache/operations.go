package envcache

import (
	"context"
	"database/sql"
	"time"

	"omni/internal/errs"
)

// GetEnv returns the EnvVersion currently active for workdirID, or nil if
// none is assigned yet.
func (db *DB) GetEnv(ctx context.Context, workdirID string) (*EnvVersion, error) {
	row := db.sql.QueryRowContext(ctx, `
		SELECT ev.env_version_id, ev.workdir_id, ev.content_hash, ev.versions_json,
		       ev.paths_json, ev.env_vars_json, ev.config_modtimes_json, ev.config_hash, ev.created_at
		FROM workdir_envs we
		JOIN env_versions ev ON ev.env_version_id = we.env_version_id
		WHERE we.workdir_id = ?`, workdirID)

	r, err := scanEnvVersionRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrapCacheErr("P010", "get_env", err)
	}
	return r.toEnvVersion()
}

// AssignResult is the outcome of AssignEnvironment (spec.md §4.1).
type AssignResult struct {
	NewEnv       bool
	ReplacedEnv  bool
	EnvVersionID string
}

// AssignEnvironment runs the assign_environment algorithm of spec.md §4.1
// inside one transaction: insert-or-reuse the content-addressed EnvVersion,
// point the work directory at it, maintain the open EnvHistory entry, and
// compact history per the retention settings.
func (db *DB) AssignEnvironment(ctx context.Context, workdirID string, headSHA *string, b *Builder, cfg RetentionPolicy) (AssignResult, error) {
	var result AssignResult
	contentHash := b.ContentHash()
	envVersionID := EnvVersionID(workdirID, contentHash)
	result.EnvVersionID = envVersionID
	now := db.now()

	err := db.withTx(ctx, "assign_environment", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO workdirs(workdir_id) VALUES (?)`, workdirID); err != nil {
			return err
		}

		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM env_versions WHERE env_version_id = ?`, envVersionID).Scan(&exists)
		switch {
		case err == sql.ErrNoRows:
			versionsJSON, pathsJSON, envVarsJSON, modtimesJSON, merr := marshalBuilder(b)
			if merr != nil {
				return merr
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO env_versions (env_version_id, workdir_id, content_hash, versions_json, paths_json,
					env_vars_json, config_modtimes_json, config_hash, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				envVersionID, workdirID, contentHash, versionsJSON, pathsJSON, envVarsJSON, modtimesJSON, b.ConfigHash, now); err != nil {
				return err
			}
			result.NewEnv = true
		case err != nil:
			return err
		default:
			result.NewEnv = false
		}

		var currentEnvVersionID string
		err = tx.QueryRowContext(ctx, `SELECT env_version_id FROM workdir_envs WHERE workdir_id = ?`, workdirID).Scan(&currentEnvVersionID)
		switch {
		case err == sql.ErrNoRows:
			if _, err := tx.ExecContext(ctx, `INSERT INTO workdir_envs(workdir_id, env_version_id) VALUES (?, ?)`, workdirID, envVersionID); err != nil {
				return err
			}
			result.ReplacedEnv = true
		case err != nil:
			return err
		case currentEnvVersionID != envVersionID:
			if _, err := tx.ExecContext(ctx, `UPDATE workdir_envs SET env_version_id = ? WHERE workdir_id = ?`, envVersionID, workdirID); err != nil {
				return err
			}
			result.ReplacedEnv = true
		default:
			result.ReplacedEnv = false
		}

		if err := reconcileOpenHistory(ctx, tx, workdirID, envVersionID, headSHA, now); err != nil {
			return err
		}

		return compactHistory(ctx, tx, workdirID, cfg, now)
	})
	if err != nil {
		return AssignResult{}, wrapCacheErr("P011", "assign_environment", err)
	}
	return result, nil
}

// reconcileOpenHistory implements step 4 of the assign_environment
// algorithm: close the open entry and insert a fresh one unless the open
// entry already matches the incoming (env_version_id, head_sha) pair.
func reconcileOpenHistory(ctx context.Context, tx *sql.Tx, workdirID, envVersionID string, headSHA *string, now time.Time) error {
	var openEnvVersionID string
	var openHeadSHA sql.NullString
	err := tx.QueryRowContext(ctx, `
		SELECT env_version_id, head_sha FROM env_history
		WHERE workdir_id = ? AND used_until IS NULL`, workdirID).Scan(&openEnvVersionID, &openHeadSHA)

	incoming := nullableString(derefOrEmpty(headSHA))
	if err == nil && openEnvVersionID == envVersionID && openHeadSHA == incoming {
		return nil
	}
	if err != nil && err != sql.ErrNoRows {
		return err
	}

	if err == nil {
		if _, err := tx.ExecContext(ctx, `UPDATE env_history SET used_until = ? WHERE workdir_id = ? AND used_until IS NULL`, now, workdirID); err != nil {
			return err
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO env_history (workdir_id, env_version_id, head_sha, used_from, used_until)
		VALUES (?, ?, ?, ?, NULL)`, workdirID, envVersionID, incoming, now)
	return err
}

func derefOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// RetentionPolicy is the subset of config.Settings that history compaction
// needs, kept narrow so envcache doesn't import internal/config.
type RetentionPolicy struct {
	MaxPerWorkdir int
	MaxTotal      int
	Retention     time.Duration
}

// compactHistory implements step 5 of the assign_environment algorithm.
func compactHistory(ctx context.Context, tx *sql.Tx, workdirID string, cfg RetentionPolicy, now time.Time) error {
	// Collapse duplicate open entries (defensive; invariant §3.6 should
	// prevent this from ever firing).
	if _, err := tx.ExecContext(ctx, `
		UPDATE env_history SET used_until = ?
		WHERE workdir_id = ? AND used_until IS NULL AND id NOT IN (
			SELECT MAX(id) FROM env_history WHERE workdir_id = ? AND used_until IS NULL
		)`, now, workdirID, workdirID); err != nil {
		return err
	}

	// Delete closed entries older than retention.
	if cfg.Retention > 0 {
		cutoff := now.Add(-cfg.Retention)
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM env_history WHERE used_until IS NOT NULL AND used_from < ?`, cutoff); err != nil {
			return err
		}
	}

	// Per-workdir ring: keep only the newest MaxPerWorkdir closed entries.
	if cfg.MaxPerWorkdir > 0 {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM env_history WHERE id IN (
				SELECT id FROM env_history
				WHERE workdir_id = ? AND used_until IS NOT NULL
				ORDER BY used_from DESC
				LIMIT -1 OFFSET ?
			)`, workdirID, cfg.MaxPerWorkdir); err != nil {
			return err
		}
	}

	// Global ring: keep only the newest MaxTotal closed entries across all
	// work directories.
	if cfg.MaxTotal > 0 {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM env_history WHERE used_until IS NOT NULL AND id IN (
				SELECT id FROM env_history
				WHERE used_until IS NOT NULL
				ORDER BY used_from DESC
				LIMIT -1 OFFSET ?
			)`, cfg.MaxTotal); err != nil {
			return err
		}
	}

	// Orphaned EnvVersion rows: no WorkdirEnv pointer and no open-history
	// reference (closed history rows do not keep a version alive).
	_, err := tx.ExecContext(ctx, `
		DELETE FROM env_versions WHERE env_version_id NOT IN (
			SELECT env_version_id FROM workdir_envs
			UNION
			SELECT env_version_id FROM env_history WHERE used_until IS NULL
		)`)
	return err
}

// AssignExisting re-points workdirID at an already-materialized EnvVersion
// (envVersionID) without touching env_versions: the workdir-pointer,
// history, and compaction steps of AssignEnvironment, minus the
// content-hash insert. Used by the UP executor's config_hash/TTL fast path
// (spec.md §2, SPEC_FULL.md §4 feature 6) when the manifest hasn't changed
// since the last up and nothing needs re-resolving.
func (db *DB) AssignExisting(ctx context.Context, workdirID, envVersionID string, headSHA *string, cfg RetentionPolicy) (AssignResult, error) {
	result := AssignResult{EnvVersionID: envVersionID}
	now := db.now()

	err := db.withTx(ctx, "assign_existing", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO workdirs(workdir_id) VALUES (?)`, workdirID); err != nil {
			return err
		}

		var currentEnvVersionID string
		err := tx.QueryRowContext(ctx, `SELECT env_version_id FROM workdir_envs WHERE workdir_id = ?`, workdirID).Scan(&currentEnvVersionID)
		switch {
		case err == sql.ErrNoRows:
			if _, err := tx.ExecContext(ctx, `INSERT INTO workdir_envs(workdir_id, env_version_id) VALUES (?, ?)`, workdirID, envVersionID); err != nil {
				return err
			}
			result.ReplacedEnv = true
		case err != nil:
			return err
		case currentEnvVersionID != envVersionID:
			if _, err := tx.ExecContext(ctx, `UPDATE workdir_envs SET env_version_id = ? WHERE workdir_id = ?`, envVersionID, workdirID); err != nil {
				return err
			}
			result.ReplacedEnv = true
		default:
			result.ReplacedEnv = false
		}

		if err := reconcileOpenHistory(ctx, tx, workdirID, envVersionID, headSHA, now); err != nil {
			return err
		}
		return compactHistory(ctx, tx, workdirID, cfg, now)
	})
	if err != nil {
		return AssignResult{}, wrapCacheErr("P016", "assign_existing", err)
	}
	return result, nil
}

// GetCachedVersions returns cacheKey's last-resolved payload for backend
// and when it was resolved. ok is false when no row exists yet. Freshness
// (TTL) is internal/up's call: ENVCACHE just remembers the last resolution
// and when it happened.
func (db *DB) GetCachedVersions(ctx context.Context, backend, cacheKey string) (string, time.Time, bool, error) {
	var resolved string
	var resolvedAt time.Time
	err := db.sql.QueryRowContext(ctx, `
		SELECT resolved, resolved_at FROM version_cache WHERE backend = ? AND cache_key = ?`, backend, cacheKey).Scan(&resolved, &resolvedAt)
	if err == sql.ErrNoRows {
		return "", time.Time{}, false, nil
	}
	if err != nil {
		return "", time.Time{}, false, wrapCacheErr("P017", "get_cached_versions", err)
	}
	return resolved, resolvedAt, true, nil
}

// PutCachedVersions upserts backend's resolution of cacheKey, stamping
// resolved_at with the current time.
func (db *DB) PutCachedVersions(ctx context.Context, backend, cacheKey, payload string) error {
	now := db.now()
	_, err := db.sql.ExecContext(ctx, `
		INSERT INTO version_cache (backend, cache_key, resolved, resolved_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(backend, cache_key) DO UPDATE SET resolved = excluded.resolved, resolved_at = excluded.resolved_at`,
		backend, cacheKey, payload, now)
	if err != nil {
		return wrapCacheErr("P018", "put_cached_versions", err)
	}
	return nil
}

// Clear removes workdirID's active environment mapping, closing its open
// history entry. Returns whether a row was actually cleared.
func (db *DB) Clear(ctx context.Context, workdirID string) (bool, error) {
	var cleared bool
	now := db.now()
	err := db.withTx(ctx, "clear", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM workdir_envs WHERE workdir_id = ?`, workdirID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		cleared = n > 0

		_, err = tx.ExecContext(ctx, `UPDATE env_history SET used_until = ? WHERE workdir_id = ? AND used_until IS NULL`, now, workdirID)
		return err
	})
	if err != nil {
		return false, wrapCacheErr("P012", "clear", err)
	}
	return cleared, nil
}

// AddInstalled records one (backend, install_key, version) artifact,
// updating last_required_at if it already exists. Returns whether a new row
// was inserted.
func (db *DB) AddInstalled(ctx context.Context, backend, installKey, version string) (bool, error) {
	var inserted bool
	now := db.now()
	err := db.withTx(ctx, "add_installed", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO installed_tools (backend, install_key, version, installed_at, last_required_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(backend, install_key, version) DO UPDATE SET last_required_at = excluded.last_required_at`,
			backend, installKey, version, now, now)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		// SQLite reports 1 row affected for a plain insert and 1 for an
		// UPSERT's UPDATE path too; distinguish by checking whether the row
		// pre-existed before the statement ran.
		inserted = n == 1 && isFreshInsert(ctx, tx, backend, installKey, version, now)
		return nil
	})
	if err != nil {
		return false, wrapCacheErr("P013", "add_installed", err)
	}
	return inserted, nil
}

// isFreshInsert distinguishes an UPSERT's insert path from its update path
// by comparing installed_at to the timestamp just used: a fresh insert sets
// both columns to now, while an update only ever changes last_required_at.
func isFreshInsert(ctx context.Context, tx *sql.Tx, backend, installKey, version string, now time.Time) bool {
	var installedAt time.Time
	if err := tx.QueryRowContext(ctx, `
		SELECT installed_at FROM installed_tools WHERE backend = ? AND install_key = ? AND version = ?`,
		backend, installKey, version).Scan(&installedAt); err != nil {
		return false
	}
	return installedAt.Equal(now)
}

// AddRequiredBy ties an installed artifact to an EnvVersion, returning
// ErrFKViolation wrapped in a CacheError if either endpoint is absent.
func (db *DB) AddRequiredBy(ctx context.Context, envVersionID, backend, installKey, version string) (bool, error) {
	var inserted bool
	err := db.withTx(ctx, "add_required_by", func(tx *sql.Tx) error {
		var installedID int64
		err := tx.QueryRowContext(ctx, `
			SELECT id FROM installed_tools WHERE backend = ? AND install_key = ? AND version = ?`,
			backend, installKey, version).Scan(&installedID)
		if err == sql.ErrNoRows {
			return errs.ErrFKViolation
		}
		if err != nil {
			return err
		}

		var exists int
		err = tx.QueryRowContext(ctx, `SELECT 1 FROM env_versions WHERE env_version_id = ?`, envVersionID).Scan(&exists)
		if err == sql.ErrNoRows {
			return errs.ErrFKViolation
		}
		if err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO required_by (env_version_id, installed_id) VALUES (?, ?)`, envVersionID, installedID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		inserted = n > 0
		return nil
	})
	if err != nil {
		return false, wrapCacheErr("P014", "add_required_by", err)
	}
	return inserted, nil
}

// InstalledArtifact identifies one row eligible for cleanup.
type InstalledArtifact struct {
	ID         int64
	Backend    string
	InstallKey string
	Version    string
}

// Cleanup selects every installed_tools row eligible under invariant §3.5
// (last_required_at older than cleanupAfter, no RequiredBy references),
// calls deleteFn for each to perform the physical removal, and only removes
// the row from the DB once deleteFn succeeds. deleteFn's error aborts the
// whole transaction, per spec.md §4.1's cleanup semantics.
func (db *DB) Cleanup(ctx context.Context, cleanupAfter time.Duration, deleteFn func(InstalledArtifact) error) error {
	now := db.now()
	cutoff := now.Add(-cleanupAfter)

	err := db.withTx(ctx, "cleanup", func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT it.id, it.backend, it.install_key, it.version
			FROM installed_tools it
			WHERE it.last_required_at < ?
			  AND NOT EXISTS (SELECT 1 FROM required_by rb WHERE rb.installed_id = it.id)`, cutoff)
		if err != nil {
			return err
		}
		var eligible []InstalledArtifact
		for rows.Next() {
			var a InstalledArtifact
			if err := rows.Scan(&a.ID, &a.Backend, &a.InstallKey, &a.Version); err != nil {
				rows.Close()
				return err
			}
			eligible = append(eligible, a)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		rows.Close()

		for _, a := range eligible {
			if err := deleteFn(a); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM installed_tools WHERE id = ?`, a.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return wrapCacheErr("P015", "cleanup", err)
	}
	return nil
}
