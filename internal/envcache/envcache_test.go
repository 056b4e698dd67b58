package envcache

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"omni/internal/errs"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	dir := t.TempDir()
	db, err := Open(filepath.Join(dir, "cache.db"), 2*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func defaultPolicy() RetentionPolicy {
	return RetentionPolicy{MaxPerWorkdir: 50, MaxTotal: 5000, Retention: 180 * 24 * time.Hour}
}

func TestAssignEnvironmentCreatesAndActivates(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	b := NewBuilder()
	b.AddVersion(UpVersion{Tool: "python", NormalizedName: "python", Backend: "version-managed", Version: "3.12.1"})
	b.AppendPath("/opt/python/3.12.1/bin")

	res, err := db.AssignEnvironment(ctx, "wd1", nil, b, defaultPolicy())
	require.NoError(t, err)
	assert.True(t, res.NewEnv)
	assert.True(t, res.ReplacedEnv)

	env, err := db.GetEnv(ctx, "wd1")
	require.NoError(t, err)
	require.NotNil(t, env)
	assert.Equal(t, res.EnvVersionID, env.EnvVersionID)
	assert.Equal(t, []string{"/opt/python/3.12.1/bin"}, env.Paths)
}

func TestAssignEnvironmentIdempotentOnIdenticalBuilder(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	b := NewBuilder()
	b.AddVersion(UpVersion{Tool: "go", NormalizedName: "go", Backend: "version-managed", Version: "1.23.0"})

	first, err := db.AssignEnvironment(ctx, "wd1", nil, b, defaultPolicy())
	require.NoError(t, err)
	assert.True(t, first.NewEnv)
	assert.True(t, first.ReplacedEnv)

	second, err := db.AssignEnvironment(ctx, "wd1", nil, b, defaultPolicy())
	require.NoError(t, err)
	assert.False(t, second.NewEnv, "identical content must reuse the existing EnvVersion row")
	assert.False(t, second.ReplacedEnv, "re-assigning the already-active version is a no-op")
	assert.Equal(t, first.EnvVersionID, second.EnvVersionID)
}

func TestAssignEnvironmentSharedAcrossWorkdirs(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	b := NewBuilder()
	b.AddVersion(UpVersion{Tool: "go", NormalizedName: "go", Backend: "version-managed", Version: "1.23.0"})

	r1, err := db.AssignEnvironment(ctx, "wdA", nil, b, defaultPolicy())
	require.NoError(t, err)
	r2, err := db.AssignEnvironment(ctx, "wdB", nil, b, defaultPolicy())
	require.NoError(t, err)

	assert.NotEqual(t, r1.EnvVersionID, r2.EnvVersionID, "env_version_id is salted by workdir_id even for identical content")
}

func TestAssignEnvironmentClosesHistoryOnChange(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	b1 := NewBuilder()
	b1.AddVersion(UpVersion{Tool: "go", Version: "1.22.0"})
	_, err := db.AssignEnvironment(ctx, "wd1", nil, b1, defaultPolicy())
	require.NoError(t, err)

	b2 := NewBuilder()
	b2.AddVersion(UpVersion{Tool: "go", Version: "1.23.0"})
	_, err = db.AssignEnvironment(ctx, "wd1", nil, b2, defaultPolicy())
	require.NoError(t, err)

	var openCount, closedCount int
	row := db.sql.QueryRow(`SELECT COUNT(*) FROM env_history WHERE workdir_id = ? AND used_until IS NULL`, "wd1")
	require.NoError(t, row.Scan(&openCount))
	row = db.sql.QueryRow(`SELECT COUNT(*) FROM env_history WHERE workdir_id = ? AND used_until IS NOT NULL`, "wd1")
	require.NoError(t, row.Scan(&closedCount))

	assert.Equal(t, 1, openCount, "invariant §3.6: at most one open entry per workdir")
	assert.Equal(t, 1, closedCount)
}

func TestClearClosesOpenHistoryAndReportsCleared(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	b := NewBuilder()
	b.AddVersion(UpVersion{Tool: "go", Version: "1.23.0"})
	_, err := db.AssignEnvironment(ctx, "wd1", nil, b, defaultPolicy())
	require.NoError(t, err)

	cleared, err := db.Clear(ctx, "wd1")
	require.NoError(t, err)
	assert.True(t, cleared)

	env, err := db.GetEnv(ctx, "wd1")
	require.NoError(t, err)
	assert.Nil(t, env)

	var openCount int
	row := db.sql.QueryRow(`SELECT COUNT(*) FROM env_history WHERE workdir_id = ? AND used_until IS NULL`, "wd1")
	require.NoError(t, row.Scan(&openCount))
	assert.Equal(t, 0, openCount)

	clearedAgain, err := db.Clear(ctx, "wd1")
	require.NoError(t, err)
	assert.False(t, clearedAgain, "clearing an already-clear workdir reports no row cleared")
}

func TestAddInstalledInsertsOnceAndUpdatesLastRequired(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	inserted, err := db.AddInstalled(ctx, "version-managed", "python", "3.12.1")
	require.NoError(t, err)
	assert.True(t, inserted)

	db.now = fixedClock(time.Now().Add(time.Hour))
	insertedAgain, err := db.AddInstalled(ctx, "version-managed", "python", "3.12.1")
	require.NoError(t, err)
	assert.False(t, insertedAgain, "re-adding the same (backend, key, version) updates last_required_at, not a new row")
}

func TestAddRequiredByFKViolationWhenInstallMissing(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	b := NewBuilder()
	b.AddVersion(UpVersion{Tool: "go", Version: "1.23.0"})
	res, err := db.AssignEnvironment(ctx, "wd1", nil, b, defaultPolicy())
	require.NoError(t, err)

	_, err = db.AddRequiredBy(ctx, res.EnvVersionID, "version-managed", "go", "1.23.0")
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrFKViolation)
}

func TestAddRequiredByLinksInstallToEnvVersion(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, err := db.AddInstalled(ctx, "version-managed", "go", "1.23.0")
	require.NoError(t, err)

	b := NewBuilder()
	b.AddVersion(UpVersion{Tool: "go", Version: "1.23.0"})
	res, err := db.AssignEnvironment(ctx, "wd1", nil, b, defaultPolicy())
	require.NoError(t, err)

	inserted, err := db.AddRequiredBy(ctx, res.EnvVersionID, "version-managed", "go", "1.23.0")
	require.NoError(t, err)
	assert.True(t, inserted)

	insertedAgain, err := db.AddRequiredBy(ctx, res.EnvVersionID, "version-managed", "go", "1.23.0")
	require.NoError(t, err)
	assert.False(t, insertedAgain)
}

func TestCleanupSkipsReferencedInstalls(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	db.now = fixedClock(time.Now())

	_, err := db.AddInstalled(ctx, "version-managed", "go", "1.23.0")
	require.NoError(t, err)

	b := NewBuilder()
	b.AddVersion(UpVersion{Tool: "go", Version: "1.23.0"})
	res, err := db.AssignEnvironment(ctx, "wd1", nil, b, defaultPolicy())
	require.NoError(t, err)
	_, err = db.AddRequiredBy(ctx, res.EnvVersionID, "version-managed", "go", "1.23.0")
	require.NoError(t, err)

	// Advance far past cleanup_after; the install is still referenced by
	// RequiredBy and must survive.
	db.now = fixedClock(time.Now().Add(365 * 24 * time.Hour))
	var deletedCount int
	err = db.Cleanup(ctx, 30*24*time.Hour, func(a InstalledArtifact) error {
		deletedCount++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, deletedCount, "invariant §3.5: referenced installs are never cleanup-eligible")
}

func TestCleanupRemovesUnreferencedStaleInstalls(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	db.now = fixedClock(time.Now())

	_, err := db.AddInstalled(ctx, "version-managed", "node", "20.0.0")
	require.NoError(t, err)

	db.now = fixedClock(time.Now().Add(365 * 24 * time.Hour))
	var deleted []InstalledArtifact
	err = db.Cleanup(ctx, 30*24*time.Hour, func(a InstalledArtifact) error {
		deleted = append(deleted, a)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, deleted, 1)
	assert.Equal(t, "node", deleted[0].InstallKey)

	var remaining int
	row := db.sql.QueryRow(`SELECT COUNT(*) FROM installed_tools`)
	require.NoError(t, row.Scan(&remaining))
	assert.Equal(t, 0, remaining)
}

func TestCleanupCallbackFailureRollsBack(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	db.now = fixedClock(time.Now())

	_, err := db.AddInstalled(ctx, "version-managed", "ruby", "3.3.0")
	require.NoError(t, err)

	db.now = fixedClock(time.Now().Add(365 * 24 * time.Hour))
	err = db.Cleanup(ctx, 30*24*time.Hour, func(a InstalledArtifact) error {
		return errSimulatedRemovalFailure
	})
	require.Error(t, err)

	var remaining int
	row := db.sql.QueryRow(`SELECT COUNT(*) FROM installed_tools`)
	require.NoError(t, row.Scan(&remaining))
	assert.Equal(t, 1, remaining, "a failing callback must leave the DB row intact")
}

var errSimulatedRemovalFailure = errors.New("simulated physical-removal failure")

func TestHistoryCompactionRespectsMaxPerWorkdir(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	base := time.Now()

	policy := RetentionPolicy{MaxPerWorkdir: 2, MaxTotal: 5000, Retention: 180 * 24 * time.Hour}

	for i := 0; i < 5; i++ {
		db.now = fixedClock(base.Add(time.Duration(i) * time.Hour))
		b := NewBuilder()
		b.AddVersion(UpVersion{Tool: "go", Version: "1.2" + string(rune('0'+i)) + ".0"})
		_, err := db.AssignEnvironment(ctx, "wd1", nil, b, policy)
		require.NoError(t, err)
	}

	var count int
	row := db.sql.QueryRow(`SELECT COUNT(*) FROM env_history WHERE workdir_id = ?`, "wd1")
	require.NoError(t, row.Scan(&count))
	// MaxPerWorkdir closed entries are kept, plus the one currently open.
	assert.LessOrEqual(t, count, policy.MaxPerWorkdir+1)
}

func TestOpenHistoryEntryNeverPrunedByRetention(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	db.now = fixedClock(time.Now().Add(-365 * 24 * time.Hour))

	b := NewBuilder()
	b.AddVersion(UpVersion{Tool: "go", Version: "1.23.0"})
	_, err := db.AssignEnvironment(ctx, "wd1", nil, b, RetentionPolicy{MaxPerWorkdir: 50, MaxTotal: 5000, Retention: time.Hour})
	require.NoError(t, err)

	env, err := db.GetEnv(ctx, "wd1")
	require.NoError(t, err)
	require.NotNil(t, env, "the open history entry's EnvVersion must survive retention compaction even though it is old")
}
