package util

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileExistsExcludesDirectories(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "manifest")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	assert.True(t, FileExists(file))
	assert.False(t, FileExists(dir))
	assert.False(t, FileExists(filepath.Join(dir, "missing")))
}

func TestDirExists(t *testing.T) {
	dir := t.TempDir()
	assert.True(t, DirExists(dir))
	assert.False(t, DirExists(filepath.Join(dir, "missing")))
}

func TestEnsureDirCreatesNestedPath(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "a", "b", "c")
	require.NoError(t, EnsureDir(nested))
	assert.True(t, DirExists(nested))
}

func TestContains(t *testing.T) {
	items := []string{"python", "go", "ruby"}
	assert.True(t, Contains(items, "go"))
	assert.False(t, Contains(items, "node"))
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "1.0 kB", FormatBytes(1000))
}

func TestFormatDuration(t *testing.T) {
	got := FormatDuration(3 * time.Hour)
	assert.Contains(t, got, "hour")
}
