package up

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"omni/internal/envcache"
	"omni/internal/errs"
)

type fakeReleaseLister struct {
	releases []Release
	err      error
}

func (f *fakeReleaseLister) ListReleases(ctx context.Context, repository string) ([]Release, error) {
	return f.releases, f.err
}

func TestReleaseArchiveBackendUpDownloadsFirstMatchingRelease(t *testing.T) {
	payload := []byte("#!/bin/sh\necho hi\n")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	sum := sha256.Sum256(payload)
	checksum := hex.EncodeToString(sum[:])

	lister := &fakeReleaseLister{releases: []Release{
		{Tag: "2.0.0", Assets: []ReleaseAsset{{Name: "tool-linux", URL: srv.URL, Checksum: checksum}}},
		{Tag: "1.0.0", Assets: []ReleaseAsset{{Name: "tool-linux", URL: srv.URL}}},
	}}

	backend := NewReleaseArchiveBackend(lister)
	require.NoError(t, backend.Configure(StepNode{Kind: "github-release"}))
	backend.cfg = ReleaseArchiveConfig{Repository: "acme/tool", Version: ">=1.0.0", Asset: "tool-linux"}

	builder := envcache.NewBuilder()
	dataHome := t.TempDir()
	err := backend.Up(context.Background(), Options{DataHome: dataHome, WorkdirPath: "/proj"}, builder, nil)
	require.NoError(t, err)

	assert.Equal(t, "2.0.0", backend.resolved)
	assert.True(t, backend.WasUpped())
	require.Len(t, builder.Versions, 1)
	assert.Equal(t, "acme/tool", builder.Versions[0].NormalizedName)
	assert.Equal(t, "release-archive", builder.Versions[0].Backend)

	installed := filepath.Join(backend.binPath, "bin", "tool-linux")
	if _, statErr := os.Stat(installed); statErr != nil {
		installed = filepath.Join(backend.binPath, "tool-linux")
		_, statErr = os.Stat(installed)
		require.NoError(t, statErr)
	}
}

func TestReleaseArchiveBackendNoMatchingReleaseErrors(t *testing.T) {
	lister := &fakeReleaseLister{releases: []Release{{Tag: "0.1.0"}}}
	backend := NewReleaseArchiveBackend(lister)
	backend.cfg = ReleaseArchiveConfig{Repository: "acme/tool", Version: ">=9.0.0", Asset: "tool"}

	builder := envcache.NewBuilder()
	err := backend.Up(context.Background(), Options{DataHome: t.TempDir()}, builder, nil)
	require.Error(t, err)
	var re *errs.ResolveError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "C201", re.Code)
}

func TestReleaseArchiveBackendYankedReleaseSkipped(t *testing.T) {
	payload := []byte("binary-contents")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	lister := &fakeReleaseLister{releases: []Release{
		{Tag: "2.0.0", Yanked: true, Assets: []ReleaseAsset{{Name: "tool", URL: srv.URL}}},
		{Tag: "1.0.0", Assets: []ReleaseAsset{{Name: "tool", URL: srv.URL}}},
	}}
	backend := NewReleaseArchiveBackend(lister)
	backend.cfg = ReleaseArchiveConfig{Repository: "acme/tool", Version: ">=0.0.0", Asset: "tool"}

	builder := envcache.NewBuilder()
	err := backend.Up(context.Background(), Options{DataHome: t.TempDir()}, builder, nil)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", backend.resolved)
}

func TestReleaseArchiveBackendConfigureRequiresRepository(t *testing.T) {
	backend := NewReleaseArchiveBackend(&fakeReleaseLister{})
	node := mustMappingNode(t, map[string]string{"version": "1.0.0"})
	err := backend.Configure(StepNode{Kind: "github-release", Node: node, Line: 4})
	require.Error(t, err)
	var ce *errs.ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "C120", ce.Code)
}

func TestSelectAssetPrefersExactOverSubstring(t *testing.T) {
	assets := []ReleaseAsset{
		{Name: "tool-linux-amd64.tar.gz"},
		{Name: "tool-linux"},
	}
	got := selectAsset(assets, "tool-linux")
	require.NotNil(t, got)
	assert.Equal(t, "tool-linux", got.Name)
}

func TestSelectAssetSingleAssetNoSelector(t *testing.T) {
	assets := []ReleaseAsset{{Name: "only-one"}}
	got := selectAsset(assets, "")
	require.NotNil(t, got)
	assert.Equal(t, "only-one", got.Name)
}
