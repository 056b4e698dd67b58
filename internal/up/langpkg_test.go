package up

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"omni/internal/envcache"
	"omni/internal/errs"
)

type fakeRegistryClient struct {
	versions []string
	err      error
}

func (f *fakeRegistryClient) ListVersions(ctx context.Context, target string) ([]string, error) {
	return f.versions, f.err
}

func TestLanguagePackageBackendConfigureSplitsTargetAndVersion(t *testing.T) {
	backend := NewLanguagePackageBackend(&fakeRegistryClient{})
	node := mustMappingNode(t, "github.com/acme/tool@^1.2.0")
	require.NoError(t, backend.Configure(StepNode{Kind: "go-install", Node: node, Line: 1}))

	assert.Equal(t, "github.com/acme/tool", backend.target)
	assert.Equal(t, "^1.2.0", backend.versionSpec)
}

func TestLanguagePackageBackendConfigureDefaultsToLatest(t *testing.T) {
	backend := NewLanguagePackageBackend(&fakeRegistryClient{})
	node := mustMappingNode(t, "github.com/acme/tool")
	require.NoError(t, backend.Configure(StepNode{Kind: "go-install", Node: node, Line: 1}))

	assert.Equal(t, "github.com/acme/tool", backend.target)
	assert.Equal(t, "latest", backend.versionSpec)
}

func TestLanguagePackageBackendConfigureDefaultsRegistryByKind(t *testing.T) {
	backend := NewLanguagePackageBackend(nil)
	node := mustMappingNode(t, "ripgrep")
	require.NoError(t, backend.Configure(StepNode{Kind: "cargo-install", Node: node, Line: 1}))

	_, ok := backend.Registry.(*CratesIOClient)
	assert.True(t, ok)
}

func TestLanguagePackageBackendUpNoMatchingVersionErrors(t *testing.T) {
	backend := NewLanguagePackageBackend(&fakeRegistryClient{versions: []string{"0.9.0"}})
	backend.kind = "go-install"
	backend.target = "github.com/acme/tool"
	backend.versionSpec = "^2.0.0"

	builder := envcache.NewBuilder()
	err := backend.Up(context.Background(), Options{DataHome: t.TempDir()}, builder, nil)
	require.Error(t, err)
	var re *errs.ResolveError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "C201", re.Code)
	assert.False(t, backend.WasUpped())
}

func TestLanguagePackageBackendUpRegistryErrorWrapsResolveError(t *testing.T) {
	backend := NewLanguagePackageBackend(&fakeRegistryClient{err: assertError{"registry down"}})
	backend.kind = "cargo-install"
	backend.target = "ripgrep"
	backend.versionSpec = "latest"

	builder := envcache.NewBuilder()
	err := backend.Up(context.Background(), Options{DataHome: t.TempDir()}, builder, nil)
	require.Error(t, err)
	var re *errs.ResolveError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "C203", re.Code)
}

type assertError struct{ msg string }

func (e assertError) Error() string { return e.msg }
