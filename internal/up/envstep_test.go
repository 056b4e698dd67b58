package up

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"omni/internal/envcache"
)

func TestEnvStepBackendConfigureDecodesLines(t *testing.T) {
	backend := NewEnvStepBackend()
	node := mustMappingNode(t, []string{"FOO=bar", "BAZ>>=qux"})
	require.NoError(t, backend.Configure(StepNode{Kind: "env", Node: node, Line: 1}))
	assert.Equal(t, []string{"FOO=bar", "BAZ>>=qux"}, backend.lines)
}

func TestEnvStepBackendUpAppliesEachLine(t *testing.T) {
	backend := NewEnvStepBackend()
	backend.lines = []string{"FOO=bar", "PATH_EXTRA>>=/opt/tool/bin"}

	builder := envcache.NewBuilder()
	err := backend.Up(context.Background(), Options{}, builder, nil)
	require.NoError(t, err)
	assert.True(t, backend.WasUpped())

	require.Len(t, builder.EnvVars, 2)
	assert.Equal(t, "FOO", builder.EnvVars[0].Name)
	assert.Equal(t, envcache.OpSet, builder.EnvVars[0].Operation)
	assert.Equal(t, "PATH_EXTRA", builder.EnvVars[1].Name)
	assert.Equal(t, envcache.OpAppend, builder.EnvVars[1].Operation)
}

func TestEnvStepBackendUpMalformedLineErrors(t *testing.T) {
	backend := NewEnvStepBackend()
	backend.lines = []string{"not a valid line"}

	builder := envcache.NewBuilder()
	err := backend.Up(context.Background(), Options{}, builder, nil)
	assert.Error(t, err)
	assert.False(t, backend.WasUpped())
}

func TestEnvStepBackendCommitAndDownAreNoops(t *testing.T) {
	backend := NewEnvStepBackend()
	assert.NoError(t, backend.Commit(context.Background(), &fakeRecorder{}, "ev1"))
	assert.NoError(t, backend.Down(context.Background(), nil))
	assert.Nil(t, backend.DataPaths())
}
