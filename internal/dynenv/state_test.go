package dynenv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"omni/internal/envcache"
)

func TestNewAppliedStateCapturesPriorValues(t *testing.T) {
	target := &envcache.EnvVersion{
		EnvVersionID: "wd1%aaa",
		Versions: []envcache.UpVersion{
			{Tool: "go", Version: "1.23.0", DataPath: "/data/go/1.23.0"},
		},
	}
	prior := map[string]string{"GOVERSION": "1.22.0"}

	state := NewAppliedState(target, prior, FeatureFlags{})

	require.Contains(t, state.ToolVars, "GOVERSION")
	assert.Equal(t, "1.23.0", state.ToolVars["GOVERSION"].Entered)
	require.NotNil(t, state.ToolVars["GOVERSION"].Prior)
	assert.Equal(t, "1.22.0", *state.ToolVars["GOVERSION"].Prior)

	require.Contains(t, state.ToolVars, "GOBIN")
	assert.Nil(t, state.ToolVars["GOBIN"].Prior, "GOBIN had no prior value, so leaving must unset rather than restore")
}
