package dynenv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"omni/internal/envcache"
)

func val(s string) *string { return &s }

func TestEncodeDecodeRoundTrip(t *testing.T) {
	prior := "1.21.0"
	state := &AppliedState{
		ID:    "wd1%abcdef",
		Paths: []string{"/data/go/1.23.0/bin", "/usr/local/bin"},
		EnvVars: []envcache.EnvOperation{
			{Name: "GOFLAGS", Value: val("-mod=mod"), Operation: envcache.OpSet},
		},
		ToolVars: map[string]ToolVarState{
			"GOVERSION": {Entered: "1.23.0", Prior: &prior},
			"GOBIN":     {Entered: "/data/go/1.23.0/bin", Prior: nil},
		},
		Flags: FeatureFlags{SupportsArrays: true},
	}

	encoded, err := Encode(state)
	require.NoError(t, err)
	assert.NotEmpty(t, encoded)

	decoded, err := Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, state.ID, decoded.ID)
	assert.Equal(t, state.Paths, decoded.Paths)
	assert.Equal(t, state.EnvVars, decoded.EnvVars)
	assert.Equal(t, state.ToolVars["GOVERSION"], decoded.ToolVars["GOVERSION"])
	assert.Equal(t, state.Flags, decoded.Flags)
}

func TestDecodeMalformedValue(t *testing.T) {
	_, err := Decode("not-a-valid-dynenv-value")
	assert.Error(t, err)
}

func TestDecodeMalformedBase64(t *testing.T) {
	_, err := Decode("id.0.not-valid-base64!!!")
	assert.Error(t, err)
}

func TestEncodeEmptyStateStillRoundTrips(t *testing.T) {
	state := &AppliedState{ID: "wd1%empty"}
	encoded, err := Encode(state)
	require.NoError(t, err)

	decoded, err := Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, "wd1%empty", decoded.ID)
	assert.Empty(t, decoded.Paths)
}
