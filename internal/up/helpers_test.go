package up

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// mustMappingNode builds a *yaml.Node for a step body from a plain map, for
// tests that need to exercise a backend's Configure/Decode path without
// parsing a full manifest document.
func mustMappingNode(t *testing.T, v any) *yaml.Node {
	t.Helper()
	data, err := yaml.Marshal(v)
	require.NoError(t, err)

	var doc yaml.Node
	require.NoError(t, yaml.Unmarshal(data, &doc))
	require.Len(t, doc.Content, 1)
	return doc.Content[0]
}
