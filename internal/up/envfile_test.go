package up

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"omni/internal/envcache"
)

func TestParseEnvFileSetForms(t *testing.T) {
	ops, err := ParseEnvFile([]byte("NAME=value\nexport OTHER=thing\n"))
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, envcache.EnvOperation{Name: "NAME", Operation: envcache.OpSet, Value: strPtr("value")}, ops[0])
	assert.Equal(t, envcache.EnvOperation{Name: "OTHER", Operation: envcache.OpSet, Value: strPtr("thing")}, ops[1])
}

func TestParseEnvFileUnset(t *testing.T) {
	ops, err := ParseEnvFile([]byte("unset FOO\n"))
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, "FOO", ops[0].Name)
	assert.Nil(t, ops[0].Value)
}

func TestParseEnvFileUnsetMultipleNames(t *testing.T) {
	ops, err := ParseEnvFile([]byte("unset A B C\n"))
	require.NoError(t, err)
	require.Len(t, ops, 3)
	for i, name := range []string{"A", "B", "C"} {
		assert.Equal(t, name, ops[i].Name)
		assert.Equal(t, envcache.OpSet, ops[i].Operation)
		assert.Nil(t, ops[i].Value)
	}
}

func TestParseEnvFileOperators(t *testing.T) {
	ops, err := ParseEnvFile([]byte(
		"PATH>>=/opt/bin\n" +
			"PATH<<=/opt/sbin\n" +
			"FLAGS-=verbose\n" +
			"NAME<=pre-\n" +
			"NAME>=-suf\n",
	))
	require.NoError(t, err)
	require.Len(t, ops, 5)
	assert.Equal(t, envcache.OpAppend, ops[0].Operation)
	assert.Equal(t, "/opt/bin", *ops[0].Value)
	assert.Equal(t, envcache.OpPrepend, ops[1].Operation)
	assert.Equal(t, "/opt/sbin", *ops[1].Value)
	assert.Equal(t, envcache.OpRemove, ops[2].Operation)
	assert.Equal(t, "verbose", *ops[2].Value)
	assert.Equal(t, envcache.OpPrefix, ops[3].Operation)
	assert.Equal(t, "pre-", *ops[3].Value)
	assert.Equal(t, envcache.OpSuffix, ops[4].Operation)
	assert.Equal(t, "-suf", *ops[4].Value)
}

func TestParseEnvFileSkipsCommentsAndBlankLines(t *testing.T) {
	ops, err := ParseEnvFile([]byte("# a comment\n\nNAME=value\n"))
	require.NoError(t, err)
	require.Len(t, ops, 1)
}

func TestParseEnvFileHeredocPlain(t *testing.T) {
	ops, err := ParseEnvFile([]byte("BODY<<EOF\nline one\nline two\nEOF\n"))
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, "line one\nline two", *ops[0].Value)
}

func TestParseEnvFileHeredocStripsLeadingTabs(t *testing.T) {
	ops, err := ParseEnvFile([]byte("BODY<<-EOF\n\tindented\n\tlines\nEOF\n"))
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, "indented\nlines", *ops[0].Value)
}

func TestParseEnvFileHeredocStripsMinimalIndent(t *testing.T) {
	ops, err := ParseEnvFile([]byte("BODY<<~EOF\n    a\n      b\nEOF\n"))
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, "a\n  b", *ops[0].Value)
}

func TestParseEnvFileHeredocAcceptsQuotedDelimiter(t *testing.T) {
	ops, err := ParseEnvFile([]byte("BODY<<\"EOF\"\nhello\nEOF\n"))
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, "hello", *ops[0].Value)
}

func TestParseEnvFileMissingHeredocTerminatorErrors(t *testing.T) {
	_, err := ParseEnvFile([]byte("BODY<<EOF\nhello\n"))
	assert.Error(t, err)
}

func TestParseEnvFileRejectsInvalidVarName(t *testing.T) {
	_, err := ParseEnvFile([]byte("1NAME=value\n"))
	assert.Error(t, err)
}

func TestParseEnvFileValueContainingEqualsSign(t *testing.T) {
	ops, err := ParseEnvFile([]byte("URL=https://example.com?a=b\n"))
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, "URL", ops[0].Name)
	assert.Equal(t, "https://example.com?a=b", *ops[0].Value)
}

func strPtr(s string) *string { return &s }
