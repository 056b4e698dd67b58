package envcache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestContentHashDeterministic(t *testing.T) {
	mk := func() *Builder {
		b := NewBuilder()
		b.AddVersion(UpVersion{Tool: "python", Version: "3.12.1"})
		b.AppendPath("/a/bin")
		b.PrependPath("/data/bin")
		b.AddEnvOp(EnvOperation{Name: "VIRTUAL_ENV", Operation: OpSet})
		b.ConfigModtimes["pyproject.toml"] = time.Unix(1000, 0)
		b.ConfigHash = "abc123"
		return b
	}

	h1 := mk().ContentHash()
	h2 := mk().ContentHash()
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64, "hex-encoded SHA-256 is 64 chars")
}

func TestContentHashChangesWithContent(t *testing.T) {
	b1 := NewBuilder()
	b1.AddVersion(UpVersion{Tool: "go", Version: "1.22.0"})

	b2 := NewBuilder()
	b2.AddVersion(UpVersion{Tool: "go", Version: "1.23.0"})

	assert.NotEqual(t, b1.ContentHash(), b2.ContentHash())
}

func TestContentHashIgnoresConfigModtimeMapOrdering(t *testing.T) {
	b1 := NewBuilder()
	b1.ConfigModtimes["a"] = time.Unix(1, 0)
	b1.ConfigModtimes["b"] = time.Unix(2, 0)

	b2 := NewBuilder()
	b2.ConfigModtimes["b"] = time.Unix(2, 0)
	b2.ConfigModtimes["a"] = time.Unix(1, 0)

	assert.Equal(t, b1.ContentHash(), b2.ContentHash(), "map iteration order must not affect the hash")
}

func TestEnvVersionIDFormat(t *testing.T) {
	id := EnvVersionID("github.com:acme/widget", "deadbeef")
	assert.Equal(t, "github.com:acme/widget%deadbeef", string(id))
}
