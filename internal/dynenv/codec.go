package dynenv

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/klauspost/compress/flate"

	"omni/internal/envcache"
)

// wireFormat is the on-disk shape of OMNI_DYNENV's payload half: the
// operations needed to invert what was applied, plus the tool-var state
// that needs restoring rather than unsetting.
type wireFormat struct {
	Paths    []string                      `json:"paths"`
	EnvVars  []envOperationWire            `json:"env_vars"`
	ToolVars map[string]ToolVarState       `json:"tool_vars"`
}

// envOperationWire mirrors envcache.EnvOperation; dynenv can't import
// envcache's internal JSON shape directly since EnvOperation has no tags
// guaranteeing stability, so it defines its own to keep the wire format
// independent of ENVCACHE's Go representation.
type envOperationWire struct {
	Name      string  `json:"name"`
	Value     *string `json:"value,omitempty"`
	Operation string  `json:"operation"`
}

const fieldSep = "."

// flagsBits packs FeatureFlags into a small bitmask so the encoded form
// stays short; new flags can be added to higher bits without breaking
// older encodings (unset bits decode to false).
func flagsBits(f FeatureFlags) uint8 {
	var b uint8
	if f.SupportsArrays {
		b |= 1 << 0
	}
	if f.SupportsTraps {
		b |= 1 << 1
	}
	return b
}

func flagsFromBits(b uint8) FeatureFlags {
	return FeatureFlags{
		SupportsArrays: b&(1<<0) != 0,
		SupportsTraps:  b&(1<<1) != 0,
	}
}

// Encode produces the opaque OMNI_DYNENV string for state: "{id}.{flags}.{payload}",
// where payload is base64 (unpadded, URL alphabet) over a DEFLATE-compressed
// JSON document of state's operations.
func Encode(state *AppliedState) (string, error) {
	wire := wireFormat{
		Paths:    state.Paths,
		ToolVars: state.ToolVars,
	}
	for _, op := range state.EnvVars {
		wire.EnvVars = append(wire.EnvVars, envOperationWire{Name: op.Name, Value: op.Value, Operation: string(op.Operation)})
	}

	raw, err := json.Marshal(wire)
	if err != nil {
		return "", fmt.Errorf("dynenv: encode payload: %w", err)
	}

	var compressed bytes.Buffer
	fw, err := flate.NewWriter(&compressed, flate.BestSpeed)
	if err != nil {
		return "", fmt.Errorf("dynenv: init compressor: %w", err)
	}
	if _, err := fw.Write(raw); err != nil {
		return "", fmt.Errorf("dynenv: compress payload: %w", err)
	}
	if err := fw.Close(); err != nil {
		return "", fmt.Errorf("dynenv: flush compressor: %w", err)
	}

	payload := base64.RawURLEncoding.EncodeToString(compressed.Bytes())
	id := state.ID
	if id == "" {
		id = contentHash(raw)
	}

	return strings.Join([]string{id, strconv.Itoa(int(flagsBits(state.Flags))), payload}, fieldSep), nil
}

// Decode parses an OMNI_DYNENV value written by Encode. A malformed value
// is reported as an error; per spec.md §4.3's "no partial output on error",
// callers that hit a Decode error should treat the shell as having no
// applied state rather than fail the whole hook invocation.
func Decode(raw string) (*AppliedState, error) {
	// The id may itself contain dots (a workdir id such as
	// "github.com:acme/widget"), so payload and flags are split off from the
	// right; the base64url payload never contains one.
	last := strings.LastIndex(raw, fieldSep)
	if last < 0 {
		return nil, fmt.Errorf("dynenv: malformed OMNI_DYNENV value")
	}
	head, payload := raw[:last], raw[last+len(fieldSep):]
	mid := strings.LastIndex(head, fieldSep)
	if mid < 0 {
		return nil, fmt.Errorf("dynenv: malformed OMNI_DYNENV value")
	}
	id, flagsStr := head[:mid], head[mid+len(fieldSep):]

	flagsInt, err := strconv.Atoi(flagsStr)
	if err != nil {
		return nil, fmt.Errorf("dynenv: malformed feature flags: %w", err)
	}

	compressed, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("dynenv: malformed base64 payload: %w", err)
	}

	fr := flate.NewReader(bytes.NewReader(compressed))
	defer fr.Close()
	raw2, err := io.ReadAll(fr)
	if err != nil {
		return nil, fmt.Errorf("dynenv: decompress payload: %w", err)
	}

	var wire wireFormat
	if err := json.Unmarshal(raw2, &wire); err != nil {
		return nil, fmt.Errorf("dynenv: unmarshal payload: %w", err)
	}

	state := &AppliedState{
		ID:       id,
		Paths:    wire.Paths,
		ToolVars: wire.ToolVars,
		Flags:    flagsFromBits(uint8(flagsInt)),
	}
	for _, op := range wire.EnvVars {
		state.EnvVars = append(state.EnvVars, envcacheOperation(op))
	}
	return state, nil
}

func contentHash(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func envcacheOperation(op envOperationWire) envcache.EnvOperation {
	return envcache.EnvOperation{Name: op.Name, Value: op.Value, Operation: envcache.OperationKind(op.Operation)}
}
