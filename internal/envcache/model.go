package envcache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"
)

// OperationKind is one of the six mutations an EnvOperation can apply.
type OperationKind string

const (
	OpSet      OperationKind = "set"
	OpAppend   OperationKind = "append"
	OpPrepend  OperationKind = "prepend"
	OpRemove   OperationKind = "remove"
	OpPrefix   OperationKind = "prefix"
	OpSuffix   OperationKind = "suffix"
)

// EnvOperation is one shell-variable mutation. A nil Value with OpSet means
// "unset". Order within a slice of EnvOperation is significant and is
// always preserved end to end (builder -> EnvVersion -> DYNENV).
type EnvOperation struct {
	Name      string        `json:"name"`
	Value     *string       `json:"value,omitempty"`
	Operation OperationKind `json:"operation"`
}

// UpVersion records one tool backend's resolved, installed version and its
// contribution to the environment.
type UpVersion struct {
	Tool           string `json:"tool"`
	PluginName     string `json:"plugin_name"`
	NormalizedName string `json:"normalized_name"`
	Backend        string `json:"backend"`
	Version        string `json:"version"`
	BinPath        string `json:"bin_path"`
	Dir            string `json:"dir"`
	DataPath       string `json:"data_path,omitempty"`
}

// EnvVersion is a content-addressed, immutable snapshot of one computed
// environment (spec.md §3).
type EnvVersion struct {
	EnvVersionID   string
	WorkdirID      string
	ContentHash    string
	Versions       []UpVersion
	Paths          []string
	EnvVars        []EnvOperation
	ConfigModtimes map[string]time.Time
	ConfigHash     string
	CreatedAt      time.Time
}

// Builder accumulates one backend's contributions at a time, in the order
// the UP executor runs backends (spec.md §4.2: "backends execute strictly
// sequentially; their contributions ... are appended in declaration
// order").
type Builder struct {
	Versions       []UpVersion
	Paths          []string
	EnvVars        []EnvOperation
	ConfigModtimes map[string]time.Time
	ConfigHash     string
}

// NewBuilder returns an empty Builder ready for backends to append to.
func NewBuilder() *Builder {
	return &Builder{ConfigModtimes: map[string]time.Time{}}
}

// AddVersion appends one UpVersion in backend-declaration order.
func (b *Builder) AddVersion(v UpVersion) { b.Versions = append(b.Versions, v) }

// PrependPath adds a PATH entry at the front (data-home paths, per
// spec.md §4.2's "prepend-for-data-home" tie-break).
func (b *Builder) PrependPath(p string) {
	b.Paths = append([]string{p}, b.Paths...)
}

// AppendPath adds a PATH entry at the back.
func (b *Builder) AppendPath(p string) {
	b.Paths = append(b.Paths, p)
}

// AddEnvOp appends one env-var mutation in declaration order.
func (b *Builder) AddEnvOp(op EnvOperation) { b.EnvVars = append(b.EnvVars, op) }

// contentPayload is the exact structure whose JSON encoding is hashed to
// produce content_hash (spec.md §3: "Content hash is computed over
// (versions, paths, env_vars, config_modtimes, config_hash)"). Field order
// is fixed by struct declaration and map keys are sorted before encoding so
// two builders with identical contents always hash identically.
type contentPayload struct {
	Versions       []UpVersion         `json:"versions"`
	Paths          []string            `json:"paths"`
	EnvVars        []EnvOperation      `json:"env_vars"`
	ConfigModtimes []modtimeEntry      `json:"config_modtimes"`
	ConfigHash     string              `json:"config_hash"`
}

type modtimeEntry struct {
	File    string `json:"file"`
	ModTime int64  `json:"mtime"`
}

// ContentHash computes the deterministic hex-encoded SHA-256 digest of the
// builder's contents (spec.md §3 invariant 1).
func (b *Builder) ContentHash() string {
	entries := make([]modtimeEntry, 0, len(b.ConfigModtimes))
	for f, t := range b.ConfigModtimes {
		entries = append(entries, modtimeEntry{File: f, ModTime: t.UnixNano()})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].File < entries[j].File })

	payload := contentPayload{
		Versions:       b.Versions,
		Paths:          b.Paths,
		EnvVars:        b.EnvVars,
		ConfigModtimes: entries,
		ConfigHash:     b.ConfigHash,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		// json.Marshal only fails on un-encodable types (channels, funcs);
		// Builder's fields are all plain data, so this is unreachable in
		// practice. Panic rather than silently return a wrong hash.
		panic("envcache: builder content is not JSON-encodable: " + err.Error())
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// EnvVersionID forms the spec.md §3 id: "{workdir_id}%{content_hash}".
func EnvVersionID(workdirID, contentHash string) string {
	return workdirID + "%" + contentHash
}
