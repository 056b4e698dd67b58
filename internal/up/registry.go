package up

// specialKinds are the step kinds with their own Backend implementation,
// distinct from the open-ended set of version-managed tool names (spec.md
// §6: "step kinds recognized: python, go, ruby, node, rust, helm,
// terraform, …" — the "…" covers any tool-version-manager plugin name, all
// of which resolve to VersionManagedBackend).
var specialKinds = map[string]func() Backend{
	"cargo-install":  func() Backend { return NewLanguagePackageBackend(nil) },
	"go-install":     func() Backend { return NewLanguagePackageBackend(nil) },
	"github-release": func() Backend { return NewReleaseArchiveBackend(nil) },
	"homebrew":       func() Backend { return NewHomebrewBackend() },
	"custom":         func() Backend { return NewCustomStepBackend() },
	"env":            func() Backend { return NewEnvStepBackend() },
}

// NewBackend returns the Backend implementation for one manifest step kind.
// Any kind not in specialKinds is treated as a version-managed tool name
// (python, go, ruby, ..., or any other asdf-style plugin).
func NewBackend(kind string) Backend {
	if ctor, ok := specialKinds[kind]; ok {
		return ctor()
	}
	return NewVersionManagedBackend(nil)
}
