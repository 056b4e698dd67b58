package up

import (
	"path/filepath"

	"omni/internal/envcache"
)

// HookResult is what a post-install hook contributes on top of the version-
// managed backend's own PATH/version bookkeeping: additional env operations
// and, when the tool needs one, a per-work-directory private data path.
type HookResult struct {
	EnvOps   []envcache.EnvOperation
	DataPath string
}

// Hook is a per-tool strategy invoked once a version-managed backend has
// resolved and installed a concrete version, per spec.md §9's "post-install
// hooks are per-tool knowledge that must not be scattered ... tool-tagged
// strategy objects returned by a small per-tool registry."
type Hook func(workdirDataDir, normalizedName, version, binDir string) (HookResult, error)

// hooks maps a version-managed tool tag to its post-install strategy. Tags
// are the same ones internal/dynenv/diff.go's toolVarNames recognizes, so a
// tool a hook here tags flows straight into DYNENV's enter/leave logic.
var hooks = map[string]Hook{
	"python": pythonHook,
	"go":     goHook,
	"ruby":   rubyHook,
	"node":   nodeHook,
	"helm":   helmHook,
	"rust":   rustHook,
}

func setOp(name, value string) envcache.EnvOperation {
	v := value
	return envcache.EnvOperation{Name: name, Operation: envcache.OpSet, Value: &v}
}

// pythonHook places a per-work-directory virtualenv under the workdir's
// data path at <workdir-data>/python/<version>. The path is keyed by
// version only; it has no component derived from a directory inside the
// work directory. Creating the venv itself is the caller's
// (VersionManagedBackend's) job via procexec;
// the hook only computes the path and the env vars that point at it.
func pythonHook(workdirDataDir, normalizedName, version, binDir string) (HookResult, error) {
	venv := filepath.Join(workdirDataDir, "python", version)
	return HookResult{
		DataPath: venv,
		EnvOps: []envcache.EnvOperation{
			setOp("VIRTUAL_ENV", venv),
		},
	}, nil
}

// goHook allocates a per-version GOPATH under the work directory's data
// path and points GOBIN at its bin/ so go-installed tools land somewhere
// version-stable rather than the user's shared GOPATH.
func goHook(workdirDataDir, normalizedName, version, binDir string) (HookResult, error) {
	root := filepath.Join(workdirDataDir, "go", version)
	return HookResult{
		DataPath: root,
		EnvOps: []envcache.EnvOperation{
			setOp("GOVERSION", version),
			setOp("GOBIN", filepath.Join(root, "bin")),
		},
	}, nil
}

// rubyHook allocates a tool-private GEM_HOME so gems install per work
// directory rather than into the interpreter's shared gem root.
func rubyHook(workdirDataDir, normalizedName, version, binDir string) (HookResult, error) {
	root := filepath.Join(workdirDataDir, "ruby", version)
	return HookResult{
		DataPath: root,
		EnvOps: []envcache.EnvOperation{
			setOp("RUBY_VERSION", version),
			setOp("GEM_HOME", root),
		},
	}, nil
}

// nodeHook points npm's install prefix at a tool-private root.
func nodeHook(workdirDataDir, normalizedName, version, binDir string) (HookResult, error) {
	root := filepath.Join(workdirDataDir, "node", version)
	return HookResult{
		DataPath: root,
		EnvOps: []envcache.EnvOperation{
			setOp("NODE_VERSION", version),
			setOp("npm_config_prefix", root),
		},
	}, nil
}

// helmHook gives Helm a private home and data directory so plugin/cache
// state doesn't leak between work directories.
func helmHook(workdirDataDir, normalizedName, version, binDir string) (HookResult, error) {
	home := filepath.Join(workdirDataDir, "helm", version, "home")
	data := filepath.Join(workdirDataDir, "helm", version, "data")
	return HookResult{
		DataPath: home,
		EnvOps: []envcache.EnvOperation{
			setOp("HELM_HOME", home),
			setOp("HELM_DATA_HOME", data),
		},
	}, nil
}

// rustHook points cargo install's default target root at a tool-private
// directory under the work directory's data path.
func rustHook(workdirDataDir, normalizedName, version, binDir string) (HookResult, error) {
	root := filepath.Join(workdirDataDir, "rust", version)
	return HookResult{
		DataPath: root,
		EnvOps: []envcache.EnvOperation{
			setOp("CARGO_INSTALL_ROOT", root),
		},
	}, nil
}
