package dynenv

import (
	"strings"

	"omni/internal/envcache"
)

// toolVarNames maps the post-install hook tags of spec.md §4.2 to the
// canonical env vars DYNENV sets on enter and restores (or unsets) on
// leave. Order is insignificant; each entry is handled independently.
var toolVarNames = map[string][]string{
	"python": {"VIRTUAL_ENV"},
	"go":     {"GOVERSION", "GOBIN"},
	"ruby":   {"RUBY_VERSION", "GEM_HOME"},
	"node":   {"NODE_VERSION", "npm_config_prefix"},
	"helm":   {"HELM_HOME", "HELM_DATA_HOME"},
	"rust":   {"CARGO_INSTALL_ROOT"},
	"poetry": {"POETRY_VIRTUALENVS_PATH", "POETRY_CACHE_DIR"},
}

// Diff computes the shell commands to move from current (may be nil, no
// applied state) to target (may be nil, no assigned environment),
// implementing spec.md §4.3's diff algorithm.
func Diff(current *AppliedState, target *envcache.EnvVersion) []ShellCommand {
	switch {
	case target == nil:
		return leaveCommands(current)
	case current == nil:
		return enterCommands(target)
	case current.ID == target.EnvVersionID:
		return nil
	default:
		return symmetricDiff(current, target)
	}
}

// leaveCommands inverts an applied state entirely: unset every tool var
// (restoring its prior value if one was captured), strip the whole managed
// paths block, and unset every generic env var this state applied.
func leaveCommands(current *AppliedState) []ShellCommand {
	if current == nil {
		return nil
	}
	var cmds []ShellCommand

	if len(current.Paths) > 0 {
		cmds = append(cmds, ShellCommand{Kind: CmdPathRemove, Value: strings.Join(current.Paths, ":")})
	}

	for _, op := range current.EnvVars {
		cmds = append(cmds, restoreOrUnset(op.Name, nil))
	}

	for name, tv := range current.ToolVars {
		cmds = append(cmds, restoreOrUnset(name, tv.Prior))
	}

	return cmds
}

// enterCommands applies a target EnvVersion in full: prepend its managed
// PATH entries, apply its generic env operations, and set the
// tool-group-specific vars for every UpVersion it carries.
func enterCommands(target *envcache.EnvVersion) []ShellCommand {
	var cmds []ShellCommand

	if len(target.Paths) > 0 {
		cmds = append(cmds, ShellCommand{Kind: CmdPathPrepend, Value: strings.Join(target.Paths, ":")})
	}

	for _, op := range target.EnvVars {
		cmds = append(cmds, applyOperation(op))
	}

	for _, v := range target.Versions {
		cmds = append(cmds, toolVarCommands(v)...)
	}

	return cmds
}

// symmetricDiff implements spec.md §4.3 step 3: remove what only current
// had, restore scalars that changed, then lay the target on top.
func symmetricDiff(current *AppliedState, target *envcache.EnvVersion) []ShellCommand {
	var cmds []ShellCommand

	targetPaths := make(map[string]bool, len(target.Paths))
	for _, p := range target.Paths {
		targetPaths[p] = true
	}
	var onlyCurrent []string
	for _, p := range current.Paths {
		if !targetPaths[p] {
			onlyCurrent = append(onlyCurrent, p)
		}
	}
	if len(onlyCurrent) > 0 {
		cmds = append(cmds, ShellCommand{Kind: CmdPathRemove, Value: strings.Join(onlyCurrent, ":")})
	}

	targetVars := make(map[string]envcache.EnvOperation, len(target.EnvVars))
	for _, op := range target.EnvVars {
		targetVars[op.Name] = op
	}
	for _, op := range current.EnvVars {
		if _, stillSet := targetVars[op.Name]; !stillSet {
			cmds = append(cmds, restoreOrUnset(op.Name, nil))
		}
	}

	targetToolVars := make(map[string]bool)
	for _, v := range target.Versions {
		for _, name := range toolVarNames[v.Tool] {
			targetToolVars[name] = true
		}
	}
	for name, tv := range current.ToolVars {
		if !targetToolVars[name] {
			cmds = append(cmds, restoreOrUnset(name, tv.Prior))
		}
	}

	if len(target.Paths) > 0 {
		cmds = append(cmds, ShellCommand{Kind: CmdPathPrepend, Value: strings.Join(target.Paths, ":")})
	}
	for _, op := range target.EnvVars {
		cmds = append(cmds, applyOperation(op))
	}
	for _, v := range target.Versions {
		cmds = append(cmds, toolVarCommands(v)...)
	}

	return cmds
}

func restoreOrUnset(name string, prior *string) ShellCommand {
	if prior == nil {
		return ShellCommand{Kind: CmdUnset, Name: name}
	}
	return ShellCommand{Kind: CmdExport, Name: name, Value: *prior}
}

func applyOperation(op envcache.EnvOperation) ShellCommand {
	switch op.Operation {
	case envcache.OpSet:
		if op.Value == nil {
			return ShellCommand{Kind: CmdUnset, Name: op.Name}
		}
		return ShellCommand{Kind: CmdExport, Name: op.Name, Value: *op.Value}
	case envcache.OpAppend, envcache.OpPrepend, envcache.OpPrefix, envcache.OpSuffix:
		// These are resolved to a concrete value by the UP executor before
		// they reach an EnvVersion (spec.md §6's env-file grammar describes
		// the source form; by commit time env_vars holds the resulting
		// Set). Render defensively as a plain export in case a caller
		// passes one through unresolved.
		v := ""
		if op.Value != nil {
			v = *op.Value
		}
		return ShellCommand{Kind: CmdExport, Name: op.Name, Value: v}
	case envcache.OpRemove:
		return ShellCommand{Kind: CmdUnset, Name: op.Name}
	default:
		return ShellCommand{Kind: CmdUnset, Name: op.Name}
	}
}

// toolVarCommands emits the canonical vars for v's tool tag whose value is
// v.DataPath itself. The version-managed backend's post-install hooks
// (internal/up/hooks.go) contribute their tool's vars as generic env
// operations, several of them not equal to DataPath (GOBIN as <root>/bin,
// HELM_DATA_HOME as the data subdir rather than the home dir the hook
// reports as DataPath, and so on), and that generic EnvVars application
// runs before toolVarCommands in enterCommands/symmetricDiff, so deriving
// those vars from DataPath here would clobber the hook's value. VIRTUAL_ENV
// is the venv directory the python hook reports as DataPath, so it is
// derived here; the Poetry vars have no registered hook and are derived
// from DataPath as well.
func toolVarCommands(v envcache.UpVersion) []ShellCommand {
	names, ok := toolVarNames[v.Tool]
	if !ok {
		return nil
	}
	var cmds []ShellCommand
	for _, name := range names {
		switch name {
		case "VIRTUAL_ENV", "POETRY_VIRTUALENVS_PATH", "POETRY_CACHE_DIR":
			if v.DataPath != "" {
				cmds = append(cmds, ShellCommand{Kind: CmdExport, Name: name, Value: v.DataPath})
			}
		}
	}
	return cmds
}
