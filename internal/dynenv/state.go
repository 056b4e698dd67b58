package dynenv

import "omni/internal/envcache"

// NewAppliedState captures what entering target actually did, so a later
// Diff/leave can invert it. priorEnv should hold the real shell's values
// for any var DYNENV is about to touch (only entries DYNENV manages need be
// present); a missing entry means the var was unset before entry.
func NewAppliedState(target *envcache.EnvVersion, priorEnv map[string]string, flags FeatureFlags) *AppliedState {
	state := &AppliedState{
		ID:       target.EnvVersionID,
		Paths:    append([]string(nil), target.Paths...),
		EnvVars:  append([]envcache.EnvOperation(nil), target.EnvVars...),
		ToolVars: map[string]ToolVarState{},
		Flags:    flags,
	}

	for _, v := range target.Versions {
		for _, name := range toolVarNames[v.Tool] {
			entered := valueForToolVar(name, v)
			if entered == "" {
				continue
			}
			var prior *string
			if p, ok := priorEnv[name]; ok {
				prior = &p
			}
			state.ToolVars[name] = ToolVarState{Entered: entered, Prior: prior}
		}
	}

	return state
}

func valueForToolVar(name string, v envcache.UpVersion) string {
	switch name {
	case "GOVERSION", "RUBY_VERSION", "NODE_VERSION":
		return v.Version
	default:
		return v.DataPath
	}
}
