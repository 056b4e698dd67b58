// Package dynenv computes the shell commands needed to move a running
// shell from whatever environment it currently has applied to a target
// EnvVersion, and the inverse commands to leave that target cleanly. It is
// pure and synchronous: given the same two inputs it always produces the
// same output, and it never touches the filesystem or a subprocess.
package dynenv

import "omni/internal/envcache"

// AppliedState is the decoded contents of a shell's OMNI_DYNENV variable:
// the operations that were applied the last time this shell entered an
// environment, kept around so leaving it can be computed by inversion
// without re-reading ENVCACHE.
type AppliedState struct {
	// ID is the target EnvVersion's env_version_id this state was entered
	// for; comparing two IDs is how Diff short-circuits to "nothing to do".
	ID string

	// Paths are the PATH entries this state added, in application order.
	Paths []string

	// EnvVars are the variable mutations this state applied, in
	// application order.
	EnvVars []envcache.EnvOperation

	// ToolVars are the tool-group-specific vars this state set (e.g.
	// RUBY_VERSION, GEM_HOME) keyed by name, along with what they held
	// before entry so leaving can restore rather than merely unset.
	ToolVars map[string]ToolVarState

	// Flags are capability hints carried alongside the operations (e.g.
	// whether this state's shell supports arrays for PATH munging).
	Flags FeatureFlags
}

// ToolVarState records a tool-specific variable's value on entry and the
// prior value to restore on leave (nil prior means "was unset").
type ToolVarState struct {
	Entered string
	Prior   *string
}

// FeatureFlags are capability hints encoded alongside OMNI_DYNENV so a
// later `omni hook` invocation (possibly from a different omni binary
// version) knows what the shell integration that wrote this state supports.
type FeatureFlags struct {
	SupportsArrays bool
	SupportsTraps  bool
}

// ShellCommand is one mutation to emit to the shell: either a variable
// assignment/removal or a raw command line (used for PATH list surgery,
// which needs more than a single NAME=VALUE).
type ShellCommand struct {
	Kind  ShellCommandKind
	Name  string
	Value string
}

// ShellCommandKind enumerates the forms DYNENV emits.
type ShellCommandKind int

const (
	// CmdExport sets Name to Value ("export NAME=VALUE").
	CmdExport ShellCommandKind = iota
	// CmdUnset removes Name entirely ("unset NAME").
	CmdUnset
	// CmdPathPrepend inserts Value at the front of PATH.
	CmdPathPrepend
	// CmdPathAppend inserts Value at the back of PATH.
	CmdPathAppend
	// CmdPathRemove strips Value out of PATH wherever it occurs.
	CmdPathRemove
)
