package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"omni/internal/dynenv"
	"omni/internal/service"
)

// newHookCmd implements the out-of-process half of the shell integration
// contract (spec.md §6): a short-lived invocation that reads the current
// shell's OMNI_DYNENV, diffs it against the work directory's assigned
// environment, and prints the resulting shell commands. It deliberately
// never prompts or reports progress — a hook typically runs on every
// prompt render in an interactive shell, so it must stay silent and fast.
func newHookCmd() *cobra.Command {
	c := &cobra.Command{
		Use:    "hook",
		Short:  "Emit shell commands to sync the current directory's environment (called by shell integration)",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := os.Getwd()
			if err != nil {
				// Nonzero exit means "do nothing" per the shell contract;
				// a hook that can't even see its own cwd has nothing safe
				// to emit.
				return err
			}

			var current *dynenv.AppliedState
			if raw := os.Getenv("OMNI_DYNENV"); raw != "" {
				current, _ = dynenv.Decode(raw)
			}

			status, err := svc.Status(cmd.Context(), service.StatusOptions{WorkdirPath: dir})
			if err != nil {
				return nil
			}
			target := status.Env

			if target == nil && current == nil {
				return nil
			}

			var out strings.Builder
			out.WriteString(dynenv.Render(dynenv.Diff(current, target)))

			if target != nil {
				next := dynenv.NewAppliedState(target, priorEnvFor(current), dynenv.FeatureFlags{SupportsArrays: true, SupportsTraps: true})
				encoded, err := dynenv.Encode(next)
				if err != nil {
					return nil
				}
				fmt.Fprintf(&out, "export OMNI_DYNENV=%s\n", shellQuoteHook(encoded))
			} else if current != nil {
				out.WriteString("unset OMNI_DYNENV\n")
			}

			dest := os.Stdout
			if path := os.Getenv("OMNI_CMD_FILE"); path != "" {
				f, ferr := os.Create(path)
				if ferr != nil {
					return nil
				}
				defer f.Close()
				dest = f
			}
			fmt.Fprint(dest, out.String())
			return nil
		},
	}
	return c
}

// priorEnvFor builds the "value before omni touched it" map NewAppliedState
// needs to compute a correct leave later. The live shell environment is the
// right source for a var omni has never managed; for a var current already
// tracks, current's own recorded prior is the right source (the live value
// by now is omni's own entered value, not the shell's original one).
func priorEnvFor(current *dynenv.AppliedState) map[string]string {
	env := map[string]string{}
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			env[kv[:i]] = kv[i+1:]
		}
	}
	if current == nil {
		return env
	}
	for name, tv := range current.ToolVars {
		if tv.Prior != nil {
			env[name] = *tv.Prior
		} else {
			delete(env, name)
		}
	}
	return env
}

func shellQuoteHook(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
