package dynenv

import (
	"fmt"
	"strings"
)

// Render turns a command sequence into a POSIX shell script the hook writes
// to stdout (or OMNI_CMD_FILE) for the shell to source. Output is built in
// one pass and returned as a single string: DYNENV's contract is atomic,
// single-write output (spec.md §4.3).
func Render(cmds []ShellCommand) string {
	if len(cmds) == 0 {
		return ""
	}
	var b strings.Builder
	for _, c := range cmds {
		switch c.Kind {
		case CmdExport:
			fmt.Fprintf(&b, "export %s=%s\n", c.Name, shellQuote(c.Value))
		case CmdUnset:
			fmt.Fprintf(&b, "unset %s\n", c.Name)
		case CmdPathPrepend:
			fmt.Fprintf(&b, "export PATH=%s:\"$PATH\"\n", shellQuote(c.Value))
		case CmdPathAppend:
			fmt.Fprintf(&b, "export PATH=\"$PATH\":%s\n", shellQuote(c.Value))
		case CmdPathRemove:
			for _, entry := range strings.Split(c.Value, ":") {
				if entry == "" {
					continue
				}
				fmt.Fprintf(&b, "export PATH=$(printf '%%s' \"$PATH\" | awk -v RS=: -v ORS=: '$0 != %s' | sed 's/:$//')\n", shellQuote(entry))
			}
		}
	}
	return b.String()
}

// shellQuote wraps s in single quotes, escaping embedded single quotes the
// standard POSIX way ('"'"').
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
