package askpass

import "fmt"

// Script renders the small POSIX shell script sudo/ssh invoke in place of
// a terminal password prompt. It re-execs omniBin with a hidden subcommand
// that speaks the listener's protocol against socketPath (a NUL-terminated
// JSON request, answered by one JSON line whose status is "ok" or "deny")
// and prints the returned secret on stdout (the contract
// SUDO_ASKPASS/SSH_ASKPASS expect).
func Script(omniBin, socketPath, securityKey string) string {
	return fmt.Sprintf(`#!/bin/sh
exec %s __askpass-client %s %s "$@"
`, shellQuote(omniBin), shellQuote(socketPath), shellQuote(securityKey))
}

func shellQuote(s string) string {
	out := "'"
	for _, r := range s {
		if r == '\'' {
			out += `'"'"'`
		} else {
			out += string(r)
		}
	}
	return out + "'"
}
