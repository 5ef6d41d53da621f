package exec

import "strings"

// ShellQuote wraps s in single quotes for a POSIX shell. Embedded single
// quotes are closed, escaped, and reopened ('\''), so the shell sees the
// value as one literal word regardless of its content.
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// ShellJoin quotes every word and joins them with spaces, producing a command
// line safe to pass to `sh -c`.
func ShellJoin(words ...string) string {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = ShellQuote(w)
	}
	return strings.Join(quoted, " ")
}

