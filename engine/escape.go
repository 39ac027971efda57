package engine

import "strings"

const shellSpecial = " \t\n\"'\\$`!*?[]{}();<>&|"

// shellEscape makes a string a single POSIX shell token. Values containing
// metacharacters are single-quoted with embedded quotes escaped.
func shellEscape(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, shellSpecial) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
