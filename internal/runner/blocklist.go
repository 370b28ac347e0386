package runner

import "regexp"

// blockedPatterns matches destructive commands that must never be executed
// by the orchestration core, regardless of caller intent. Matching is
// synchronous — the command is rejected before any process is spawned.
var blockedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\brm\s+(-\w*r\w*f\w*|-\w*f\w*r\w*)\s+/(\s|$)`),
	regexp.MustCompile(`\brm\s+(-\w*r\w*f\w*|-\w*f\w*r\w*)\s+(--no-preserve-root\s+)?/\*`),
	regexp.MustCompile(`\bmkfs(\.\w+)?\b`),
	regexp.MustCompile(`\bdd\s+if=`),
	regexp.MustCompile(`\b(shutdown|poweroff|reboot|halt)\b`),
	regexp.MustCompile(`>\s*/dev/sd[a-z]\b`),
	regexp.MustCompile(`\bmkswap\b`),
}

// MatchBlocked reports whether command matches a blocked pattern, and if
// so, the pattern text for diagnostics.
func MatchBlocked(command string) (string, bool) {
	for _, re := range blockedPatterns {
		if re.MatchString(command) {
			return re.String(), true
		}
	}
	return "", false
}
