package diag

import "strings"

// suggestionRule pairs a predicate over the lower-cased error message
// with the suggestions it contributes. Rules are evaluated in order
// and their matches unioned, which keeps each heuristic auditable and
// testable on its own.
type suggestionRule struct {
	name        string
	matches     func(msg string) bool
	suggestions []string
}

func containsAny(substrings ...string) func(string) bool {
	return func(msg string) bool {
		for _, s := range substrings {
			if strings.Contains(msg, s) {
				return true
			}
		}
		return false
	}
}

var suggestionRules = []suggestionRule{
	{
		name:    "archive",
		matches: containsAny("archive", "zip", "tar", "gzip", "corrupt member", "crc"),
		suggestions: []string{
			"Re-download the update package; the archive appears damaged.",
			"Verify the download completed fully before retrying.",
		},
	},
	{
		name:    "permission",
		matches: containsAny("permission", "access is denied", "operation not permitted", "read-only"),
		suggestions: []string{
			"Run the updater with administrator privileges.",
			"Check that the installation folder is writable by your user account.",
			"Add the installation folder to your security software's exclusions.",
		},
	},
	{
		name:    "not-found",
		matches: containsAny("not found", "no such file", "does not exist", "missing"),
		suggestions: []string{
			"Re-install the application from the official package to restore missing files.",
			"Search alternative install locations for the missing file.",
		},
	},
	{
		name:    "dependency",
		matches: containsAny("dependency", "import", "module", "library", "dll", ".so"),
		suggestions: []string{
			"Install or repair the missing runtime dependency.",
			"Verify the runtime version meets the minimum requirement.",
		},
	},
	{
		name:    "network",
		matches: containsAny("network", "connection", "timeout", "dns", "unreachable", "refused"),
		suggestions: []string{
			"Check your internet connection and retry.",
			"If you are behind a proxy or firewall, allow the updater through it.",
		},
	},
	{
		name:    "disk-space",
		matches: containsAny("disk", "no space", "quota", "device full"),
		suggestions: []string{
			"Free up disk space and retry the update.",
			"Prune old backups to reclaim space.",
		},
	},
}
