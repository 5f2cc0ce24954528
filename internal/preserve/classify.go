package preserve

import (
	"path/filepath"
	"strings"

	"github.com/updateguard/updateguard/internal/domain"
)

// categoryRule classifies files by filename pattern.
type categoryRule struct {
	category domain.DataCategory
	critical bool
	globs    []string
}

// Rules are checked in order; the first match wins. Databases and
// configs are critical, caches are not. Well-known cache names go
// first so thumbs.db is not swept up by the *.db database rule.
var categoryRules = []categoryRule{
	{
		category: domain.CategoryCache,
		critical: false,
		globs:    []string{"*.cache", "*.tmp", "cache*", "thumbs.db"},
	},
	{
		category: domain.CategoryDatabase,
		critical: true,
		globs:    []string{"*.db", "*.sqlite", "*.sqlite3", "*.db3"},
	},
	{
		category: domain.CategoryConfig,
		critical: true,
		globs:    []string{"*.yaml", "*.yml", "*.json", "*.ini", "*.toml", "config*", "settings*"},
	},
	{
		category: domain.CategoryUserData,
		critical: true,
		globs:    []string{"*.csv", "*.dat", "*.export", "*.notes"},
	},
}

// classify returns the category and criticality for a filename, or
// ok=false when no rule matches.
func classify(name string) (domain.DataCategory, bool, bool) {
	lower := strings.ToLower(filepath.Base(name))
	for _, rule := range categoryRules {
		for _, glob := range rule.globs {
			if matched, _ := filepath.Match(glob, lower); matched {
				return rule.category, rule.critical, true
			}
		}
	}
	return "", false, false
}
