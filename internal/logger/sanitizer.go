package logger

import (
	"fmt"
	"regexp"
	"sync"
)

// Sanitizer masks user-identifying path segments in log output.
// Diagnostic logs are meant to be shared with support, so home
// directory names must not leak through.
//
// Only string values are rewritten; values under non-string keys pass
// through untouched.
type Sanitizer struct {
	mu    sync.RWMutex
	rules []SanitizeRule
}

// SanitizeRule is a single masking rule.
type SanitizeRule struct {
	Pattern     *regexp.Regexp
	Replacement string
}

// NewSanitizer creates a sanitizer with the default rules.
func NewSanitizer() *Sanitizer {
	return &Sanitizer{rules: defaultSanitizeRules()}
}

func defaultSanitizeRules() []SanitizeRule {
	return []SanitizeRule{
		// Windows user profile paths, any drive letter or UNC share
		{regexp.MustCompile(`(?i)[A-Z]:\\Users\\[^\\]+`), `***:\Users\***`},
		{regexp.MustCompile(`(?i)\\\\[^\\]+\\[^\\]+\\Users\\[^\\]+`), `\\***\***\Users\***`},

		// Unix home directories
		{regexp.MustCompile(`/home/[^/]+`), "/home/***"},
		{regexp.MustCompile(`/Users/[^/]+`), "/Users/***"},

		// Credentials occasionally embedded in environment dumps
		{regexp.MustCompile(`(?i)password=\S+`), "password=***"},
		{regexp.MustCompile(`(?i)token=\S+`), "token=***"},
	}
}

// AddRule appends a custom masking rule.
func (s *Sanitizer) AddRule(rule SanitizeRule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append(s.rules, rule)
}

// Sanitize applies all rules to a string.
func (s *Sanitizer) Sanitize(input string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := input
	for _, rule := range s.rules {
		result = rule.Pattern.ReplaceAllString(result, rule.Replacement)
	}
	return result
}

// SanitizeArgs applies the rules to the string values of key-value
// logging arguments.
func (s *Sanitizer) SanitizeArgs(args []any) []any {
	if len(args) == 0 {
		return args
	}

	result := make([]any, len(args))
	copy(result, args)

	for i := 1; i < len(result); i += 2 {
		switch v := result[i].(type) {
		case string:
			result[i] = s.Sanitize(v)
		case error:
			if v != nil {
				result[i] = s.Sanitize(v.Error())
			}
		case fmt.Stringer:
			if v != nil {
				result[i] = s.Sanitize(v.String())
			}
		}
	}

	return result
}
