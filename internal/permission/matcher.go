package permission

import (
	"regexp"
	"strings"
	"sync"
)

var wildcardCache sync.Map // pattern -> *regexp.Regexp

// MatchTool reports whether toolName matches any pattern. Patterns are exact
// names, "*" wildcards ("mcp_*") or group references.
func MatchTool(toolName string, patterns []string) bool {
	name := NormalizeName(toolName)
	for _, pattern := range ExpandGroups(patterns) {
		p := NormalizeName(pattern)
		if name == p {
			return true
		}
		if strings.Contains(p, "*") && matchWildcard(name, p) {
			return true
		}
	}
	return false
}

func matchWildcard(name, pattern string) bool {
	if cached, ok := wildcardCache.Load(pattern); ok {
		return cached.(*regexp.Regexp).MatchString(name)
	}
	expr := "^" + strings.ReplaceAll(regexp.QuoteMeta(pattern), `\*`, `.*`) + "$"
	re, err := regexp.Compile(expr)
	if err != nil {
		return false
	}
	wildcardCache.Store(pattern, re)
	return re.MatchString(name)
}

// Filter selects which tools are exposed for a turn. Deny wins over allow;
// an empty allow list allows everything not denied.
type Filter struct {
	Allow []string `mapstructure:"allowed_tools" yaml:"allowed_tools"`
	Deny  []string `mapstructure:"disallowed_tools" yaml:"disallowed_tools"`
}

// Permits reports whether toolName passes the filter.
func (f Filter) Permits(toolName string) bool {
	if MatchTool(toolName, f.Deny) {
		return false
	}
	if len(f.Allow) == 0 {
		return true
	}
	return MatchTool(toolName, f.Allow)
}
