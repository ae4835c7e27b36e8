package permission

import "strings"

// ToolGroups defines named sets of related tools usable in allow/deny lists
// as "group:<name>".
var ToolGroups = map[string][]string{
	"group:edit": {
		"write_file",
		"edit_file",
		"write_todos",
	},
	"group:fs": {
		"ls",
		"read_file",
		"write_file",
		"edit_file",
	},
	"group:background": {
		"run_background",
	},
	"group:interactive": {
		"ask_user",
	},
}

// ExpandGroups expands group references in a list of tool patterns,
// dropping duplicates. Unknown groups are kept as-is and match nothing.
func ExpandGroups(patterns []string) []string {
	var result []string
	seen := make(map[string]bool)
	for _, pattern := range patterns {
		expanded := []string{pattern}
		if strings.HasPrefix(pattern, "group:") {
			if names, ok := ToolGroups[pattern]; ok {
				expanded = names
			}
		}
		for _, name := range expanded {
			if !seen[name] {
				seen[name] = true
				result = append(result, name)
			}
		}
	}
	return result
}

// NormalizeName lowercases and trims a tool name for matching.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
