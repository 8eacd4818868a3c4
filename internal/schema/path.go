package schema

import "strings"

// SplitPath breaks an address into its non-empty tokens.
func SplitPath(p string) []string {
	var out []string
	for _, t := range strings.Split(p, "/") {
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// JoinPath is the inverse of SplitPath.
func JoinPath(tokens []string) string {
	if len(tokens) == 0 {
		return ""
	}
	return "/" + strings.Join(tokens, "/")
}

// MatchIndex returns the length of the common token prefix of a and b.
func MatchIndex(a, b []string) int {
	n := min(len(a), len(b))
	for i := range n {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}
