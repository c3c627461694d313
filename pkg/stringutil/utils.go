package stringutil

import (
	"strings"
)

// MakePathPrefixer returns a func that prefixes paths with basePath, which may be given with or
// without leading and trailing slashes.  An empty basePath leaves paths unchanged.
func MakePathPrefixer(basePath string) func(string) string {
	prefix := strings.Trim(basePath, "/")
	if prefix != "" {
		prefix = "/" + prefix
	}
	return func(path string) string {
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		return prefix + path
	}
}

// ActionNamespace returns the part of an action type before the last slash, or "" when the type
// has no namespace: "kv/set" => "kv".
func ActionNamespace(actionType string) string {
	if i := strings.LastIndexByte(actionType, '/'); i > 0 {
		return actionType[:i]
	}
	return ""
}
