// Package validate checks identifiers taken from paths, flags and button ids.
package validate

import (
	"regexp"
	"strconv"
)

// pluginIDMaxLen is the number of digits in the largest int64.
const pluginIDMaxLen = 19

// Platform topics: lowercase alphanumerics and hyphens, at most 50 chars.
var topicRe = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,49}$`)

// PluginID parses a repository id: decimal digits only, positive, fits int64.
func PluginID(raw string) (int64, bool) {
	if raw == "" || len(raw) > pluginIDMaxLen {
		return 0, false
	}
	for _, r := range raw {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// Topic reports whether t is a valid platform topic.
func Topic(t string) bool {
	return topicRe.MatchString(t)
}
