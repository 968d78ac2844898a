package config

import "strings"

const (
	DefaultKeyPrefix = "pagelens"
	maxKeyPrefixLen  = 64
)

// NormalizeKeyPrefix turns a configured store key prefix into a redis key
// namespace. The prefix is treated as colon-separated segments: each one
// is lowercased, runs of characters outside [a-z0-9_] become a single
// dash, and empty segments are dropped. "Team A::Cache!" becomes
// "team-a:cache". An empty result falls back to DefaultKeyPrefix.
func NormalizeKeyPrefix(prefix string) string {
	var segs []string
	for _, seg := range strings.Split(strings.ToLower(prefix), ":") {
		if s := normalizeSegment(seg); s != "" {
			segs = append(segs, s)
		}
	}
	out := strings.Join(segs, ":")
	if len(out) > maxKeyPrefixLen {
		out = strings.TrimRight(out[:maxKeyPrefixLen], ":-")
	}
	if out == "" {
		return DefaultKeyPrefix
	}
	return out
}

func normalizeSegment(seg string) string {
	var b strings.Builder
	dash := false
	for _, r := range seg {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}
