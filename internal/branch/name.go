package branch

import (
	"strings"
	"unicode"
)

const maxSuffixLen = 30

// Name derives the deterministic branch name for a work item:
// feature/<key>-<suffix>, where the suffix is the sanitized title. Same
// inputs always yield the same name.
func Name(externalKey, title string) string {
	suffix := sanitizeTitle(title)
	if suffix == "" {
		suffix = "task"
	}
	return "feature/" + strings.ToLower(externalKey) + "-" + suffix
}

// sanitizeTitle lower-cases the title, maps separator characters to
// hyphens, strips everything else non-alphanumeric, and truncates to
// maxSuffixLen with trailing hyphens trimmed.
func sanitizeTitle(title string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(title) {
		switch {
		case unicode.IsSpace(r), r == '_', r == '.', r == '/', r == '\\':
			sb.WriteRune('-')
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-':
			sb.WriteRune(r)
		}
	}

	s := sb.String()
	if len(s) > maxSuffixLen {
		s = s[:maxSuffixLen]
	}
	return strings.TrimRight(s, "-")
}
