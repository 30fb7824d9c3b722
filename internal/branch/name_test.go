package branch

import (
	"testing"
)

func TestName(t *testing.T) {
	tests := []struct {
		name        string
		externalKey string
		title       string
		want        string
	}{
		{
			name:        "simple title",
			externalKey: "DEV-1",
			title:       "Fix login bug",
			want:        "feature/dev-1-fix-login-bug",
		},
		{
			name:        "separators mapped to hyphens",
			externalKey: "DEV-2",
			title:       "update auth/session.handler_v2",
			want:        "feature/dev-2-update-auth-session-handler-v2",
		},
		{
			name:        "special characters stripped",
			externalKey: "OPS-17",
			title:       "Fix 100% CPU (again!)",
			want:        "feature/ops-17-fix-100-cpu-again",
		},
		{
			name:        "long title truncated with trailing hyphens trimmed",
			externalKey: "DEV-3",
			title:       "a very long title that goes on and on and on forever",
			want:        "feature/dev-3-a-very-long-title-that-goes-on",
		},
		{
			name:        "no alphanumeric characters falls back to task",
			externalKey: "DEV-4",
			title:       "!!! ???",
			want:        "feature/dev-4-task",
		},
		{
			name:        "empty title falls back to task",
			externalKey: "DEV-5",
			title:       "",
			want:        "feature/dev-5-task",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Name(tt.externalKey, tt.title)
			if got != tt.want {
				t.Errorf("Name(%q, %q) = %q, want %q", tt.externalKey, tt.title, got, tt.want)
			}
		})
	}
}

func TestNameDeterministic(t *testing.T) {
	a := Name("DEV-9", "Refactor billing exports")
	b := Name("DEV-9", "Refactor billing exports")
	if a != b {
		t.Errorf("Name is not deterministic: %q != %q", a, b)
	}
}

func TestSanitizeTitleLength(t *testing.T) {
	got := sanitizeTitle("abcdefghij abcdefghij abcdefghij abcdefghij")
	if len(got) > maxSuffixLen {
		t.Errorf("sanitizeTitle produced %d characters, want <= %d", len(got), maxSuffixLen)
	}
	if got[len(got)-1] == '-' {
		t.Errorf("sanitizeTitle left a trailing hyphen: %q", got)
	}
}
